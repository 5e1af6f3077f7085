package scene

import "github.com/Carmen-Shannon/oxy-rt/common"

// MaterialStride is the number of float32 values one packed instance material occupies:
// color and roughness, emissive and metallic, then transmission and ior padded to a 16-byte boundary.
const MaterialStride = 12

// InstanceMaterial overrides the surface properties of one instance.
type InstanceMaterial struct {
	Color        [3]float32
	Emissive     [3]float32
	Roughness    float32
	Metallic     float32
	Transmission float32
	IOR          float32
}

// DefaultInstanceMaterial returns the material new instances start with.
func DefaultInstanceMaterial() InstanceMaterial {
	return MaterialFromData(common.DefaultMaterialData())
}

// MaterialFromData converts loader material data into an instance override.
func MaterialFromData(d common.MaterialData) InstanceMaterial {
	return InstanceMaterial{
		Color:        d.Color,
		Emissive:     d.Emissive,
		Roughness:    d.Roughness,
		Metallic:     d.Metallic,
		Transmission: d.Transmission,
		IOR:          d.IOR,
	}
}

// Pack writes the GPU layout of the material into dst, which must hold MaterialStride values.
func (m InstanceMaterial) Pack(dst []float32) {
	_ = dst[MaterialStride-1]
	copy(dst, []float32{
		m.Color[0], m.Color[1], m.Color[2], m.Roughness,
		m.Emissive[0], m.Emissive[1], m.Emissive[2], m.Metallic,
		m.Transmission, m.IOR, 0, 0,
	})
}

func unpackMaterial(src []float32) InstanceMaterial {
	return InstanceMaterial{
		Color:        [3]float32{src[0], src[1], src[2]},
		Roughness:    src[3],
		Emissive:     [3]float32{src[4], src[5], src[6]},
		Metallic:     src[7],
		Transmission: src[8],
		IOR:          src[9],
	}
}
