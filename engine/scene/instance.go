package scene

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/buffer"
	"github.com/Carmen-Shannon/oxy-rt/engine/bvh"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Instance places a Prototype in the world with its own Transform and InstanceMaterial.
// Its transform and material live in views of the scene's managers; every setter writes the view,
// pushes the range to the GPU mirror and refits the instance BVH before returning.
type Instance struct {
	scene     *scene
	id        uint32
	prototype *Prototype
	transform Transform

	transformView *buffer.View[float32]
	materialView  *buffer.View[float32]

	removed bool
}

func (i *Instance) ID() uint32 { return i.id }

func (i *Instance) Prototype() *Prototype { return i.prototype }

// Live reports whether the instance is still part of its scene.
func (i *Instance) Live() bool {
	i.scene.mu.RLock()
	defer i.scene.mu.RUnlock()
	return !i.removed
}

// Transform returns a copy of the instance's transform.
func (i *Instance) Transform() Transform {
	i.scene.mu.RLock()
	defer i.scene.mu.RUnlock()
	return i.transform
}

// Bounds returns the world-space bounds of the instance.
func (i *Instance) Bounds() bvh.AABB {
	i.scene.mu.RLock()
	defer i.scene.mu.RUnlock()
	return worldBounds(i.prototype.bounds, i.transform)
}

// TransformOffset returns the element offset of the instance's packed transform in the transform buffer.
func (i *Instance) TransformOffset() int {
	i.scene.mu.RLock()
	defer i.scene.mu.RUnlock()
	return i.transformView.Offset()
}

// MaterialOffset returns the element offset of the instance's packed material in the material buffer.
func (i *Instance) MaterialOffset() int {
	i.scene.mu.RLock()
	defer i.scene.mu.RUnlock()
	return i.materialView.Offset()
}

// SetTransform replaces the whole transform.
//
// Parameters:
//   - t: the new transform
//
// Returns:
//   - error: ErrUnknownInstance if the instance was removed, bvh.ErrDegenerateGeometry for non-finite
//     transforms, or the GPU mirror's error
func (i *Instance) SetTransform(t Transform) error {
	return i.UpdateTransform(func(cur *Transform) { *cur = t })
}

// UpdateTransform applies fn to a copy of the transform and commits the result.
// Nothing changes if the result is rejected.
//
// Parameters:
//   - fn: edits the transform
//
// Returns:
//   - error: as SetTransform
func (i *Instance) UpdateTransform(fn func(t *Transform)) error {
	s := i.scene
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.removed {
		return errors.Wrapf(ErrUnknownInstance, "instance %d", i.id)
	}

	next := i.transform
	fn(&next)
	if err := s.tree.Update(i.id, worldBounds(i.prototype.bounds, next)); err != nil {
		return errors.Wrapf(err, "transform instance %d", i.id)
	}
	i.transform = next

	packed := make([]float32, TransformStride)
	next.Pack(packed)
	if err := i.transformView.Write(0, packed); err != nil {
		return err
	}
	return errors.Wrapf(s.transforms.Flush(i.transformView), "flush transform of instance %d", i.id)
}

// SetPosition moves the instance.
func (i *Instance) SetPosition(p mgl32.Vec3) error {
	return i.UpdateTransform(func(t *Transform) { t.SetPosition(p) })
}

// SetRotation replaces the instance's rotation.
func (i *Instance) SetRotation(m mgl32.Mat3) error {
	return i.UpdateTransform(func(t *Transform) { t.SetRotation(m) })
}

// RotateAxis replaces the instance's rotation with theta radians around axis.
func (i *Instance) RotateAxis(axis mgl32.Vec3, theta float32) error {
	return i.UpdateTransform(func(t *Transform) { t.RotateAxis(axis, theta) })
}

// SetScale sets the instance's per-axis scale.
func (i *Instance) SetScale(scale mgl32.Vec3) error {
	return i.UpdateTransform(func(t *Transform) { t.SetScale(scale) })
}

// Material returns the instance's material as stored in the material buffer.
func (i *Instance) Material() InstanceMaterial {
	i.scene.mu.RLock()
	defer i.scene.mu.RUnlock()
	if i.removed {
		return InstanceMaterial{}
	}
	return unpackMaterial(i.materialView.Slice())
}

// SetMaterial replaces the instance's material override.
//
// Parameters:
//   - m: the new material
//
// Returns:
//   - error: ErrUnknownInstance if the instance was removed, or the GPU mirror's error
func (i *Instance) SetMaterial(m InstanceMaterial) error {
	s := i.scene
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.removed {
		return errors.Wrapf(ErrUnknownInstance, "instance %d", i.id)
	}
	packed := make([]float32, MaterialStride)
	m.Pack(packed)
	if err := i.materialView.Write(0, packed); err != nil {
		return err
	}
	return errors.Wrapf(s.materials.Flush(i.materialView), "flush material of instance %d", i.id)
}

// objectRay maps a world-space ray into the instance's object space. Hit distances carry over unchanged
// for invertible transforms.
func (i *Instance) objectRay(r bvh.Ray) bvh.Ray {
	inv := i.transform.Inverse()
	return bvh.Ray{
		Origin:    inv.Mul3x1(r.Origin.Sub(i.transform.position)),
		Direction: inv.Mul3x1(r.Direction),
	}
}

func worldBounds(local bvh.AABB, t Transform) bvh.AABB {
	return local.Transform(t.Linear(), t.position)
}
