package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser gltfParser
}

// gltfMaterialExtractor maps glTF metallic-roughness materials onto common.MaterialData.
type gltfMaterialExtractor interface {
	// ExtractAllMaterials converts every material of the document, in document order.
	//
	// Returns:
	//   - []common.MaterialData: the materials
	ExtractAllMaterials() []common.MaterialData
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

// newGLTFMaterialExtractor creates a material extractor over an already parsed document.
func newGLTFMaterialExtractor(parser gltfParser) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{parser: parser}
}

func (e *gltfMaterialExtractorImpl) ExtractAllMaterials() []common.MaterialData {
	doc := e.parser.Document()
	out := make([]common.MaterialData, len(doc.Materials))
	for i := range doc.Materials {
		out[i] = gltfConvertMaterial(&doc.Materials[i], i)
	}
	return out
}

// gltfConvertMaterial applies the glTF defaults: white base color, metallic and roughness 1, ior 1.5.
// Base color alpha and every texture are ignored.
func gltfConvertMaterial(mat *gltfMaterial, index int) common.MaterialData {
	result := common.MaterialData{
		Name:      mat.Name,
		Color:     [3]float32{1, 1, 1},
		Metallic:  1,
		Roughness: 1,
		IOR:       1.5,
	}
	if result.Name == "" {
		result.Name = fmt.Sprintf("material_%d", index)
	}

	if pbr := mat.PbrMetallicRoughness; pbr != nil {
		if c := pbr.BaseColorFactor; c != nil {
			result.Color = [3]float32{c[0], c[1], c[2]}
		}
		if pbr.MetallicFactor != nil {
			result.Metallic = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			result.Roughness = *pbr.RoughnessFactor
		}
	}

	if mat.EmissiveFactor != nil {
		result.Emissive = *mat.EmissiveFactor
	}

	if ext := mat.Extensions; ext != nil {
		if ext.Transmission != nil {
			result.Transmission = ext.Transmission.TransmissionFactor
		}
		if ext.IOR != nil && ext.IOR.IOR != nil {
			result.IOR = *ext.IOR.IOR
		}
		if ext.EmissiveStrength != nil && ext.EmissiveStrength.EmissiveStrength != nil {
			s := *ext.EmissiveStrength.EmissiveStrength
			for i := range result.Emissive {
				result.Emissive[i] *= s
			}
		}
	}
	return result
}
