package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// gltfParserImpl is the implementation of the gltfParser interface.
type gltfParserImpl struct {
	src            source
	document       *gltfDocument
	glbBinaryChunk []byte
}

// gltfParser decodes glTF JSON or GLB bytes, resolves buffers and reads typed accessors.
type gltfParser interface {
	// Parse decodes data, detecting GLB by its magic number, and loads every buffer.
	//
	// Parameters:
	//   - data: the .gltf or .glb file contents
	//
	// Returns:
	//   - error: an ErrMalformedModel error, or the error of reading an external buffer
	Parse(data []byte) error

	// Document returns the parsed document, or nil before a successful Parse.
	Document() *gltfDocument

	// ReadVec3Accessor reads a VEC3 FLOAT accessor.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//
	// Returns:
	//   - [][3]float32: the values
	//   - error: an ErrMalformedModel error
	ReadVec3Accessor(accessorIndex int) ([][3]float32, error)

	// ReadIndicesAccessor reads a SCALAR accessor of unsigned byte, short or int components.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//
	// Returns:
	//   - []uint32: the indices widened to uint32
	//   - error: an ErrMalformedModel error
	ReadIndicesAccessor(accessorIndex int) ([]uint32, error)
}

var _ gltfParser = &gltfParserImpl{}

// newGLTFParser creates a parser that resolves external buffers through src.
func newGLTFParser(src source) gltfParser {
	return &gltfParserImpl{src: src}
}

func (p *gltfParserImpl) Document() *gltfDocument {
	return p.document
}

func (p *gltfParserImpl) Parse(data []byte) error {
	if len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic {
		return p.parseGLB(data)
	}
	return p.parseGLTF(data)
}

func (p *gltfParserImpl) parseGLTF(data []byte) error {
	var doc gltfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Mark(errors.Wrap(err, "gltf: decode JSON"), ErrMalformedModel)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return malformedf("gltf: asset version %q, want 2.x", doc.Asset.Version)
	}
	if err := p.loadBuffers(&doc); err != nil {
		return err
	}
	p.document = &doc
	return nil
}

// parseGLB splits a GLB container into its JSON and BIN chunks.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
func (p *gltfParserImpl) parseGLB(data []byte) error {
	r := bytes.NewReader(data)

	var header gltfGLBHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return malformedf("glb: header: %v", err)
	}
	if header.Version != gltfGLBVersion {
		return malformedf("glb: container version %d, want %d", header.Version, gltfGLBVersion)
	}

	var jsonData []byte
	for {
		var chunk gltfGLBChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if err == io.EOF {
				break
			}
			return malformedf("glb: chunk header: %v", err)
		}
		if int64(chunk.ChunkLength) > int64(r.Len()) {
			return malformedf("glb: chunk of %d bytes overruns the file", chunk.ChunkLength)
		}
		body := make([]byte, chunk.ChunkLength)
		if _, err := io.ReadFull(r, body); err != nil {
			return malformedf("glb: chunk body: %v", err)
		}
		switch chunk.ChunkType {
		case gltfGLBChunkJSON:
			jsonData = body
		case gltfGLBChunkBIN:
			p.glbBinaryChunk = body
		}
	}
	if jsonData == nil {
		return malformedf("glb: missing JSON chunk")
	}
	return p.parseGLTF(jsonData)
}

// loadBuffers fills every buffer from the GLB BIN chunk, a base64 data URI or a file next to the model.
func (p *gltfParserImpl) loadBuffers(doc *gltfDocument) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]

		switch {
		case buf.URI == "" && i == 0 && p.glbBinaryChunk != nil:
			buf.Data = p.glbBinaryChunk
		case buf.URI == "":
			return malformedf("gltf: buffer %d has no uri", i)
		case strings.HasPrefix(buf.URI, "data:"):
			data, err := decodeDataURI(buf.URI)
			if err != nil {
				return errors.Wrapf(err, "gltf: buffer %d", i)
			}
			buf.Data = data
		default:
			data, err := p.src.open(buf.URI)
			if err != nil {
				return errors.Wrapf(err, "gltf: buffer %d", i)
			}
			buf.Data = data
		}

		if len(buf.Data) < buf.ByteLength {
			return malformedf("gltf: buffer %d holds %d bytes, declares %d", i, len(buf.Data), buf.ByteLength)
		}
	}
	return nil
}

// decodeDataURI decodes data:[<mediatype>];base64,<data>.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, malformedf("gltf: data uri without payload")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, malformedf("gltf: data uri encoding %q", header)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "gltf: data uri"), ErrMalformedModel)
	}
	return data, nil
}

// readAccessorData copies an accessor's elements out of its buffer view, removing any stride.
func (p *gltfParserImpl) readAccessorData(accessorIndex int) (*gltfAccessor, []byte, error) {
	if p.document == nil {
		return nil, nil, errors.New("gltf: no document loaded")
	}
	doc := p.document
	if accessorIndex < 0 || accessorIndex >= len(doc.Accessors) {
		return nil, nil, malformedf("gltf: accessor %d out of range", accessorIndex)
	}
	acc := &doc.Accessors[accessorIndex]
	if acc.Sparse != nil {
		return nil, nil, malformedf("gltf: accessor %d is sparse", accessorIndex)
	}
	if acc.BufferView == nil || *acc.BufferView < 0 || *acc.BufferView >= len(doc.BufferViews) {
		return nil, nil, malformedf("gltf: accessor %d has no valid bufferView", accessorIndex)
	}
	bv := &doc.BufferViews[*acc.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, nil, malformedf("gltf: bufferView %d references buffer %d", *acc.BufferView, bv.Buffer)
	}
	buf := &doc.Buffers[bv.Buffer]

	elementSize := gltfComponentTypeSize(acc.ComponentType) * gltfAccessorTypeComponentCount(acc.Type)
	if elementSize == 0 {
		return nil, nil, malformedf("gltf: accessor %d has type %s/%d", accessorIndex, acc.Type, acc.ComponentType)
	}
	if acc.Count < 0 || acc.ByteOffset < 0 {
		return nil, nil, malformedf("gltf: accessor %d has count %d byteOffset %d", accessorIndex, acc.Count, acc.ByteOffset)
	}
	if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteOffset > len(buf.Data) || bv.ByteLength > len(buf.Data)-bv.ByteOffset {
		return nil, nil, malformedf("gltf: bufferView %d [%d, +%d) outside buffer of %d bytes",
			*acc.BufferView, bv.ByteOffset, bv.ByteLength, len(buf.Data))
	}
	stride := elementSize
	if bv.ByteStride != nil {
		if *bv.ByteStride < 0 || (*bv.ByteStride > 0 && *bv.ByteStride < elementSize) {
			return nil, nil, malformedf("gltf: bufferView %d has byteStride %d for %d-byte elements", *acc.BufferView, *bv.ByteStride, elementSize)
		}
		if *bv.ByteStride > 0 {
			stride = *bv.ByteStride
		}
	}

	// Both operands are bounded by the buffer length, so no sum or product below can overflow.
	viewEnd := bv.ByteOffset + bv.ByteLength
	if acc.ByteOffset > bv.ByteLength {
		return nil, nil, malformedf("gltf: accessor %d starts past its bufferView", accessorIndex)
	}
	start := bv.ByteOffset + acc.ByteOffset
	if acc.Count > 0 {
		if elementSize > viewEnd-start || acc.Count > (viewEnd-start-elementSize)/stride+1 {
			return nil, nil, malformedf("gltf: accessor %d reads past its bufferView", accessorIndex)
		}
	}

	out := make([]byte, acc.Count*elementSize)
	for i := range acc.Count {
		src := start + i*stride
		copy(out[i*elementSize:], buf.Data[src:src+elementSize])
	}
	return acc, out, nil
}

func (p *gltfParserImpl) ReadVec3Accessor(accessorIndex int) ([][3]float32, error) {
	acc, data, err := p.readAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeVec3 || acc.ComponentType != gltfComponentTypeFloat {
		return nil, malformedf("gltf: accessor %d is %s/%d, want VEC3 FLOAT", accessorIndex, acc.Type, acc.ComponentType)
	}
	result := make([][3]float32, acc.Count)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, result); err != nil {
		return nil, errors.Wrapf(err, "gltf: accessor %d", accessorIndex)
	}
	return result, nil
}

func (p *gltfParserImpl) ReadIndicesAccessor(accessorIndex int) ([]uint32, error) {
	acc, data, err := p.readAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeScalar {
		return nil, malformedf("gltf: index accessor %d is %s", accessorIndex, acc.Type)
	}

	result := make([]uint32, acc.Count)
	switch acc.ComponentType {
	case gltfComponentTypeUnsignedByte:
		for i, b := range data {
			result[i] = uint32(b)
		}
	case gltfComponentTypeUnsignedShort:
		for i := range result {
			result[i] = uint32(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case gltfComponentTypeUnsignedInt:
		for i := range result {
			result[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
	default:
		return nil, malformedf("gltf: index accessor %d has component type %d", accessorIndex, acc.ComponentType)
	}
	return result, nil
}

// gltfComponentTypeSize returns the byte size of a component type, or 0 if unknown.
func gltfComponentTypeSize(componentType int) int {
	switch componentType {
	case gltfComponentTypeByte, gltfComponentTypeUnsignedByte:
		return 1
	case gltfComponentTypeShort, gltfComponentTypeUnsignedShort:
		return 2
	case gltfComponentTypeUnsignedInt, gltfComponentTypeFloat:
		return 4
	default:
		return 0
	}
}

// gltfAccessorTypeComponentCount returns the number of components of an accessor type, or 0 if unknown.
func gltfAccessorTypeComponentCount(accessorType string) int {
	switch accessorType {
	case gltfAccessorTypeScalar:
		return 1
	case gltfAccessorTypeVec2:
		return 2
	case gltfAccessorTypeVec3:
		return 3
	case gltfAccessorTypeVec4:
		return 4
	case gltfAccessorTypeMat4:
		return 16
	default:
		return 0
	}
}
