package gpu

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/buffer"
	"github.com/cockroachdb/errors"
)

// TextureArrayMirror mirrors a BufferManager of 16-bit elements into an RGBA16 2D texture array,
// four elements per texel. Layers have a fixed size; the layer count only ever grows.
type TextureArrayMirror interface {
	buffer.Mirror

	// Texture returns the current texture array. It changes identity after a recreation.
	//
	// Returns:
	//   - Texture: the texture, or nil once destroyed
	Texture() Texture

	// Layers returns the number of array layers of the current texture.
	//
	// Returns:
	//   - int: the layer count
	Layers() int

	// Stats returns the mirror's upload counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats
}

type textureArrayMirror struct {
	src       buffer.Source
	backend   Backend
	tex       Texture
	desc      TextureDescriptor
	stats     Stats
	destroyed bool
}

var _ TextureArrayMirror = &textureArrayMirror{}

// NewTextureArrayMirror creates the texture array for src, uploads its content and binds the mirror to src.
// src must hold 16-bit elements: Float16 maps to RGBA16Float, uint16 to RGBA16Uint and int16 to RGBA16Sint.
//
// Parameters:
//   - src: the buffer manager to mirror
//   - backend: the GPU backend to create the texture on
//   - options: functional options such as WithTextureSize
//
// Returns:
//   - TextureArrayMirror: the bound mirror
//   - error: ErrUnsupportedFormat, ErrResourceCreation, or buffer.ErrMirrorBound
func NewTextureArrayMirror(src buffer.Source, backend Backend, options ...MirrorBuilderOption) (TextureArrayMirror, error) {
	format, err := textureFormatFor(src)
	if err != nil {
		return nil, err
	}
	opts := newMirrorOptions(src.Label(), options)
	m := &textureArrayMirror{
		src:     src,
		backend: backend,
		desc: TextureDescriptor{
			Label:  opts.label,
			Width:  opts.textureWidth,
			Height: opts.textureHeight,
			Format: format,
		},
	}
	if err := m.Reconstruct(); err != nil {
		return nil, err
	}
	if err := src.BindMirror(m); err != nil {
		m.tex.Destroy()
		return nil, err
	}
	return m, nil
}

func textureFormatFor(src buffer.Source) (TextureFormat, error) {
	if src.ElementSize() != 2 {
		return 0, errors.Wrapf(ErrUnsupportedFormat, "%q has %d byte elements", src.Label(), src.ElementSize())
	}
	switch src.ElementFormat() {
	case buffer.FormatHalf:
		return TextureFormatRGBA16Float, nil
	case buffer.FormatUint:
		return TextureFormatRGBA16Uint, nil
	case buffer.FormatSint:
		return TextureFormatRGBA16Sint, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedFormat, "%q holds %s elements", src.Label(), src.ElementFormat())
	}
}

func (m *textureArrayMirror) Texture() Texture { return m.tex }

func (m *textureArrayMirror) Layers() int { return int(m.desc.Layers) }

func (m *textureArrayMirror) Stats() Stats { return m.stats }

// requiredLayers is the number of layers needed to hold the used content, at least one.
func (m *textureArrayMirror) requiredLayers() int {
	return max(1, common.CeilDiv(m.src.ByteLength(), m.desc.LayerSize()))
}

func (m *textureArrayMirror) Reconstruct() error {
	if m.destroyed {
		return ErrReleased
	}
	m.stats.Reconstructs++

	target := m.tex
	desc := m.desc
	if target == nil || int(desc.Layers) < m.requiredLayers() {
		desc.Layers = uint32(m.requiredLayers())
		created, err := m.backend.CreateTexture(desc)
		if err != nil {
			return errors.Wrapf(err, "reconstruct %q", desc.Label)
		}
		target = created
	}

	if used := common.CeilDiv(m.src.ByteLength(), desc.LayerSize()); used > 0 {
		if err := m.upload(target, 0, used); err != nil {
			if target != m.tex {
				target.Destroy()
			}
			return err
		}
	}

	if target != m.tex {
		if m.tex != nil {
			m.tex.Destroy()
			m.stats.Recreations++
		}
		common.ComponentLogger("gpu").Debug("texture array mirror recreated", slog.Int("layers", int(desc.Layers)))
		m.tex = target
		m.desc = desc
	}
	return nil
}

func (m *textureArrayMirror) Update(byteOffset, byteLength int) error {
	if m.destroyed {
		return ErrReleased
	}
	if byteLength <= 0 {
		return nil
	}
	layerSize := m.desc.LayerSize()
	first := byteOffset / layerSize
	last := (byteOffset + byteLength - 1) / layerSize
	if last >= int(m.desc.Layers) {
		return m.Reconstruct()
	}
	if err := m.upload(m.tex, first, last-first+1); err != nil {
		return err
	}
	m.stats.Updates++
	return nil
}

// upload writes count whole layers starting at first from the CPU backing store.
func (m *textureArrayMirror) upload(tex Texture, first, count int) error {
	layerSize := m.desc.LayerSize()
	data := alignedBytes(m.src.CapacityBytes(), first*layerSize, (first+count)*layerSize)
	if err := m.backend.WriteTexture(tex, uint32(first), data); err != nil {
		return errors.Wrapf(err, "upload layers [%d, %d) of %q", first, first+count, m.desc.Label)
	}
	m.stats.BytesUploaded += len(data)
	return nil
}

func (m *textureArrayMirror) Destroy() error {
	if m.destroyed {
		return nil
	}
	m.destroyed = true
	m.src.DetachMirror(m)
	if m.tex != nil {
		m.tex.Destroy()
		m.tex = nil
	}
	return nil
}
