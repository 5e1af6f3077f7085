package gpu

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/buffer"
	"github.com/cockroachdb/errors"
)

// LinearMirror mirrors a BufferManager into one linear GPU storage buffer.
// The buffer is sized to the manager's capacity, never below the configured minimum element count,
// so it is only recreated when the manager reallocates.
type LinearMirror interface {
	buffer.Mirror

	// Buffer returns the current GPU buffer. It changes identity after a recreation.
	//
	// Returns:
	//   - Buffer: the GPU buffer, or nil once destroyed
	Buffer() Buffer

	// Stats returns the mirror's upload counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats
}

type linearMirror struct {
	src         buffer.Source
	backend     Backend
	buf         Buffer
	label       string
	minElements int
	stats       Stats
	destroyed   bool
}

var _ LinearMirror = &linearMirror{}

// NewLinearMirror creates the GPU buffer for src, uploads its content and binds the mirror to src.
//
// Parameters:
//   - src: the buffer manager to mirror
//   - backend: the GPU backend to create the buffer on
//   - options: functional options such as WithMinElements
//
// Returns:
//   - LinearMirror: the bound mirror
//   - error: ErrResourceCreation, or buffer.ErrMirrorBound if src already has a mirror
func NewLinearMirror(src buffer.Source, backend Backend, options ...MirrorBuilderOption) (LinearMirror, error) {
	opts := newMirrorOptions(src.Label(), options)
	m := &linearMirror{
		src:         src,
		backend:     backend,
		label:       opts.label,
		minElements: opts.minElements,
	}
	if err := m.Reconstruct(); err != nil {
		return nil, err
	}
	if err := src.BindMirror(m); err != nil {
		m.buf.Destroy()
		return nil, err
	}
	return m, nil
}

func (m *linearMirror) Buffer() Buffer { return m.buf }

func (m *linearMirror) Stats() Stats { return m.stats }

func (m *linearMirror) requiredSize() int {
	size := max(m.src.ByteCapacity(), m.minElements*m.src.ElementSize())
	return roundUp4(size)
}

func (m *linearMirror) Reconstruct() error {
	if m.destroyed {
		return ErrReleased
	}
	m.stats.Reconstructs++

	size := m.requiredSize()
	target := m.buf
	if target == nil || target.Size() != uint64(size) {
		created, err := m.backend.CreateBuffer(m.label, uint64(size))
		if err != nil {
			return errors.Wrapf(err, "reconstruct %q", m.label)
		}
		target = created
	}

	if used := roundUp4(m.src.ByteLength()); used > 0 {
		data := alignedBytes(m.src.CapacityBytes(), 0, min(used, size))
		if err := m.backend.WriteBuffer(target, 0, data); err != nil {
			if target != m.buf {
				target.Destroy()
			}
			return errors.Wrapf(err, "upload %q", m.label)
		}
		m.stats.BytesUploaded += len(data)
	}

	if target != m.buf {
		if m.buf != nil {
			m.buf.Destroy()
			m.stats.Recreations++
		}
		common.ComponentLogger("gpu").Debug("linear mirror recreated", slog.Int("bytes", size))
		m.buf = target
	}
	return nil
}

func (m *linearMirror) Update(byteOffset, byteLength int) error {
	if m.destroyed {
		return ErrReleased
	}
	if byteLength <= 0 {
		return nil
	}
	size := int(m.buf.Size())
	start := byteOffset &^ 3
	end := min(roundUp4(byteOffset+byteLength), size)
	if start >= end {
		return nil
	}

	data := alignedBytes(m.src.CapacityBytes(), start, end)
	if err := m.backend.WriteBuffer(m.buf, uint64(start), data); err != nil {
		return errors.Wrapf(err, "update %q [%d, %d)", m.label, start, end)
	}
	m.stats.Updates++
	m.stats.BytesUploaded += len(data)
	return nil
}

func (m *linearMirror) Destroy() error {
	if m.destroyed {
		return nil
	}
	m.destroyed = true
	m.src.DetachMirror(m)
	if m.buf != nil {
		m.buf.Destroy()
		m.buf = nil
	}
	return nil
}
