package gpu

import (
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuBuffer struct {
	buffer *wgpu.Buffer
	label  string
	size   uint64
}

func (b *wgpuBuffer) Label() string { return b.label }

func (b *wgpuBuffer) Size() uint64 { return b.size }

// Raw returns the underlying WebGPU buffer for bind group creation, or nil once destroyed.
func (b *wgpuBuffer) Raw() *wgpu.Buffer { return b.buffer }

func (b *wgpuBuffer) Destroy() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

type wgpuTexture struct {
	texture *wgpu.Texture
	desc    TextureDescriptor
}

func (t *wgpuTexture) Descriptor() TextureDescriptor { return t.desc }

// Raw returns the underlying WebGPU texture for view creation, or nil once destroyed.
func (t *wgpuTexture) Raw() *wgpu.Texture { return t.texture }

func (t *wgpuTexture) Destroy() {
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}

type wgpuBackend struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// ownsDevice is set for backends that requested their own device and must release it.
	ownsDevice bool
}

var _ Backend = &wgpuBackend{}

var textureFormats = map[TextureFormat]wgpu.TextureFormat{
	TextureFormatRGBA16Float: wgpu.TextureFormatRGBA16Float,
	TextureFormatRGBA16Uint:  wgpu.TextureFormatRGBA16Uint,
	TextureFormatRGBA16Sint:  wgpu.TextureFormatRGBA16Sint,
}

// NewWGPUBackend wraps an existing WebGPU device. The caller keeps ownership of the device.
//
// Parameters:
//   - device: the WebGPU device to create resources on
//
// Returns:
//   - Backend: the backend
func NewWGPUBackend(device *wgpu.Device) Backend {
	if device == nil {
		panic("gpu: NewWGPUBackend requires a device")
	}
	return &wgpuBackend{
		mu:     &sync.Mutex{},
		device: device,
		queue:  device.GetQueue(),
	}
}

// RequestHeadlessBackend creates a WebGPU instance, adapter and device without a surface.
// The returned backend owns them and releases them in Release.
//
// Parameters:
//   - forceFallbackAdapter: request the software fallback adapter
//
// Returns:
//   - Backend: the backend
//   - error: ErrResourceCreation if no adapter or device is available
func RequestHeadlessBackend(forceFallbackAdapter bool) (Backend, error) {
	runtime.LockOSThread()
	instance := wgpu.CreateInstance(nil)

	a, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Mark(errors.Wrap(err, "request adapter"), ErrResourceCreation)
	}

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Headless Device",
	})
	if err != nil {
		a.Release()
		instance.Release()
		return nil, errors.Mark(errors.Wrap(err, "request device"), ErrResourceCreation)
	}

	common.ComponentLogger("gpu").Info("headless device ready", "fallback", forceFallbackAdapter)

	return &wgpuBackend{
		mu:         &sync.Mutex{},
		instance:   instance,
		adapter:    a,
		device:     d,
		queue:      d.GetQueue(),
		ownsDevice: true,
	}, nil
}

func (b *wgpuBackend) CreateBuffer(label string, size uint64) (Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create buffer %q of %d bytes", label, size), ErrResourceCreation)
	}
	return &wgpuBuffer{buffer: buf, label: label, size: size}, nil
}

func (b *wgpuBackend) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	wb, ok := buf.(*wgpuBuffer)
	if !ok {
		return errors.Wrapf(ErrForeignResource, "%T", buf)
	}
	if wb.buffer == nil {
		return errors.Wrapf(ErrReleased, "buffer %q", wb.label)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Wrapf(b.queue.WriteBuffer(wb.buffer, offset, data), "write buffer %q", wb.label)
}

func (b *wgpuBackend) CreateTexture(desc TextureDescriptor) (Texture, error) {
	format, ok := textureFormats[desc.Format]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "texture format %d", desc.Format)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.Layers,
		},
		Format:        format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create texture %q with %d layers", desc.Label, desc.Layers), ErrResourceCreation)
	}
	return &wgpuTexture{texture: tex, desc: desc}, nil
}

func (b *wgpuBackend) WriteTexture(tex Texture, firstLayer uint32, data []byte) error {
	wt, ok := tex.(*wgpuTexture)
	if !ok {
		return errors.Wrapf(ErrForeignResource, "%T", tex)
	}
	if wt.texture == nil {
		return errors.Wrapf(ErrReleased, "texture %q", wt.desc.Label)
	}
	layers, err := layerCount(wt.desc, firstLayer, data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  wt.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{Z: firstLayer},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  wt.desc.Width * TexelSize,
			RowsPerImage: wt.desc.Height,
		},
		&wgpu.Extent3D{
			Width:              wt.desc.Width,
			Height:             wt.desc.Height,
			DepthOrArrayLayers: layers,
		},
	)
	return errors.Wrapf(err, "write texture %q layers [%d, %d)", wt.desc.Label, firstLayer, firstLayer+layers)
}

func (b *wgpuBackend) Release() {
	if !b.ownsDevice {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// layerCount validates that data covers whole layers that fit in the texture and returns how many.
func layerCount(desc TextureDescriptor, firstLayer uint32, data []byte) (uint32, error) {
	layerSize := desc.LayerSize()
	if layerSize == 0 || len(data)%layerSize != 0 {
		return 0, errors.Newf("gpu: texture write of %d bytes is not a multiple of the %d byte layer", len(data), layerSize)
	}
	layers := uint32(len(data) / layerSize)
	if firstLayer+layers > desc.Layers {
		return 0, errors.Newf("gpu: texture write to layers [%d, %d) exceeds %d layers", firstLayer, firstLayer+layers, desc.Layers)
	}
	return layers, nil
}
