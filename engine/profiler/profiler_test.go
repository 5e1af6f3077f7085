package profiler

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickReportsPerInterval(t *testing.T) {
	start := time.Unix(1000, 0)
	p := NewProfiler(WithStart(start), WithInterval(2*time.Second))

	for i := 1; i < 60; i++ {
		_, ok := p.Tick(start.Add(time.Duration(i)*time.Second/30), Sample{})
		require.False(t, ok, "frame %d", i)
	}

	r, ok := p.Tick(start.Add(2*time.Second), Sample{Instances: 3, Triangles: 12, BytesUploaded: 4 << 20})
	require.True(t, ok)
	assert.Equal(t, 60, r.Frames)
	assert.Equal(t, 2*time.Second, r.Elapsed)
	assert.InDelta(t, 30, r.FPS, 1e-9)
	assert.Equal(t, 3, r.Workload.Instances)
	assert.InDelta(t, 2, r.UploadRateMB, 1e-9)
	assert.Positive(t, r.HeapMB)
	assert.Equal(t, r, p.Last())

	r, ok = p.Tick(start.Add(4*time.Second), Sample{BytesUploaded: 5 << 20})
	require.True(t, ok)
	assert.Equal(t, 1, r.Frames)
	assert.InDelta(t, 0.5, r.UploadRateMB, 1e-9, "upload rate is relative to the previous report")
}

func TestTickLogs(t *testing.T) {
	var out bytes.Buffer
	common.SetLogger(slog.New(slog.NewTextHandler(&out, nil)))
	t.Cleanup(func() { common.SetLogger(nil) })

	start := time.Unix(0, 0)
	p := NewProfiler(WithStart(start))
	_, ok := p.Tick(start.Add(time.Second), Sample{Scenes: 1})
	require.True(t, ok)
	assert.Contains(t, out.String(), "component=profiler")
	assert.Contains(t, out.String(), "scenes=1")
}

func TestReset(t *testing.T) {
	start := time.Unix(0, 0)
	p := NewProfiler(WithStart(start), WithInterval(-time.Second))
	p.Tick(start.Add(time.Millisecond), Sample{})
	p.Reset(start.Add(time.Second))
	_, ok := p.Tick(start.Add(1500*time.Millisecond), Sample{})
	assert.False(t, ok)
	r, ok := p.Tick(start.Add(2*time.Second), Sample{})
	require.True(t, ok)
	assert.Equal(t, 2, r.Frames)
}
