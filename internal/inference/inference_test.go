package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sound-Bartender/MJPEGApp/internal/audio"
	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
	"github.com/Sound-Bartender/MJPEGApp/internal/tensor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func smallEngineConfig() EngineConfig {
	return EngineConfig{
		Backend:       IdentityBackendName,
		Frames:        2,
		FrameSize:     2,
		WindowSamples: 4,
		EmbeddingDim:  3,
		WarmUp:        true,
	}
}

func TestLookupUnknownBackend(t *testing.T) {
	_, err := Lookup("does-not-exist")
	assert.Error(t, err)
	assert.Contains(t, Backends(), IdentityBackendName)
}

func TestEngineIdentityRoundTrip(t *testing.T) {
	e, err := NewEngine(smallEngineConfig(), testLogger())
	require.NoError(t, err)

	_, err = e.Enhance(make([]float32, 8), make([]float32, 4))
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, e.Load(context.Background()))
	assert.True(t, e.Loaded())

	noisy := []float32{0.1, -0.2, 0.3, -0.4}
	out, err := e.Enhance(make([]float32, 8), noisy)
	require.NoError(t, err)
	assert.Equal(t, noisy, out)

	_, err = e.Enhance(make([]float32, 7), noisy)
	assert.Error(t, err)
	_, err = e.Enhance(make([]float32, 8), noisy[:3])
	assert.Error(t, err)

	require.NoError(t, e.Close())
	assert.False(t, e.Loaded())
	_, err = e.Enhance(make([]float32, 8), noisy)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

// recordingBackend captures the tensors each model stage receives
type recordingBackend struct {
	mu     sync.Mutex
	shapes map[string][]int64
}

func (b *recordingBackend) Load(spec ModelSpec) (Model, error) {
	return &recordingModel{backend: b, spec: spec}, nil
}

type recordingModel struct {
	backend *recordingBackend
	spec    ModelSpec
}

func (m *recordingModel) Run(inputs, outputs map[string]*Tensor) error {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	for name, in := range inputs {
		m.backend.shapes[name] = in.Shape
	}
	for name, out := range outputs {
		m.backend.shapes[name] = out.Shape
		for i := range out.Data {
			out.Data[i] = 2
		}
	}
	return nil
}

func (m *recordingModel) Close() error { return nil }

func TestEngineTensorShapes(t *testing.T) {
	rb := &recordingBackend{shapes: map[string][]int64{}}
	Register("recording", rb)

	e, err := NewEngine(EngineConfig{
		Backend:       "recording",
		Frames:        25,
		FrameSize:     88,
		WindowSamples: 16000,
	}, testLogger())
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background()))

	out, err := e.Enhance(make([]float32, 25*88*88), make([]float32, 16000))
	require.NoError(t, err)
	assert.Len(t, out, 16000)

	assert.Equal(t, []int64{1, 1, 25, 88, 88}, rb.shapes[InputVideo])
	assert.Equal(t, []int64{1, 512, 25}, rb.shapes[OutputVideoEmb])
	assert.Equal(t, []int64{1, 512, 25}, rb.shapes[InputAudioEmb])
	assert.Equal(t, []int64{1, 1, 16000}, rb.shapes[InputWav])
	assert.Equal(t, []int64{1, 1, 16000}, rb.shapes[OutputEnhanced])
}

// flakyBackend fails the first audio model run and counts loads and closes
type flakyBackend struct {
	mu     sync.Mutex
	loads  int
	closes int
	failed bool
}

func (b *flakyBackend) Load(spec ModelSpec) (Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	return &flakyModel{backend: b, spec: spec}, nil
}

type flakyModel struct {
	backend *flakyBackend
	spec    ModelSpec
}

func (m *flakyModel) Run(inputs, outputs map[string]*Tensor) error {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	if m.spec.Name == "audio" && !m.backend.failed {
		m.backend.failed = true
		return errors.New("session run failed")
	}
	return nil
}

func (m *flakyModel) Close() error {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	m.backend.closes++
	return nil
}

func TestEngineWarmUpFailureAllowsRetry(t *testing.T) {
	fb := &flakyBackend{}
	Register("flaky", fb)

	cfg := smallEngineConfig()
	cfg.Backend = "flaky"
	e, err := NewEngine(cfg, testLogger())
	require.NoError(t, err)

	err = e.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warm-up inference")
	assert.False(t, e.Loaded())
	assert.Equal(t, 2, fb.closes)

	_, err = e.Enhance(make([]float32, 8), make([]float32, 4))
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, e.Load(context.Background()))
	assert.True(t, e.Loaded())
	assert.Equal(t, 4, fb.loads)

	require.NoError(t, e.Close())
	assert.Equal(t, 4, fb.closes)
}

func TestEngineLoadCancelledBeforeWarmUp(t *testing.T) {
	fb := &flakyBackend{failed: true}
	Register("flaky-cancel", fb)

	cfg := smallEngineConfig()
	cfg.Backend = "flaky-cancel"
	e, err := NewEngine(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Load(ctx), context.Canceled)
	assert.False(t, e.Loaded())
	assert.Equal(t, 2, fb.closes)
}

// blockingEnhancer holds the first call until released
type blockingEnhancer struct {
	entered chan struct{}
	release chan struct{}
	out     []float32
}

func (b *blockingEnhancer) Enhance(video, audio []float32) ([]float32, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.out, nil
}

type funcEnhancer func(video, audio []float32) ([]float32, error)

func (f funcEnhancer) Enhance(video, audio []float32) ([]float32, error) { return f(video, audio) }

func testWindow() *tensor.Window {
	return &tensor.Window{Video: make([]float32, 8), Audio: make([]float32, 4), Seq: 1}
}

func TestGatewayIsNotReentrant(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	be := &blockingEnhancer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		out:     []float32{1, -1, 0, 0.5},
	}
	g := NewGateway(be, 4, testLogger(), m)

	type result struct {
		pcm []byte
		err error
	}
	first := make(chan result, 1)
	go func() {
		pcm, err := g.Run(context.Background(), testWindow())
		first <- result{pcm, err}
	}()

	<-be.entered
	assert.True(t, g.Busy())

	_, err := g.Run(context.Background(), testWindow())
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InferenceSkipped))

	close(be.release)
	select {
	case r := <-first:
		require.NoError(t, r.err)
		assert.Equal(t, []int16{32767, -32767, 0, 16383}, audio.BytesToSamples(r.pcm))
	case <-time.After(2 * time.Second):
		t.Fatal("first inference did not finish")
	}
	assert.False(t, g.Busy())
}

func TestGatewayReleasesGuardOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		enhancer Enhancer
	}{
		{name: "error", enhancer: funcEnhancer(func(_, _ []float32) ([]float32, error) {
			return nil, errors.New("backend failed")
		})},
		{name: "panic", enhancer: funcEnhancer(func(_, _ []float32) ([]float32, error) {
			panic("tensor shape mismatch")
		})},
		{name: "wrong length", enhancer: funcEnhancer(func(_, _ []float32) ([]float32, error) {
			return make([]float32, 3), nil
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(tt.enhancer, 4, testLogger(), nil)

			_, err := g.Run(context.Background(), testWindow())
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrSkipped)
			assert.False(t, g.Busy())
		})
	}
}

func TestGatewayCanceledContext(t *testing.T) {
	called := false
	g := NewGateway(funcEnhancer(func(_, _ []float32) ([]float32, error) {
		called = true
		return make([]float32, 4), nil
	}), 4, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Run(ctx, testWindow())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.False(t, g.Busy())
}

func TestGatewayWithEngine(t *testing.T) {
	e, err := NewEngine(smallEngineConfig(), testLogger())
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background()))
	defer e.Close()

	g := NewGateway(e, 4, testLogger(), nil)
	w := testWindow()
	w.Audio = []float32{0.5, -0.5, 2, -2}

	pcm, err := g.Run(context.Background(), w)
	require.NoError(t, err)
	assert.Len(t, pcm, 8)
	assert.Equal(t, []int16{16383, -16383, 32767, -32767}, audio.BytesToSamples(pcm))
}
