package inference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/densitylab/crowdcount/images"
)

type stubEngine struct {
	density *tensor.Dense
	count   float32
	err     error
	block   time.Duration
	calls   int
}

func (s *stubEngine) Type() EngineType { return EngineONNX }

func (s *stubEngine) Infer(ctx context.Context, _ *images.Tensor) (*tensor.Dense, float32, error) {
	s.calls++
	if s.block > 0 {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(s.block):
		}
	}
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.density, s.count, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeTestPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 100, G: 110, B: 120, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestFallbackEndToEnd(t *testing.T) {
	dir := t.TempDir()
	p := NewPredictor(Config{
		ONNX: ONNXConfig{
			ModelPath:   filepath.Join(dir, "absent.onnx"),
			LibraryPath: filepath.Join(dir, "absent.so"),
		},
	}, quietLogger())

	est, err := p.Predict(context.Background(), writeTestPNG(t, 64, 64))
	require.NoError(t, err)

	assert.True(t, est.Synthetic)
	assert.Equal(t, tensor.Shape{1, 8, 8}, est.Density.Shape())
	assert.GreaterOrEqual(t, est.Count, float32(0))
	assert.NotNil(t, est.Input)
}

func TestLoadAttemptedOnce(t *testing.T) {
	p := NewPredictor(Config{}, quietLogger())

	attempts := 0
	p.newEngine = func(ONNXConfig) (Engine, error) {
		attempts++
		return nil, errors.New("artifacts missing")
	}

	path := writeTestPNG(t, 32, 32)
	for i := 0; i < 2; i++ {
		est, err := p.Predict(context.Background(), path)
		require.NoError(t, err)
		assert.True(t, est.Synthetic, "call %d must use the fallback", i)
	}
	assert.Equal(t, 1, attempts, "a failed load must never be retried")
}

func TestLoadedEngineCountPassesThrough(t *testing.T) {
	density := tensor.New(
		tensor.WithShape(1, 2, 2),
		tensor.Of(tensor.Float32),
		tensor.WithBacking([]float32{0.5, 1.5, 2, 0.25}),
	)
	stub := &stubEngine{density: density, count: 4.25}

	p := NewPredictor(Config{}, quietLogger())
	p.newEngine = func(ONNXConfig) (Engine, error) { return stub, nil }

	est, err := p.Predict(context.Background(), writeTestPNG(t, 16, 16))
	require.NoError(t, err)

	assert.False(t, est.Synthetic)
	assert.Equal(t, float32(4.25), est.Count)

	// The count is exactly the sum of the returned map.
	total, err := est.Density.Sum()
	require.NoError(t, err)
	assert.Equal(t, est.Count, total.ScalarValue().(float32))
}

func TestDecodeErrorSkipsInference(t *testing.T) {
	stub := &stubEngine{}
	constructed := 0

	p := NewPredictor(Config{}, quietLogger())
	p.newEngine = func(ONNXConfig) (Engine, error) {
		constructed++
		return stub, nil
	}

	path := filepath.Join(t.TempDir(), "corrupt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := p.Predict(context.Background(), path)
	require.Error(t, err)

	var de *images.DecodeError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, 0, stub.calls, "inference must not run on decode failure")
	assert.Equal(t, 0, constructed, "engine must not be constructed on decode failure")
}

func TestInferenceFailurePropagates(t *testing.T) {
	stub := &stubEngine{err: errors.New("forward pass blew up")}

	p := NewPredictor(Config{}, quietLogger())
	p.newEngine = func(ONNXConfig) (Engine, error) { return stub, nil }

	_, err := p.Predict(context.Background(), writeTestPNG(t, 16, 16))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forward pass blew up")
}

func TestPredictTimeout(t *testing.T) {
	stub := &stubEngine{block: time.Second}

	p := NewPredictor(Config{Timeout: 20 * time.Millisecond}, quietLogger())
	p.newEngine = func(ONNXConfig) (Engine, error) { return stub, nil }

	_, err := p.Predict(context.Background(), writeTestPNG(t, 16, 16))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
