package inference

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"gorgonia.org/tensor"

	"github.com/densitylab/crowdcount/images"
)

// SyntheticEngine fabricates density maps from random Gaussian blobs so the
// demo stays usable without a trained artifact. Its output exists only to
// exercise the surrounding system; the predictor marks it as synthetic so
// nothing downstream mistakes it for a real estimate.
type SyntheticEngine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticEngine returns an engine seeded from src; pass nil for a
// time-seeded generator.
func NewSyntheticEngine(src rand.Source) *SyntheticEngine {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &SyntheticEngine{rng: rand.New(src)}
}

func (e *SyntheticEngine) Type() EngineType { return EngineSynthetic }

// Infer synthesizes 3-9 Gaussian blobs over a grid downsampled by
// DownsampleFactor. The count is 10x the summed blob amplitudes, a rough
// proxy carried over from the demo's origin rather than the integral of the
// map.
func (e *SyntheticEngine) Infer(_ context.Context, img *images.Tensor) (*tensor.Dense, float32, error) {
	h := img.Height / DownsampleFactor
	w := img.Width / DownsampleFactor
	// Degenerate thumbnails still get a one-cell map rather than an empty
	// tensor.
	if h < 1 {
		h = 1
	}
	if w < 1 {
		w = 1
	}

	data := make([]float32, h*w)

	e.mu.Lock()
	defer e.mu.Unlock()

	blobs := 3 + e.rng.Intn(7)
	var count float32
	for b := 0; b < blobs; b++ {
		cy := e.rng.Intn(h)
		cx := e.rng.Intn(w)
		sigmaY := float32(5 + e.rng.Intn(15))
		sigmaX := float32(5 + e.rng.Intn(15))
		amplitude := 0.5 + e.rng.Float32()*1.5

		for y := 0; y < h; y++ {
			dy := float32(y - cy)
			for x := 0; x < w; x++ {
				dx := float32(x - cx)
				data[y*w+x] += amplitude * math32.Exp(
					-(dx*dx/(2*sigmaX*sigmaX) + dy*dy/(2*sigmaY*sigmaY)),
				)
			}
		}

		count += amplitude * 10
	}

	dm := tensor.New(
		tensor.WithShape(1, h, w),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(data),
	)
	return dm, count, nil
}
