// Package inference - density estimation engines and the predictor provider.
package inference

import (
	"context"

	"gorgonia.org/tensor"

	"github.com/densitylab/crowdcount/images"
)

// DownsampleFactor is the ratio between input resolution and the density map
// resolution emitted by CSRNet-style counting models.
const DownsampleFactor = 8

// EngineType identifies a density estimation engine.
type EngineType string

const (
	// EngineONNX runs a pretrained model through the onnxruntime library.
	EngineONNX EngineType = "onnx"
	// EngineSynthetic fabricates density maps when no model artifact is present.
	EngineSynthetic EngineType = "synthetic"
)

// Engine maps a normalized image tensor to a density map of shape
// (1, H', W') and a scalar count. In the model-backed engine the count is the
// exact sum of the map; the synthetic engine uses a rougher proxy.
type Engine interface {
	// Infer runs a single forward pass. The context bounds the call; an
	// engine checks it before starting expensive work.
	Infer(ctx context.Context, img *images.Tensor) (*tensor.Dense, float32, error)
	// Type returns the engine identifier.
	Type() EngineType
}

// Estimate is the outcome of one prediction.
type Estimate struct {
	// Count is the estimated number of people in the image.
	Count float32
	// Density is the raw density map with shape (1, H', W').
	Density *tensor.Dense
	// Input is the normalized image tensor the estimate was produced from,
	// kept so the caller can render the denormalized original.
	Input *images.Tensor
	// Synthetic marks fallback output that must not be read as a real
	// estimate.
	Synthetic bool
}
