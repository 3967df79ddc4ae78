// Package images - image decoding and tensor preparation for the counting pipeline.
package images

import (
	"gorgonia.org/tensor"
)

// ImageNet channel statistics in R, G, B order. The pretrained counting model
// expects its input in this distribution, so the loader must reproduce the
// exact affine transform.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Tensor is a decoded, normalized image ready for inference.
type Tensor struct {
	// Data is the backing dense tensor with shape (1, Height, Width, 3).
	// It is never mutated after Load returns; display denormalization
	// operates on a copy.
	Data *tensor.Dense
	// Height and Width are the spatial dimensions of the decoded image,
	// after any downscaling applied by the loader.
	Height int
	// Width is the horizontal dimension.
	Width int
}

// Normalize maps a [0,1] pixel value of channel c (0=R, 1=G, 2=B) into the
// model's expected input distribution.
func Normalize(v float32, c int) float32 {
	return (v - channelMean[c]) / channelStd[c]
}

// Denormalize reverses Normalize. The result is not clipped; display code
// clips to [0,1] after the transform.
func Denormalize(v float32, c int) float32 {
	return v*channelStd[c] + channelMean[c]
}
