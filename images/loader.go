package images

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"gorgonia.org/tensor"
)

// DecodeError reports an input image that could not be read or decoded.
// Upload-shaped failures (corrupt file, unsupported format, unreadable path)
// all surface through this type so callers can tell bad input apart from
// pipeline faults.
type DecodeError struct {
	// Path is the file that failed.
	Path string
	// Err is the underlying cause.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding image %s: %v", e.Path, e.Err)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *DecodeError) Unwrap() error { return e.Err }

// Load reads the image at path and returns the normalized tensor the model
// consumes: RGB, divided by 255, ImageNet channel statistics applied, with a
// leading batch axis of size 1.
//
// Images whose longest side exceeds maxDim are downscaled first so an
// arbitrarily large upload cannot produce an unbounded tensor; maxDim <= 0
// disables the cap.
func Load(path string, maxDim int) (*Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	return FromImage(img, maxDim), nil
}

// FromImage normalizes an already decoded image. Alpha and palette color
// models are coerced to RGB by sampling through the color interface.
func FromImage(img image.Image, maxDim int) *Tensor {
	img = capDimensions(img, maxDim)

	b := img.Bounds()
	h, w := b.Dy(), b.Dx()

	data := make([]float32, h*w*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			data[i] = Normalize(float32(r>>8)/255.0, 0)
			data[i+1] = Normalize(float32(g>>8)/255.0, 1)
			data[i+2] = Normalize(float32(bl>>8)/255.0, 2)
			i += 3
		}
	}

	dense := tensor.New(
		tensor.WithShape(1, h, w, 3),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(data),
	)
	return &Tensor{Data: dense, Height: h, Width: w}
}

// capDimensions downscales img so its longest side is at most maxDim,
// preserving aspect ratio.
func capDimensions(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	if b.Dx() >= b.Dy() {
		return resize.Resize(uint(maxDim), 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, uint(maxDim), img, resize.Lanczos3)
}
