package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"

	"github.com/pkg/errors"

	"github.com/densitylab/crowdcount/images"
)

// ErrMalformedTensor reports an image tensor the renderer cannot rasterize.
var ErrMalformedTensor = errors.New("image tensor is not a (1, height, width, 3) float32 tensor")

// Original reverses the loader's normalization and renders the source image
// as a base64 PNG. Values are clipped to [0,1] after the reverse transform,
// matching how the image was shown before normalization rounding.
func Original(t *images.Tensor) (string, error) {
	if t == nil || t.Data == nil {
		return "", ErrMalformedTensor
	}
	shape := t.Data.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[3] != 3 ||
		shape[1] != t.Height || shape[2] != t.Width {
		return "", errors.Wrapf(ErrMalformedTensor, "got shape %v", shape)
	}
	data, ok := t.Data.Data().([]float32)
	if !ok || len(data) != t.Height*t.Width*3 {
		return "", ErrMalformedTensor
	}

	img := image.NewRGBA(image.Rect(0, 0, t.Width, t.Height))
	i := 0
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			offset := img.PixOffset(x, y)
			img.Pix[offset] = pixel(data[i], 0)
			img.Pix[offset+1] = pixel(data[i+1], 1)
			img.Pix[offset+2] = pixel(data[i+2], 2)
			img.Pix[offset+3] = 255
			i += 3
		}
	}

	return encodePNG(img)
}

// pixel denormalizes one channel value and quantizes it to 8 bits.
func pixel(v float32, c int) uint8 {
	d := images.Denormalize(v, c)
	if d < 0 {
		d = 0
	}
	if d > 1 {
		d = 1
	}
	return uint8(d*255 + 0.5)
}

// encodePNG serializes img and wraps it in base64 for inline HTML embedding.
func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", errors.Wrap(err, "encoding png")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
