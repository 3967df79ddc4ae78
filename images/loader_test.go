package images

import (
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestLoadShapeAndBounds(t *testing.T) {
	path := writePNG(t, solidImage(40, 30, color.RGBA{R: 200, G: 90, B: 30, A: 255}))

	tsr, err := Load(path, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 30, 40, 3}, tsr.Data.Shape())
	assert.Equal(t, 30, tsr.Height)
	assert.Equal(t, 40, tsr.Width)

	// Every value must lie inside the range the normalization constants
	// imply for [0,1] input; no clipping happens at this stage.
	data := tsr.Data.Data().([]float32)
	for i, v := range data {
		c := i % 3
		assert.GreaterOrEqual(t, v, Normalize(0, c), "value %d below channel %d minimum", i, c)
		assert.LessOrEqual(t, v, Normalize(1, c), "value %d above channel %d maximum", i, c)
	}
}

func TestLoadNormalizesKnownPixel(t *testing.T) {
	path := writePNG(t, solidImage(4, 4, color.RGBA{R: 128, G: 64, B: 255, A: 255}))

	tsr, err := Load(path, 0)
	require.NoError(t, err)

	data := tsr.Data.Data().([]float32)
	assert.InDelta(t, (float64(128)/255-0.485)/0.229, float64(data[0]), 1e-4)
	assert.InDelta(t, (float64(64)/255-0.456)/0.224, float64(data[1]), 1e-4)
	assert.InDelta(t, (float64(255)/255-0.406)/0.225, float64(data[2]), 1e-4)
}

func TestLoadCoercesPalettedToRGB(t *testing.T) {
	paletted := image.NewPaletted(image.Rect(0, 0, 8, 8), color.Palette{
		color.RGBA{R: 255, A: 255},
	})
	path := filepath.Join(t.TempDir(), "test.gif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, paletted, nil))
	require.NoError(t, f.Close())

	tsr, err := Load(path, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 8, 8, 3}, tsr.Data.Shape())

	data := tsr.Data.Data().([]float32)
	assert.InDelta(t, float64(Normalize(1, 0)), float64(data[0]), 1e-4)
	assert.InDelta(t, float64(Normalize(0, 1)), float64(data[1]), 1e-4)
	assert.InDelta(t, float64(Normalize(0, 2)), float64(data[2]), 1e-4)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.png")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a png"), 0o644))

	_, err := Load(path, 0)
	require.Error(t, err)

	var de *DecodeError
	assert.True(t, errors.As(err, &de), "expected a *DecodeError, got %T", err)
	assert.Equal(t, path, de.Path)
	assert.Error(t, de.Unwrap())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.png"), 0)
	require.Error(t, err)

	var de *DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestLoadCapsLargeImages(t *testing.T) {
	path := writePNG(t, solidImage(64, 32, color.RGBA{R: 10, G: 20, B: 30, A: 255}))

	tsr, err := Load(path, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, tsr.Width)
	assert.Equal(t, 8, tsr.Height)
	assert.Equal(t, tensor.Shape{1, 8, 16, 3}, tsr.Data.Shape())
}
