package render

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"golang.org/x/image/font/basicfont"
	"gorgonia.org/tensor"
)

// ErrMalformedMap reports a density map whose shape or backing the renderer
// cannot draw.
var ErrMalformedMap = errors.New("density map is not a (1, height, width) float32 tensor")

const (
	// upsampleFactor restores the model's downsampling so the heat image
	// approximates the source resolution.
	upsampleFactor = 8
	margin         = 12
	barWidth       = 20
	barGap         = 16
	labelWidth     = 64
)

// Heatmap renders the density map as a jet-colored raster with a value
// legend and returns it encoded as a base64 PNG for inline HTML embedding.
func Heatmap(dm *tensor.Dense) (string, error) {
	img, err := HeatmapImage(dm)
	if err != nil {
		return "", err
	}
	return encodePNG(img)
}

// HeatmapImage renders the density map as a raster image. Cells are
// bilinearly interpolated so the blocky model output reads as a continuous
// surface.
func HeatmapImage(dm *tensor.Dense) (image.Image, error) {
	grid, h, w, err := gridFrom(dm)
	if err != nil {
		return nil, err
	}

	grid, h, w = upsampleBilinear(grid, h, w, upsampleFactor)

	lo, hi := bounds(grid)
	scale := hi - lo
	if scale <= 0 {
		// A flat map still renders, pinned to the bottom of the ramp.
		scale = 1
	}

	heat := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(grid[y*w+x]-lo) / float64(scale)
			heat.SetRGBA(x, y, jet(v))
		}
	}

	dc := gg.NewContext(margin+w+barGap+barWidth+labelWidth+margin, h+2*margin)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(heat, margin, margin)
	drawLegend(dc, margin+w+barGap, margin, h, lo, hi)

	return dc.Image(), nil
}

// drawLegend paints the vertical jet ramp with its extreme values labelled.
func drawLegend(dc *gg.Context, x, y, height int, lo, hi float32) {
	for row := 0; row < height; row++ {
		v := 1 - float64(row)/float64(max(height-1, 1))
		dc.SetColor(jet(v))
		dc.DrawRectangle(float64(x), float64(y+row), barWidth, 1)
		dc.Fill()
	}

	dc.SetRGB(0.1, 0.1, 0.1)
	dc.SetFontFace(basicfont.Face7x13)
	tx := float64(x + barWidth + 6)
	dc.DrawString(fmt.Sprintf("%.2f", hi), tx, float64(y)+10)
	dc.DrawString(fmt.Sprintf("%.2f", lo), tx, float64(y+height)-2)
}

// gridFrom validates the tensor and exposes its backing slice.
func gridFrom(dm *tensor.Dense) ([]float32, int, int, error) {
	if dm == nil {
		return nil, 0, 0, ErrMalformedMap
	}
	shape := dm.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] < 1 || shape[2] < 1 {
		return nil, 0, 0, errors.Wrapf(ErrMalformedMap, "got shape %v", shape)
	}
	data, ok := dm.Data().([]float32)
	if !ok || len(data) != shape[1]*shape[2] {
		return nil, 0, 0, ErrMalformedMap
	}
	return data, shape[1], shape[2], nil
}

// upsampleBilinear resamples the density grid by an integer factor, sampling
// the four surrounding cells of each target position.
func upsampleBilinear(grid []float32, h, w, factor int) ([]float32, int, int) {
	outH, outW := h*factor, w*factor
	out := make([]float32, outH*outW)

	for y := 0; y < outH; y++ {
		fy := (float64(y)+0.5)/float64(factor) - 0.5
		y0 := int(math.Floor(fy))
		ty := fy - float64(y0)
		y1 := clampIndex(y0+1, h)
		y0 = clampIndex(y0, h)

		for x := 0; x < outW; x++ {
			fx := (float64(x)+0.5)/float64(factor) - 0.5
			x0 := int(math.Floor(fx))
			tx := fx - float64(x0)
			x1 := clampIndex(x0+1, w)
			x0 = clampIndex(x0, w)

			top := float64(grid[y0*w+x0])*(1-tx) + float64(grid[y0*w+x1])*tx
			bottom := float64(grid[y1*w+x0])*(1-tx) + float64(grid[y1*w+x1])*tx
			out[y*outW+x] = float32(top*(1-ty) + bottom*ty)
		}
	}
	return out, outH, outW
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func bounds(grid []float32) (lo, hi float32) {
	lo, hi = grid[0], grid[0]
	for _, v := range grid[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
