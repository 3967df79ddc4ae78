// Package render - density map and source image visualization.
package render

import "image/color"

// jet maps a value in [0,1] onto the classic jet ramp (blue through cyan,
// yellow and red). Out-of-range values are clamped.
func jet(v float64) color.RGBA {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return color.RGBA{
		R: jetChannel(1.5 - abs(4*v-3)),
		G: jetChannel(1.5 - abs(4*v-2)),
		B: jetChannel(1.5 - abs(4*v-1)),
		A: 255,
	}
}

func jetChannel(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(v*255 + 0.5)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
