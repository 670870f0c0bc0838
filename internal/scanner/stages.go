package scanner

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Method names reported in results and diagnostics.
const (
	MethodDirect    = "direct"
	MethodInverted  = "inverted"
	MethodContrast  = "enhanced-contrast"
	MethodGrayscale = "grayscale"
)

// ContrastFactor is the channel gain used by the enhanced-contrast stage.
const ContrastFactor = 2.0

// Stage is one transform+decode step of the extraction cascade. A nil
// Transform decodes the source pixels unchanged.
type Stage struct {
	Name      string
	Transform func(*image.NRGBA) *image.NRGBA
	Inversion Inversion
}

// DefaultStages runs cheapest first and stops at the first hit.
func DefaultStages() []Stage {
	return []Stage{
		{Name: MethodDirect, Inversion: InvertNone},
		{Name: MethodInverted, Inversion: InvertBoth},
		{Name: MethodContrast, Transform: EnhanceContrast(ContrastFactor), Inversion: InvertBoth},
		{Name: MethodGrayscale, Transform: Grayscale, Inversion: InvertBoth},
	}
}

// EnhanceContrast remaps each color channel to factor*(v-128)+128, clamped
// to [0,255]. Alpha is unchanged.
func EnhanceContrast(factor float64) func(*image.NRGBA) *image.NRGBA {
	var lut [256]uint8
	for v := range lut {
		lut[v] = clampByte(factor*(float64(v)-128) + 128)
	}
	return func(img *image.NRGBA) *image.NRGBA {
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
		})
	}
}

// Grayscale replaces every channel with the pixel's luma
// 0.299R + 0.587G + 0.114B. Alpha is unchanged.
func Grayscale(img *image.NRGBA) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		y := Luma(c.R, c.G, c.B)
		return color.NRGBA{R: y, G: y, B: y, A: c.A}
	})
}

// Luma returns the rounded BT.601 luminance of an RGB triple.
func Luma(r, g, b uint8) uint8 {
	return clampByte(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.RoundToEven(v))
	}
}
