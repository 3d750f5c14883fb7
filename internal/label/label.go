package label

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	diffimage "snapshot-delta/internal/diff/image"
	"snapshot-delta/internal/raster"
)

const padding = 2

var (
	background    = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xC0}
	ExpectedColor = color.NRGBA{R: 0x00, G: 0x80, B: 0x00, A: 0xFF}
	ActualColor   = color.NRGBA{R: 0xC0, G: 0x00, B: 0x00, A: 0xFF}
)

// Render draws text with the built-in 7x13 bitmap face on a translucent
// plate. The output depends only on text and c.
func Render(text string, c color.Color) *raster.Raster {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 2*padding
	height := face.Height + 2*padding

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(padding, padding+face.Ascent),
	}
	d.DrawString(text)

	return raster.MustNormalize(dst)
}

// Default is the "Expected"/"Actual" caption pair drawn on delta images.
func Default() diffimage.DeltaOption {
	return diffimage.WithLabels(Render("Expected", ExpectedColor), Render("Actual", ActualColor))
}
