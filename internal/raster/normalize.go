package raster

import (
	"image"
	"image/color"

	"golang.org/x/xerrors"
)

// Normalize converts any decoded image into a canonical ARGB raster with the
// same dimensions. The result never aliases the input.
func Normalize(img image.Image) (*Raster, error) {
	if img == nil {
		return nil, xerrors.Errorf("nil image: %w", InvalidRasterError)
	}

	if r, ok := img.(*Raster); ok {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return r.Clone(), nil
	}

	bounds := img.Bounds()
	if err := CheckSize(bounds.Dx(), bounds.Dy()); err != nil {
		return nil, err
	}

	dst := New(bounds.Dx(), bounds.Dy())
	switch src := img.(type) {
	case *image.NRGBA:
		normalizeNRGBA(src, dst)
	case *image.RGBA:
		normalizeRGBA(src, dst)
	default:
		normalizeGeneric(src, dst)
	}
	return dst, nil
}

// MustNormalize is Normalize for inputs already known to be valid, such as
// images produced by this module.
func MustNormalize(img image.Image) *Raster {
	r, err := Normalize(img)
	if err != nil {
		panic(err)
	}
	return r
}

func normalizeNRGBA(src *image.NRGBA, dst *Raster) {
	b := src.Bounds()
	for y := 0; y < dst.Height; y++ {
		row := src.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < dst.Width; x++ {
			o := row + x*4
			dst.Pix[y*dst.Width+x] = uint32(src.Pix[o+3])<<24 | uint32(src.Pix[o])<<16 | uint32(src.Pix[o+1])<<8 | uint32(src.Pix[o+2])
		}
	}
}

func normalizeRGBA(src *image.RGBA, dst *Raster) {
	b := src.Bounds()
	for y := 0; y < dst.Height; y++ {
		row := src.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < dst.Width; x++ {
			o := row + x*4
			a := src.Pix[o+3]
			if a == 0xFF {
				dst.Pix[y*dst.Width+x] = 0xFF000000 | uint32(src.Pix[o])<<16 | uint32(src.Pix[o+1])<<8 | uint32(src.Pix[o+2])
				continue
			}
			c := color.RGBA{R: src.Pix[o], G: src.Pix[o+1], B: src.Pix[o+2], A: a}
			dst.Pix[y*dst.Width+x] = FromNRGBA(color.NRGBAModel.Convert(c).(color.NRGBA))
		}
	}
}

func normalizeGeneric(src image.Image, dst *Raster) {
	b := src.Bounds()
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.Pix[y*dst.Width+x] = FromNRGBA(c)
		}
	}
}
