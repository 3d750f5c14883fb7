// Package raster holds the canonical in-memory pixel buffer every comparison
// works on: non-premultiplied 32-bit ARGB, row-major.
package raster

import (
	"image"
	"image/color"

	"golang.org/x/xerrors"
)

// InvalidRasterError is wrapped by every error caused by a raster with zero or
// inconsistent dimensions.
var InvalidRasterError = xerrors.New("invalid raster")

// MaxPixels bounds the area of every raster, 1 GiB of ARGB data.
const MaxPixels = 1 << 28

const (
	alphaMask = 0xFF000000
	redMask   = 0x00FF0000
	greenMask = 0x0000FF00
	blueMask  = 0x000000FF
)

// Raster is a pixel buffer of Width*Height 0xAARRGGBB values.
type Raster struct {
	Width  int
	Height int
	Pix    []uint32
}

var _ image.Image = (*Raster)(nil)

// CheckSize fails with InvalidRasterError unless width x height is a
// non-empty area of at most MaxPixels.
func CheckSize(width int, height int) error {
	if width <= 0 || height <= 0 {
		return xerrors.Errorf("%dx%d raster has no pixels: %w", width, height, InvalidRasterError)
	}
	if width > MaxPixels/height {
		return xerrors.Errorf("%dx%d raster exceeds %d pixels: %w", width, height, MaxPixels, InvalidRasterError)
	}
	return nil
}

// New allocates a fully transparent raster. Negative dimensions are treated
// as zero; an area above MaxPixels panics, like image.NewRGBA.
func New(width int, height int) *Raster {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	if width > 0 && height > 0 && width > MaxPixels/height {
		panic(xerrors.Errorf("raster.New: %dx%d: %w", width, height, InvalidRasterError))
	}
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint32, width*height),
	}
}

// Validate reports whether r can take part in a comparison.
func (r *Raster) Validate() error {
	if r == nil {
		return xerrors.Errorf("nil raster: %w", InvalidRasterError)
	}
	if err := CheckSize(r.Width, r.Height); err != nil {
		return err
	}
	if len(r.Pix) != r.Width*r.Height {
		return xerrors.Errorf("%dx%d raster carries %d pixels: %w", r.Width, r.Height, len(r.Pix), InvalidRasterError)
	}
	return nil
}

func (r *Raster) InBounds(x int, y int) bool {
	return x >= 0 && y >= 0 && x < r.Width && y < r.Height
}

// ARGB returns the pixel at (x, y). The caller is responsible for bounds.
func (r *Raster) ARGB(x int, y int) uint32 {
	return r.Pix[y*r.Width+x]
}

func (r *Raster) SetARGB(x int, y int, argb uint32) {
	r.Pix[y*r.Width+x] = argb
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	c := &Raster{
		Width:  r.Width,
		Height: r.Height,
		Pix:    make([]uint32, len(r.Pix)),
	}
	copy(c.Pix, r.Pix)
	return c
}

// Equal reports whether both rasters have the same size and pixels.
func (r *Raster) Equal(o *Raster) bool {
	if r.Width != o.Width || r.Height != o.Height || len(r.Pix) != len(o.Pix) {
		return false
	}
	for i := range r.Pix {
		if r.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

func (r *Raster) ColorModel() color.Model {
	return color.NRGBAModel
}

func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

func (r *Raster) At(x int, y int) color.Color {
	if !r.InBounds(x, y) {
		return color.NRGBA{}
	}
	return ToNRGBA(r.ARGB(x, y))
}

// Set makes Raster a draw.Image.
func (r *Raster) Set(x int, y int, c color.Color) {
	if !r.InBounds(x, y) {
		return
	}
	r.SetARGB(x, y, FromNRGBA(color.NRGBAModel.Convert(c).(color.NRGBA)))
}

// NRGBA exposes the raster as an *image.NRGBA so image/draw fast paths apply.
func (r *Raster) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(r.Bounds())
	for i, p := range r.Pix {
		o := i * 4
		img.Pix[o] = uint8(p >> 16)
		img.Pix[o+1] = uint8(p >> 8)
		img.Pix[o+2] = uint8(p)
		img.Pix[o+3] = uint8(p >> 24)
	}
	return img
}

func ToNRGBA(argb uint32) color.NRGBA {
	return color.NRGBA{
		R: uint8((argb & redMask) >> 16),
		G: uint8((argb & greenMask) >> 8),
		B: uint8(argb & blueMask),
		A: uint8((argb & alphaMask) >> 24),
	}
}

func FromNRGBA(c color.NRGBA) uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Channels splits a pixel into its alpha, red, green and blue components.
func Channels(argb uint32) (a int, r int, g int, b int) {
	return int((argb & alphaMask) >> 24), int((argb & redMask) >> 16), int((argb & greenMask) >> 8), int(argb & blueMask)
}

// Pack is the inverse of Channels. Each component is truncated to a byte.
func Pack(a int, r int, g int, b int) uint32 {
	return uint32(a&0xFF)<<24 | uint32(r&0xFF)<<16 | uint32(g&0xFF)<<8 | uint32(b&0xFF)
}
