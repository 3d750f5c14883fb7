package raster

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/xerrors"
)

// ThumbnailSize bounds the largest dimension of a thumbnail.
const ThumbnailSize = 1000

// ThumbnailScale returns the uniform factor that fits r's largest dimension
// into ThumbnailSize.
func ThumbnailScale(r *Raster) float64 {
	return ThumbnailSize / float64(max(r.Width, r.Height))
}

// Scale resizes src by the given factors. Each target dimension is truncated
// and clamped to at least one pixel. The factors themselves, not the
// truncated size, choose between the direct and the pyramid resize.
func Scale(src *Raster, xScale float64, yScale float64) (*Raster, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	width := xScale * float64(src.Width)
	height := yScale * float64(src.Height)
	// Also rejects NaN.
	if !(width <= MaxPixels && height <= MaxPixels) {
		return nil, xerrors.Errorf("scale %gx%g of %dx%d: %w", xScale, yScale, src.Width, src.Height, InvalidRasterError)
	}
	return resize(src, max(1, int(width)), max(1, int(height)), xScale, yScale)
}

// Rescale resizes src to exactly targetWidth x targetHeight.
//
// Reductions by more than half on either axis go through a pyramid: one
// bilinear resize to the target size times a power of two, then repeated
// halvings, each of which averages 2x2 source blocks. A single large
// bilinear step drops too many source pixels and breaks up thin strokes
// such as text.
func Rescale(src *Raster, targetWidth int, targetHeight int) (*Raster, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return resize(src, targetWidth, targetHeight, float64(targetWidth)/float64(src.Width), float64(targetHeight)/float64(src.Height))
}

func resize(src *Raster, targetWidth int, targetHeight int, xScale float64, yScale float64) (*Raster, error) {
	if err := CheckSize(targetWidth, targetHeight); err != nil {
		return nil, xerrors.Errorf("target size: %w", err)
	}

	if xScale > 0.5 && yScale > 0.5 {
		if targetWidth == src.Width && targetHeight == src.Height {
			return src.Clone(), nil
		}
		return bilinear(src, targetWidth, targetHeight), nil
	}

	width, height, iterations := pyramid(src.Width, targetWidth, targetHeight)
	if err := CheckSize(width, height); err != nil {
		return nil, xerrors.Errorf("first pyramid step: %w", err)
	}

	scaled := bilinear(src, width, height)
	for ; iterations > 0; iterations-- {
		width /= 2
		height /= 2
		scaled = bilinear(scaled, width, height)
	}
	return scaled, nil
}

// pyramid returns the size of the first resize step and the number of
// halvings that follow it. The loop only looks at the width; because the
// height is doubled in lockstep the halvings land on the target exactly.
func pyramid(sourceWidth int, targetWidth int, targetHeight int) (width int, height int, iterations int) {
	width, height = targetWidth, targetHeight
	for width < sourceWidth/2 {
		width *= 2
		height *= 2
		iterations++
	}
	return width, height, iterations
}

func bilinear(src *Raster, width int, height int) *Raster {
	// Fresh RGBA images are fully transparent, and draw.Src overwrites every
	// destination pixel.
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src.NRGBA(), src.Bounds(), draw.Src, nil)
	return MustNormalize(dst)
}
