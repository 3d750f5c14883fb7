package image

import (
	"sync/atomic"

	"snapshot-delta/internal/raster"
)

const (
	brighterHighlight = 0xFFFF0000
	darkerHighlight   = 0xFF0000FF
)

// PixelDiff tolerates pixels whose every ARGB channel is within tolerance of
// the golden pixel. Any other difference, including a pixel present in only
// one image, makes the result Different.
type PixelDiff struct {
	tolerance int
}

func NewPixelDiff(tolerance int) *PixelDiff {
	return &PixelDiff{
		tolerance,
	}
}

// NewPixelPerfect accepts no difference at all.
func NewPixelPerfect() *PixelDiff {
	return NewPixelDiff(0)
}

// NewOffByTwo absorbs the rounding noise of anti-aliasing and color
// conversion between platforms.
func NewOffByTwo() *PixelDiff {
	return NewPixelDiff(2)
}

func (p *PixelDiff) Compare(golden *raster.Raster, candidate *raster.Raster) DiffResult {
	bounds := unionBounds(golden, candidate)
	width := bounds.Dx()
	highlights := raster.New(width, bounds.Dy())
	totalPixelCount := int64(width * bounds.Dy())

	var similarPixelCount int64
	var differentPixelCount int64

	forEachBand(bounds.Dy(), func(startY int, endY int) {
		var localSimilar int64
		var localDifferent int64

		for y := startY; y < endY; y++ {
			for x := 0; x < width; x++ {
				if !golden.InBounds(x, y) || !candidate.InBounds(x, y) {
					localDifferent++
					continue
				}

				goldenARGB := golden.ARGB(x, y)
				candidateARGB := candidate.ARGB(x, y)
				if goldenARGB == candidateARGB {
					continue
				}

				if !p.withinTolerance(goldenARGB, candidateARGB) {
					localDifferent++
					continue
				}

				localSimilar++
				highlights.SetARGB(x, y, highlightColor(goldenARGB, candidateARGB))
			}
		}

		atomic.AddInt64(&similarPixelCount, localSimilar)
		atomic.AddInt64(&differentPixelCount, localDifferent)
	})

	switch {
	case differentPixelCount > 0:
		return Different{
			NumDifferentPixels: differentPixelCount,
			NumTotalPixels:     totalPixelCount,
		}
	case similarPixelCount > 0:
		return Similar{
			NumSimilarPixels: similarPixelCount,
			NumTotalPixels:   totalPixelCount,
			Highlights:       highlights,
		}
	default:
		return Identical{}
	}
}

func (p *PixelDiff) withinTolerance(golden uint32, candidate uint32) bool {
	ga, gr, gg, gb := raster.Channels(golden)
	ca, cr, cg, cb := raster.Channels(candidate)
	return abs(ga-ca) <= p.tolerance &&
		abs(gr-cr) <= p.tolerance &&
		abs(gg-cg) <= p.tolerance &&
		abs(gb-cb) <= p.tolerance
}

// highlightColor marks candidate pixels brighter than the golden red and the
// rest blue.
func highlightColor(golden uint32, candidate uint32) uint32 {
	_, gr, gg, gb := raster.Channels(golden)
	_, cr, cg, cb := raster.Channels(candidate)
	if cr+cg+cb > gr+gg+gb {
		return brighterHighlight
	}
	return darkerHighlight
}
