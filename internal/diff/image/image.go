package image

import (
	"image"

	"golang.org/x/xerrors"

	"snapshot-delta/internal/raster"
)

// DiffResult is one of Identical, Similar or Different.
type DiffResult interface {
	diffResult()
}

// Identical is reported when no Differ is configured or the images match.
type Identical struct{}

// Similar means the differ accepted the candidate. Highlights marks the
// pixels it tolerated.
type Similar struct {
	NumSimilarPixels int64
	NumTotalPixels   int64
	Highlights       *raster.Raster
}

// Different means the differ rejected the candidate.
type Different struct {
	NumDifferentPixels int64
	NumTotalPixels     int64
}

func (Identical) diffResult() {}
func (Similar) diffResult()   {}
func (Different) diffResult() {}

// Kind names the active case, for logs and JSON.
func Kind(result DiffResult) string {
	switch result.(type) {
	case Identical:
		return "identical"
	case Similar:
		return "similar"
	case Different:
		return "different"
	default:
		return "unknown"
	}
}

// Differ is a pluggable similarity judgement between a golden and a candidate
// raster. Both inputs are canonical and valid.
type Differ interface {
	Compare(golden *raster.Raster, candidate *raster.Raster) DiffResult
}

// DifferFunc adapts a plain function to Differ.
type DifferFunc func(golden *raster.Raster, candidate *raster.Raster) DiffResult

func (f DifferFunc) Compare(golden *raster.Raster, candidate *raster.Raster) DiffResult {
	return f(golden, candidate)
}

func unionBounds(golden *raster.Raster, candidate *raster.Raster) image.Rectangle {
	return image.Rect(0, 0, max(golden.Width, candidate.Width), max(golden.Height, candidate.Height))
}

var UnknownDifferError = xerrors.New("unknown differ")

// Region differences covering up to this fraction of the image are Similar.
const defaultRegionThreshold = 0.01

// NewDiffer returns the Differ registered under name: "none" (nil),
// "pixel-perfect", "off-by-two" or "region".
func NewDiffer(name string) (Differ, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "pixel-perfect":
		return NewPixelPerfect(), nil
	case "off-by-two":
		return NewOffByTwo(), nil
	case "region":
		return NewRectangleDiff(defaultRegionThreshold), nil
	default:
		return nil, xerrors.Errorf("%q: %w", name, UnknownDifferError)
	}
}
