package image

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/xerrors"

	"snapshot-delta/internal/raster"
)

const (
	// neutral is written wherever the two images agree and stands in for
	// pixels outside either image.
	neutral = 0x00808080

	// Labels need a delta pane wider than this.
	minLabelPaneWidth = 80
	labelX            = 10
	// Baseline of the label row minus the ascent of the font the label
	// images were rendered with.
	labelY = 20 - 12
)

// Comparison is the outcome of DeltaDiff.Calculate.
type Comparison struct {
	// Image is golden | delta | candidate side by side.
	Image             *raster.Raster
	PercentDifference float64
	Result            DiffResult
}

type DeltaOption func(*DeltaDiff)

// WithLabels overlays pre-rendered "expected" and "actual" captions on the
// golden and candidate panes.
func WithLabels(expected *raster.Raster, actual *raster.Raster) DeltaOption {
	return func(d *DeltaDiff) {
		d.expectedLabel = expected
		d.actualLabel = actual
	}
}

// DeltaDiff renders the three-pane heat map of two images and measures their
// channel difference.
type DeltaDiff struct {
	differ        Differ
	expectedLabel *raster.Raster
	actualLabel   *raster.Raster
}

// NewDeltaDiff returns a DeltaDiff that asks differ for the DiffResult. A nil
// differ always yields Identical.
func NewDeltaDiff(differ Differ, opts ...DeltaOption) *DeltaDiff {
	d := &DeltaDiff{
		differ: differ,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DeltaDiff) Calculate(goldenImage image.Image, candidateImage image.Image) (*Comparison, error) {
	golden, err := raster.Normalize(goldenImage)
	if err != nil {
		return nil, xerrors.Errorf("failed to normalize golden image: %w", err)
	}
	candidate, err := raster.Normalize(candidateImage)
	if err != nil {
		return nil, xerrors.Errorf("failed to normalize candidate image: %w", err)
	}

	deltaWidth := max(golden.Width, candidate.Width)
	deltaHeight := max(golden.Height, candidate.Height)
	if err := raster.CheckSize(golden.Width+deltaWidth+candidate.Width, deltaHeight); err != nil {
		return nil, xerrors.Errorf("delta image: %w", err)
	}

	var result DiffResult = Identical{}
	if d.differ != nil {
		result = d.differ.Compare(golden, candidate)
	}

	delta := raster.New(golden.Width+deltaWidth+candidate.Width, deltaHeight)

	var sum int64
	for y := 0; y < deltaHeight; y++ {
		for x := 0; x < deltaWidth; x++ {
			goldenARGB := uint32(neutral)
			if golden.InBounds(x, y) {
				goldenARGB = golden.ARGB(x, y)
			}
			candidateARGB := uint32(neutral)
			if candidate.InBounds(x, y) {
				candidateARGB = candidate.ARGB(x, y)
			}

			pixel, channelDelta := deltaPixel(goldenARGB, candidateARGB)
			delta.SetARGB(golden.Width+x, y, pixel)
			sum += channelDelta
		}
	}

	blit(delta, golden, 0)
	blit(delta, candidate, golden.Width+deltaWidth)

	if deltaWidth > minLabelPaneWidth && d.expectedLabel != nil && d.actualLabel != nil {
		overlay(delta, d.expectedLabel, image.Pt(labelX, labelY))
		overlay(delta, d.actualLabel, image.Pt(golden.Width+deltaWidth+labelX, labelY))
	}

	// Three channels, 256 levels each. The sum covers the union of both
	// images but is scaled to the candidate.
	total := float64(candidate.Height) * float64(candidate.Width) * 3 * 256

	return &Comparison{
		Image:             delta,
		PercentDifference: float64(sum) * 100 / total,
		Result:            result,
	}, nil
}

// deltaPixel returns the heat-map pixel for one coordinate and the sum of the
// absolute RGB differences it contributes.
func deltaPixel(golden uint32, candidate uint32) (uint32, int64) {
	if golden == candidate {
		return neutral, 0
	}

	goldenAlpha, goldenR, goldenG, goldenB := raster.Channels(golden)
	candidateAlpha, candidateR, candidateG, candidateB := raster.Channels(candidate)

	// Colors of invisible pixels do not matter.
	if goldenAlpha == 0 && candidateAlpha == 0 {
		return neutral, 0
	}

	deltaR := candidateR - goldenR
	deltaG := candidateG - goldenG
	deltaB := candidateB - goldenB

	pixel := raster.Pack((goldenAlpha+candidateAlpha)/2, 128+deltaR, 128+deltaG, 128+deltaB)
	return pixel, int64(abs(deltaR) + abs(deltaG) + abs(deltaB))
}

// blit copies src into dst with its top-left corner at (offsetX, 0). The
// destination is freshly allocated, so this matches drawing src over it.
func blit(dst *raster.Raster, src *raster.Raster, offsetX int) {
	for y := 0; y < src.Height; y++ {
		copy(dst.Pix[y*dst.Width+offsetX:y*dst.Width+offsetX+src.Width], src.Pix[y*src.Width:(y+1)*src.Width])
	}
}

func overlay(dst *raster.Raster, label *raster.Raster, at image.Point) {
	r := image.Rectangle{Min: at, Max: at.Add(image.Pt(label.Width, label.Height))}
	draw.Draw(dst, r, label.NRGBA(), image.Point{}, draw.Over)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
