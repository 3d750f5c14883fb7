package golden

import (
	"fmt"
	"image"

	"golang.org/x/xerrors"

	diffimage "snapshot-delta/internal/diff/image"
	"snapshot-delta/internal/raster"
)

var MissingGoldenError = xerrors.New("missing golden image")

// Size deltas at or above this many pixels fail regardless of the percent
// difference.
const maxSizeDelta = 2

type Config struct {
	MaxPercentDifferent float64
	// FailOnMissingGolden makes MissingGolden an error. Turn it off to seed
	// every missing golden from its candidate in a single run.
	FailOnMissingGolden bool
}

type Verifier struct {
	config Config
	delta  *diffimage.DeltaDiff
}

func NewVerifier(config Config, differ diffimage.Differ, opts ...diffimage.DeltaOption) *Verifier {
	return &Verifier{
		config: config,
		delta:  diffimage.NewDeltaDiff(differ, opts...),
	}
}

type Outcome struct {
	Name          string
	Comparison    *diffimage.Comparison
	GoldenSize    image.Point
	CandidateSize image.Point
	// Candidate is the normalized candidate, ready to be stored as the next
	// golden.
	Candidate *raster.Raster
	Divergent bool
	Message   string
}

// Highlights returns the highlight raster of a Similar result, nil otherwise.
func (o *Outcome) Highlights() *raster.Raster {
	if similar, ok := o.Comparison.Result.(diffimage.Similar); ok {
		return similar.Highlights
	}
	return nil
}

func (v *Verifier) AssertSimilar(name string, goldenImage image.Image, candidateImage image.Image) (*Outcome, error) {
	golden, err := raster.Normalize(goldenImage)
	if err != nil {
		return nil, xerrors.Errorf("failed to normalize golden image %s: %w", name, err)
	}
	candidate, err := raster.Normalize(candidateImage)
	if err != nil {
		return nil, xerrors.Errorf("failed to normalize candidate image %s: %w", name, err)
	}

	comparison, err := v.delta.Calculate(golden, candidate)
	if err != nil {
		return nil, xerrors.Errorf("failed to compare %s: %w", name, err)
	}

	outcome := &Outcome{
		Name:          name,
		Comparison:    comparison,
		GoldenSize:    image.Pt(golden.Width, golden.Height),
		CandidateSize: image.Pt(candidate.Width, candidate.Height),
		Candidate:     candidate,
	}

	switch {
	case comparison.PercentDifference > v.config.MaxPercentDifferent:
		outcome.Message = fmt.Sprintf("Images differ (by %f%%)", comparison.PercentDifference)
	case abs(golden.Width-candidate.Width) >= maxSizeDelta:
		outcome.Message = fmt.Sprintf("Widths differ too much for %s: %s", name, outcome.sizes())
	case abs(golden.Height-candidate.Height) >= maxSizeDelta:
		outcome.Message = fmt.Sprintf("Heights differ too much for %s: %s", name, outcome.sizes())
	}
	outcome.Divergent = outcome.Message != ""

	return outcome, nil
}

// MissingGolden decides what happens when name has no golden yet. A nil
// return means the caller should store the candidate as the new golden.
func (v *Verifier) MissingGolden(name string) error {
	if v.config.FailOnMissingGolden {
		return xerrors.Errorf("%s: %w", name, MissingGoldenError)
	}
	return nil
}

func (o *Outcome) sizes() string {
	return fmt.Sprintf("%dx%dvs%dx%d", o.GoldenSize.X, o.GoldenSize.Y, o.CandidateSize.X, o.CandidateSize.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
