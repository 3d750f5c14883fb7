package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"snapshot-delta/internal/codec"
	diffimage "snapshot-delta/internal/diff/image"
	"snapshot-delta/internal/golden"
	"snapshot-delta/internal/raster"
	"snapshot-delta/internal/storage"
)

// DivergenceError is returned by Record when a divergent comparison fails.
type DivergenceError struct {
	Name          string
	Result        diffimage.DiffResult
	Artifacts     Artifacts
	AcceptCommand string
	message       string
}

func (e *DivergenceError) Error() string {
	return e.message
}

// Artifacts holds the storage URL of everything recorded for one comparison.
// Unrecorded artifacts are empty.
type Artifacts struct {
	Delta      string `json:"delta,omitempty"`
	Actual     string `json:"actual,omitempty"`
	Highlights string `json:"highlights,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
}

type Recorder struct {
	Storage storage.Storage
	Logger  *slog.Logger
	// Directory is the key prefix for every artifact.
	Directory string
	// Thumbnail also stores the candidate scaled to fit raster.ThumbnailSize.
	Thumbnail bool
}

// Record stores the delta image and the candidate of a divergent outcome, and
// the highlights of a Similar one, overwriting earlier artifacts of the same
// name. A divergent outcome fails with *DivergenceError unless the differ
// judged it Similar. Convergent outcomes record nothing.
func (r *Recorder) Record(ctx context.Context, outcome *golden.Outcome, goldenPath string) (Artifacts, error) {
	if !outcome.Divergent {
		return Artifacts{}, nil
	}

	artifacts, err := r.store(ctx, outcome)
	if err != nil {
		return Artifacts{}, err
	}

	accept := acceptCommand(artifacts.Actual, goldenPath)
	var message strings.Builder
	message.WriteString(outcome.Message)
	fmt.Fprintf(&message, " - see details in %s\n", location(artifacts.Delta))
	fmt.Fprintf(&message, "Thumbnail for current rendering stored at %s", location(artifacts.Actual))
	message.WriteString("\nRun the following command to accept the changes:\n")
	message.WriteString(accept)
	r.logger().Info(message.String(), "name", outcome.Name)

	switch result := outcome.Comparison.Result.(type) {
	case diffimage.Different:
		r.logger().Info(fmt.Sprintf("results are different: %d of %d", result.NumDifferentPixels, result.NumTotalPixels), "name", outcome.Name)
	case diffimage.Similar:
		r.logger().Info(fmt.Sprintf("results are similar: %d of %d", result.NumSimilarPixels, result.NumTotalPixels), "name", outcome.Name)
		return artifacts, nil
	default:
		r.logger().Info("results are identical", "name", outcome.Name)
	}

	return artifacts, &DivergenceError{
		Name:          outcome.Name,
		Result:        outcome.Comparison.Result,
		Artifacts:     artifacts,
		AcceptCommand: accept,
		message:       message.String(),
	}
}

func (r *Recorder) store(ctx context.Context, outcome *golden.Outcome) (Artifacts, error) {
	var (
		mu        sync.Mutex
		artifacts Artifacts
	)
	put := func(key string, img *raster.Raster, url *string) func() error {
		return func() error {
			data, err := codec.EncodePNG(img)
			if err != nil {
				return xerrors.Errorf("failed to encode %s: %w", key, err)
			}
			u, err := r.Storage.Put(ctx, path.Join(r.Directory, key), data)
			if err != nil {
				return xerrors.Errorf("failed to store %s: %w", key, err)
			}

			mu.Lock()
			defer mu.Unlock()
			*url = u
			return nil
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(put("delta-"+outcome.Name, outcome.Comparison.Image, &artifacts.Delta))
	eg.Go(put(outcome.Name, outcome.Candidate, &artifacts.Actual))
	if highlights := outcome.Highlights(); highlights != nil {
		eg.Go(put("highlights-"+outcome.Name+".png", highlights, &artifacts.Highlights))
	}
	if r.Thumbnail {
		eg.Go(func() error {
			thumbnail, err := Thumbnail(outcome.Candidate)
			if err != nil {
				return xerrors.Errorf("failed to create thumbnail: %w", err)
			}
			return put("thumbnail-"+outcome.Name, thumbnail, &artifacts.Thumbnail)()
		})
	}
	if err := eg.Wait(); err != nil {
		return Artifacts{}, err
	}

	return artifacts, nil
}

// Thumbnail scales r down to fit raster.ThumbnailSize. Smaller rasters are
// returned as a copy.
func Thumbnail(r *raster.Raster) (*raster.Raster, error) {
	scale := raster.ThumbnailScale(r)
	if scale >= 1 {
		return r.Clone(), nil
	}
	return raster.Scale(r, scale, scale)
}

func acceptCommand(actual string, goldenPath string) string {
	if strings.HasPrefix(actual, "s3://") {
		return fmt.Sprintf("aws s3 cp %s %s", actual, goldenPath)
	}
	return fmt.Sprintf("mv %s %s", actual, goldenPath)
}

func location(url string) string {
	if strings.Contains(url, "://") {
		return url
	}
	return "file://" + url
}

func (r *Recorder) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
