package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"snapshot-delta/internal/artifact"
	"snapshot-delta/internal/codec"
	diffimage "snapshot-delta/internal/diff/image"
	"snapshot-delta/internal/env"
	"snapshot-delta/internal/golden"
	"snapshot-delta/internal/label"
	"snapshot-delta/internal/raster"
	"snapshot-delta/internal/retry"
	"snapshot-delta/internal/storage"
)

type DiffOutput struct {
	Name              string               `json:"name"`
	Result            string               `json:"result,omitempty"`
	PercentDifference float64              `json:"percentDifference"`
	Divergent         bool                 `json:"divergent"`
	Message           string               `json:"message,omitempty"`
	Artifacts         artifact.Artifacts   `json:"artifacts"`
	DiffRect          *diffimage.Rectangle `json:"diffRect,omitempty"`
	Seeded            bool                 `json:"seeded,omitempty"`
}

type options struct {
	directory           string
	storageBackend      string
	s3Bucket            string
	s3Prefix            string
	s3EndpointURL       string
	maxPercentDifferent float64
	differ              string
	labels              bool
	failOnMissingGolden bool
	thumbnail           bool
	callbackURL         string
	maxRetryCount       uint
}

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	var o options
	flag.StringVar(&o.directory, "directory", env.OrDefault("DIRECTORY", "failures"), "Directory for failure artifacts")
	flag.StringVar(&o.storageBackend, "storage-backend", env.OrDefault("STORAGE_BACKEND", "file"), "Artifact storage backend (file or s3)")
	flag.StringVar(&o.s3Bucket, "s3-bucket", env.OrDefault("S3_BUCKET", ""), "S3 bucket for artifacts")
	flag.StringVar(&o.s3Prefix, "s3-prefix", env.OrDefault("S3_PREFIX", ""), "S3 key prefix for artifacts")
	flag.StringVar(&o.s3EndpointURL, "s3-endpoint-url", env.OrDefault("S3_ENDPOINT_URL", ""), "S3 compatible endpoint")
	flag.Float64Var(&o.maxPercentDifferent, "max-percent-different", env.OrDefault("MAX_PERCENT_DIFFERENT", 0.1), "Largest accepted percent difference")
	flag.StringVar(&o.differ, "differ", env.OrDefault("DIFFER", "off-by-two"), "Differ (none, pixel-perfect, off-by-two or region)")
	flag.BoolVar(&o.labels, "labels", env.OrDefault("LABELS", true), "Draw expected/actual captions on the delta image")
	flag.BoolVar(&o.failOnMissingGolden, "fail-on-missing-golden", env.OrDefault("FAIL_ON_MISSING_GOLDEN", true), "Fail instead of recording a missing golden")
	flag.BoolVar(&o.thumbnail, "thumbnail", env.OrDefault("THUMBNAIL", false), "Also store a thumbnail of the candidate")
	flag.StringVar(&o.callbackURL, "callback-url", env.OrDefault("CALLBACK_URL", ""), "PATCH the JSON result here instead of printing it")
	flag.UintVar(&o.maxRetryCount, "max-retry-count", env.OrDefault("MAX_RETRY_COUNT", uint(5)), "Retries for callback and S3 requests")

	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("golden, candidate not specified")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	output, err := run(ctx, logger, o, args[0], args[1])
	var divergence *artifact.DivergenceError
	if err != nil && !errors.As(err, &divergence) {
		log.Fatalf("Failed to compare %s: %v", args[0], err)
	}

	if err := report(ctx, logger, o, output); err != nil {
		log.Fatalf("Failed to report result: %v", err)
	}

	if divergence != nil {
		fmt.Fprintln(os.Stderr, divergence.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options, goldenPath string, candidatePath string) (DiffOutput, error) {
	name := filepath.Base(goldenPath)

	differ, err := diffimage.NewDiffer(o.differ)
	if err != nil {
		return DiffOutput{}, err
	}
	var deltaOptions []diffimage.DeltaOption
	if o.labels {
		deltaOptions = append(deltaOptions, label.Default())
	}
	verifier := golden.NewVerifier(golden.Config{
		MaxPercentDifferent: o.maxPercentDifferent,
		FailOnMissingGolden: o.failOnMissingGolden,
	}, differ, deltaOptions...)

	if _, err := os.Stat(goldenPath); errors.Is(err, os.ErrNotExist) {
		if err := verifier.MissingGolden(name); err != nil {
			return DiffOutput{}, err
		}
		if err := seed(goldenPath, candidatePath); err != nil {
			return DiffOutput{}, err
		}
		logger.Info("recorded missing golden", "golden", goldenPath)
		return DiffOutput{Name: name, Seeded: true}, nil
	}

	var goldenRaster, candidateRaster *raster.Raster
	eg := errgroup.Group{}
	eg.Go(func() error {
		r, err := codec.DecodeFile(goldenPath)
		if err != nil {
			return xerrors.Errorf("failed to load golden image: %w", err)
		}
		goldenRaster = r
		return nil
	})
	eg.Go(func() error {
		r, err := codec.DecodeFile(candidatePath)
		if err != nil {
			return xerrors.Errorf("failed to load candidate image: %w", err)
		}
		candidateRaster = r
		return nil
	})
	if err := eg.Wait(); err != nil {
		return DiffOutput{}, err
	}

	outcome, err := verifier.AssertSimilar(name, goldenRaster, candidateRaster)
	if err != nil {
		return DiffOutput{}, err
	}

	output := DiffOutput{
		Name:              name,
		Result:            diffimage.Kind(outcome.Comparison.Result),
		PercentDifference: outcome.Comparison.PercentDifference,
		Divergent:         outcome.Divergent,
		Message:           outcome.Message,
	}
	rect, ok, err := diffimage.SmallestDiffRect(goldenRaster, candidateRaster)
	if err != nil {
		return DiffOutput{}, xerrors.Errorf("failed to locate differences: %w", err)
	}
	if ok {
		output.DiffRect = &rect
	}

	if !outcome.Divergent {
		return output, nil
	}

	s, err := storage.New(ctx, logger, storage.Config{
		Backend: o.storageBackend,
		File: storage.FileConfig{
			Directory: o.directory,
		},
		S3: storage.S3Config{
			Bucket:        o.s3Bucket,
			Prefix:        o.s3Prefix,
			EndpointURL:   o.s3EndpointURL,
			MaxRetryCount: o.maxRetryCount,
		},
	})
	if err != nil {
		return DiffOutput{}, xerrors.Errorf("failed to create storage backend: %w", err)
	}

	recorder := &artifact.Recorder{
		Storage:   s,
		Logger:    logger,
		Thumbnail: o.thumbnail,
	}
	output.Artifacts, err = recorder.Record(ctx, outcome, goldenPath)
	return output, err
}

// seed stores the candidate as the first golden, re-encoded as PNG.
func seed(goldenPath string, candidatePath string) error {
	candidate, err := codec.DecodeFile(candidatePath)
	if err != nil {
		return xerrors.Errorf("failed to load candidate image: %w", err)
	}
	data, err := codec.EncodePNG(candidate)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return xerrors.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, data, 0644); err != nil {
		return xerrors.Errorf("failed to write golden image: %w", err)
	}
	return nil
}

func report(ctx context.Context, logger *slog.Logger, o options, output DiffOutput) error {
	if o.callbackURL == "" {
		return json.NewEncoder(os.Stdout).Encode(output)
	}

	body, err := json.Marshal(output)
	if err != nil {
		return xerrors.Errorf("failed to encode result: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPatch, o.callbackURL, bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := retry.NewClient(logger, o.maxRetryCount).Do(request)
	if err != nil {
		return xerrors.Errorf("failed to call %s: %w", o.callbackURL, err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode >= 300 {
		return xerrors.Errorf("callback %s answered %s", o.callbackURL, response.Status)
	}
	return nil
}
