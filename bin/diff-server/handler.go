package main

import (
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"

	"snapshot-delta/internal/artifact"
	"snapshot-delta/internal/codec"
	diffimage "snapshot-delta/internal/diff/image"
	"snapshot-delta/internal/golden"
	"snapshot-delta/internal/label"
	"snapshot-delta/internal/myhttp"
	"snapshot-delta/internal/raster"
)

type handler struct {
	maxPercentDifferent float64
	differ              string
	labels              bool
	maxPixels           int
	comparisons         *prometheus.CounterVec
}

func newHandler(maxPercentDifferent float64, differ string, labels bool, maxPixels int, registerer prometheus.Registerer) (*handler, error) {
	if _, err := diffimage.NewDiffer(differ); err != nil {
		return nil, err
	}

	comparisons := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "comparisons_total",
		Help: "Number of image comparisons by result.",
	}, []string{"result"})
	if err := registerer.Register(comparisons); err != nil {
		return nil, xerrors.Errorf("failed to register comparisons counter: %w", err)
	}

	return &handler{
		maxPercentDifferent: maxPercentDifferent,
		differ:              differ,
		labels:              labels,
		maxPixels:           maxPixels,
		comparisons:         comparisons,
	}, nil
}

type DiffResponse struct {
	Name              string               `json:"name,omitempty"`
	DiffData          string               `json:"diffData"`
	Result            string               `json:"result"`
	PercentDifference float64              `json:"percentDifference"`
	Divergent         bool                 `json:"divergent"`
	Message           string               `json:"message,omitempty"`
	DiffRect          *diffimage.Rectangle `json:"diffRect,omitempty"`
}

func (h *handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		formError(w, r, err)
		return
	}

	maxPercentDifferent := h.maxPercentDifferent
	if v := r.FormValue("maxPercentDifferent"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			myhttp.Error(ctx, w, http.StatusBadRequest, xerrors.Errorf("invalid maxPercentDifferent %q", v))
			return
		}
		maxPercentDifferent = f
	}

	differName := h.differ
	if v := r.FormValue("differ"); v != "" {
		differName = v
	}
	differ, err := diffimage.NewDiffer(differName)
	if err != nil {
		myhttp.Error(ctx, w, http.StatusBadRequest, err)
		return
	}

	labels := h.labels
	if v := r.FormValue("labels"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			myhttp.Error(ctx, w, http.StatusBadRequest, xerrors.Errorf("invalid labels %q", v))
			return
		}
		labels = b
	}

	goldenRaster, err := formRaster(r, "golden")
	if err != nil {
		myhttp.Error(ctx, w, http.StatusBadRequest, err)
		return
	}
	candidateRaster, err := formRaster(r, "candidate")
	if err != nil {
		myhttp.Error(ctx, w, http.StatusBadRequest, err)
		return
	}

	var opts []diffimage.DeltaOption
	if labels {
		opts = append(opts, label.Default())
	}
	verifier := golden.NewVerifier(golden.Config{MaxPercentDifferent: maxPercentDifferent}, differ, opts...)

	outcome, err := verifier.AssertSimilar(r.FormValue("name"), goldenRaster, candidateRaster)
	if err != nil {
		myhttp.Error(ctx, w, http.StatusUnprocessableEntity, err)
		return
	}

	data, err := codec.EncodePNG(outcome.Comparison.Image)
	if err != nil {
		myhttp.Error(ctx, w, http.StatusInternalServerError, err)
		return
	}

	result := diffimage.Kind(outcome.Comparison.Result)
	h.comparisons.WithLabelValues(result).Inc()
	myhttp.Logger(ctx).Debug("compared images", "result", result, "percentDifference", outcome.Comparison.PercentDifference)

	response := DiffResponse{
		Name:              outcome.Name,
		DiffData:          base64.StdEncoding.EncodeToString(data),
		Result:            result,
		PercentDifference: outcome.Comparison.PercentDifference,
		Divergent:         outcome.Divergent,
		Message:           outcome.Message,
	}
	rect, ok, err := diffimage.SmallestDiffRect(goldenRaster, candidateRaster)
	if err != nil {
		myhttp.Error(ctx, w, http.StatusUnprocessableEntity, err)
		return
	}
	if ok {
		response.DiffRect = &rect
	}
	myhttp.WriteJSON(ctx, w, http.StatusOK, response)
}

// handleThumbnail rescales the uploaded image to width x height, or to
// thumbnail size when neither is given, and answers with a PNG.
func (h *handler) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		formError(w, r, err)
		return
	}

	src, err := formRaster(r, "image")
	if err != nil {
		myhttp.Error(ctx, w, http.StatusBadRequest, err)
		return
	}

	width, err := formInt(r, "width")
	if err != nil {
		myhttp.Error(ctx, w, http.StatusBadRequest, err)
		return
	}
	height, err := formInt(r, "height")
	if err != nil {
		myhttp.Error(ctx, w, http.StatusBadRequest, err)
		return
	}

	// Estimated in floating point so absurd sizes cannot overflow.
	targetWidth, targetHeight := float64(width), float64(height)
	switch {
	case width == 0 && height == 0:
		targetWidth, targetHeight = 0, 0
	case width == 0:
		targetWidth = float64(height) * float64(src.Width) / float64(src.Height)
	case height == 0:
		targetHeight = float64(width) * float64(src.Height) / float64(src.Width)
	}
	if targetWidth*targetHeight > float64(h.maxPixels) {
		myhttp.Error(ctx, w, http.StatusBadRequest, xerrors.Errorf("thumbnail of %.0fx%.0f exceeds %d pixels", targetWidth, targetHeight, h.maxPixels))
		return
	}

	var scaled *raster.Raster
	switch {
	case width == 0 && height == 0:
		scaled, err = artifact.Thumbnail(src)
	case width == 0:
		scaled, err = raster.Scale(src, float64(height)/float64(src.Height), float64(height)/float64(src.Height))
	case height == 0:
		scaled, err = raster.Scale(src, float64(width)/float64(src.Width), float64(width)/float64(src.Width))
	default:
		scaled, err = raster.Rescale(src, width, height)
	}
	if err != nil {
		myhttp.Error(ctx, w, http.StatusBadRequest, err)
		return
	}

	data, err := codec.EncodePNG(scaled)
	if err != nil {
		myhttp.Error(ctx, w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		myhttp.Logger(ctx).Info("failed to write response", "error", err)
	}
}

func formRaster(r *http.Request, field string) (*raster.Raster, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, xerrors.Errorf("missing %s image: %w", field, err)
	}
	defer func(file multipart.File) {
		_ = file.Close()
	}(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s image: %w", field, err)
	}
	decoded, err := codec.DecodeBytes(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode %s image: %w", field, err)
	}
	return decoded, nil
}

func formInt(r *http.Request, field string) (int, error) {
	v := r.FormValue(field)
	if v == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, xerrors.Errorf("invalid %s %q", field, v)
	}
	return i, nil
}

func formError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesError *http.MaxBytesError
	if errors.As(err, &maxBytesError) {
		myhttp.Error(r.Context(), w, http.StatusRequestEntityTooLarge, err)
		return
	}
	myhttp.Error(r.Context(), w, http.StatusBadRequest, err)
}
