package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"snapshot-delta/internal/codec"
	diffimage "snapshot-delta/internal/diff/image"
	"snapshot-delta/internal/raster"
)

func createTestRaster(width, height int, argb uint32) *raster.Raster {
	r := raster.New(width, height)
	for i := range r.Pix {
		r.Pix[i] = argb
	}
	return r
}

func encode(t *testing.T, r *raster.Raster) []byte {
	t.Helper()
	data, err := codec.EncodePNG(r)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return data
}

func multipartRequest(t *testing.T, target string, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, target, &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return request
}

func newTestHandler(t *testing.T) *handler {
	t.Helper()
	h, err := newHandler(0.1, "pixel-perfect", false, 10_000, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return h
}

func TestHandleDiff(t *testing.T) {
	t.Parallel()

	white := encode(t, createTestRaster(10, 10, 0xFFFFFFFF))
	dotted := createTestRaster(10, 10, 0xFFFFFFFF)
	dotted.SetARGB(4, 5, 0xFF000000)

	t.Run("Identical", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t)

		recorder := httptest.NewRecorder()
		h.handleDiff(recorder, multipartRequest(t, "/diff", map[string][]byte{
			"golden":    white,
			"candidate": white,
		}, nil))

		if diff := cmp.Diff(http.StatusOK, recorder.Code); diff != "" {
			t.Fatalf("(-want +got):\n%s", diff)
		}
		var got DiffResponse
		if err := json.NewDecoder(recorder.Body).Decode(&got); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		data, err := base64.StdEncoding.DecodeString(got.DiffData)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		delta, err := codec.DecodeBytes(data)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if diff := cmp.Diff([2]int{30, 10}, [2]int{delta.Width, delta.Height}); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		got.DiffData = ""
		if diff := cmp.Diff(DiffResponse{Result: "identical"}, got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(1.0, testutil.ToFloat64(h.comparisons.WithLabelValues("identical"))); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("Different", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t)

		recorder := httptest.NewRecorder()
		h.handleDiff(recorder, multipartRequest(t, "/diff", map[string][]byte{
			"golden":    white,
			"candidate": encode(t, dotted),
		}, map[string]string{"name": "dot.png", "maxPercentDifferent": "0"}))

		if diff := cmp.Diff(http.StatusOK, recorder.Code); diff != "" {
			t.Fatalf("(-want +got):\n%s", diff)
		}
		var got DiffResponse
		if err := json.NewDecoder(recorder.Body).Decode(&got); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		got.DiffData = ""
		want := DiffResponse{
			Name:              "dot.png",
			Result:            "different",
			PercentDifference: 0.99609375,
			Divergent:         true,
			Message:           "Images differ (by 0.996094%)",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("DiffRect", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t)
		block := createTestRaster(10, 10, 0xFFFFFFFF)
		for y := 2; y < 5; y++ {
			for x := 3; x < 7; x++ {
				block.SetARGB(x, y, 0xFF000000)
			}
		}

		recorder := httptest.NewRecorder()
		h.handleDiff(recorder, multipartRequest(t, "/diff", map[string][]byte{
			"golden":    white,
			"candidate": encode(t, block),
		}, nil))

		var got DiffResponse
		if err := json.NewDecoder(recorder.Body).Decode(&got); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if diff := cmp.Diff(&diffimage.Rectangle{X: 3, Y: 2, Width: 4, Height: 3}, got.DiffRect); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	for name, tc := range map[string]struct {
		files  map[string][]byte
		fields map[string]string
	}{
		"MissingCandidate": {
			files: map[string][]byte{"golden": white},
		},
		"UndecodableGolden": {
			files: map[string][]byte{"golden": []byte("not an image"), "candidate": white},
		},
		"UnknownDiffer": {
			files:  map[string][]byte{"golden": white, "candidate": white},
			fields: map[string]string{"differ": "fuzzy"},
		},
		"InvalidThreshold": {
			files:  map[string][]byte{"golden": white, "candidate": white},
			fields: map[string]string{"maxPercentDifferent": "lots"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newTestHandler(t)

			recorder := httptest.NewRecorder()
			h.handleDiff(recorder, multipartRequest(t, "/diff", tc.files, tc.fields))

			if diff := cmp.Diff(http.StatusBadRequest, recorder.Code); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleThumbnail(t *testing.T) {
	t.Parallel()

	source := encode(t, createTestRaster(40, 20, 0xFF336699))

	for name, tc := range map[string]struct {
		fields map[string]string
		want   [2]int
	}{
		"Exact":      {fields: map[string]string{"width": "8", "height": "8"}, want: [2]int{8, 8}},
		"WidthOnly":  {fields: map[string]string{"width": "10"}, want: [2]int{10, 5}},
		"HeightOnly": {fields: map[string]string{"height": "5"}, want: [2]int{10, 5}},
		"Default":    {want: [2]int{40, 20}},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newTestHandler(t)

			recorder := httptest.NewRecorder()
			h.handleThumbnail(recorder, multipartRequest(t, "/thumbnail", map[string][]byte{"image": source}, tc.fields))

			if diff := cmp.Diff(http.StatusOK, recorder.Code); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("image/png", recorder.Header().Get("Content-Type")); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			got, err := codec.DecodeBytes(recorder.Body.Bytes())
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, [2]int{got.Width, got.Height}); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}

	for name, fields := range map[string]map[string]string{
		"NegativeWidth":  {"width": "-1"},
		"AboveMaxPixels": {"width": "100000", "height": "100000"},
		"Overflow":       {"width": "4294967296", "height": "4294967296"},
		"DerivedHeight":  {"width": "1000"},
		"NotANumber":     {"height": "tall"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newTestHandler(t)

			recorder := httptest.NewRecorder()
			h.handleThumbnail(recorder, multipartRequest(t, "/thumbnail", map[string][]byte{"image": source}, fields))

			if diff := cmp.Diff(http.StatusBadRequest, recorder.Code); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewHandler_UnknownDiffer(t *testing.T) {
	if _, err := newHandler(0.1, "fuzzy", false, 10_000, prometheus.NewRegistry()); err == nil {
		t.Errorf("Expected an error for an unknown differ")
	}
}
