package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"snapshot-delta/internal/raster"
)

const fixture = `! SKTEXTSIMPLE
3 2
0xff000080 0x00ff00ff 0x0000ffff
0x00 0x80 0xff
`

func TestDecodeText(t *testing.T) {
	r := MustDecodeText(fixture)

	want := []uint32{
		0x80FF0000, 0xFF00FF00, 0xFF0000FF,
		0xFF000000, 0xFF808080, 0xFFFFFFFF,
	}
	if r.Width != 3 || r.Height != 2 {
		t.Fatalf("Expected 3x2, got %dx%d", r.Width, r.Height)
	}
	if diff := cmp.Diff(want, r.Pix); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDecodeText_Invalid(t *testing.T) {
	for name, input := range map[string]string{
		"Header":      "! SKTEXT\n1 1\n0x00\n",
		"Dimensions":  "! SKTEXTSIMPLE\none one\n",
		"Empty":       "! SKTEXTSIMPLE\n0 4\n",
		"Negative":    "! SKTEXTSIMPLE\n-1 -1\n",
		"WrapsToZero": "! SKTEXTSIMPLE\n4294967296 4294967296\n0x00\n",
		"TooLarge":    "! SKTEXTSIMPLE\n3037000500 3037000500\n",
		"Budget":      "! SKTEXTSIMPLE\n65536 65536\n",
		"Huge":        "! SKTEXTSIMPLE\n99999999999999999999 1\n",
		"TooManyRows": "! SKTEXTSIMPLE\n1 1\n0x00\n0x00\n",
		"TooManyCols": "! SKTEXTSIMPLE\n1 1\n0x00 0x00\n",
		"PixelFormat": "! SKTEXTSIMPLE\n1 1\n0x000\n",
		"PixelDigits": "! SKTEXTSIMPLE\n1 1\n0xzz\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeText(strings.NewReader(input))
			if !errors.Is(err, InvalidTextError) {
				t.Errorf("Expected InvalidTextError, got %v", err)
			}
		})
	}
}

func TestDecodeBytes_OversizedText(t *testing.T) {
	for _, input := range []string{
		"! SKTEXTSIMPLE\n4294967296 4294967296\n0x00\n",
		"! SKTEXTSIMPLE\n3037000500 3037000500\n",
	} {
		if _, err := DecodeBytes([]byte(input)); !errors.Is(err, InvalidTextError) {
			t.Errorf("Expected InvalidTextError for %q, got %v", input, err)
		}
	}
}

func TestDecode_OversizedPNG(t *testing.T) {
	// A bare PNG signature and IHDR announcing 100000x100000 RGBA pixels.
	ihdr := make([]byte, 17)
	copy(ihdr, "IHDR")
	binary.BigEndian.PutUint32(ihdr[4:], 100000)
	binary.BigEndian.PutUint32(ihdr[8:], 100000)
	ihdr[12] = 8
	ihdr[13] = 6

	var data bytes.Buffer
	data.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&data, binary.BigEndian, uint32(13))
	data.Write(ihdr)
	_ = binary.Write(&data, binary.BigEndian, crc32.ChecksumIEEE(ihdr))

	if _, _, err := Decode(&data); !errors.Is(err, raster.InvalidRasterError) {
		t.Errorf("Expected InvalidRasterError, got %v", err)
	}
}

func TestEncodeText(t *testing.T) {
	var buffer bytes.Buffer
	if err := EncodeText(&buffer, MustDecodeText(fixture)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := `! SKTEXTSIMPLE
3 2
0xff000080 0x00ff00ff 0x0000ffff
0x000000ff 0x808080ff 0xffffffff
`
	if diff := cmp.Diff(want, buffer.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDecode(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		r, format, err := Decode(strings.NewReader(fixture))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if format != "sktext" {
			t.Errorf("Expected sktext, got %s", format)
		}
		if !r.Equal(MustDecodeText(fixture)) {
			t.Errorf("Decoded raster does not match")
		}
	})

	t.Run("PNG", func(t *testing.T) {
		want := MustDecodeText(fixture)

		data, err := EncodePNG(want)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		got, format, err := Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if format != "png" {
			t.Errorf("Expected png, got %s", format)
		}
		if diff := cmp.Diff(want.Pix, got.Pix); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("JPEG", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		for i := range img.Pix {
			img.Pix[i] = 0xFF
		}
		var buffer bytes.Buffer
		if err := jpeg.Encode(&buffer, img, nil); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		got, format, err := Decode(&buffer)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if format != "jpeg" {
			t.Errorf("Expected jpeg, got %s", format)
		}
		if a, _, _, _ := raster.Channels(got.ARGB(3, 3)); a != 0xFF {
			t.Errorf("Expected opaque pixel, got alpha %d", a)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		_, _, err := Decode(strings.NewReader("not an image"))
		if !errors.Is(err, UnknownFormatError) {
			t.Errorf("Expected UnknownFormatError, got %v", err)
		}
	})
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden.txt")
	if err := os.WriteFile(path, []byte(fixture), 0644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.ARGB(0, 0) != 0x80FF0000 {
		t.Errorf("Expected 0x80FF0000, got %#08x", got.ARGB(0, 0))
	}

	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestEncodePNG_Invalid(t *testing.T) {
	if _, err := EncodePNG(&raster.Raster{Width: 1, Height: 1}); !errors.Is(err, raster.InvalidRasterError) {
		t.Errorf("Expected InvalidRasterError, got %v", err)
	}
}
