package codec

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"snapshot-delta/internal/raster"
)

// The plain text format used for hand-written test fixtures:
//
//	! SKTEXTSIMPLE
//	width height
//	0xRRGGBBAA 0xRRGGBBAA ...
//
// A pixel may also be written as 0xXX, an opaque gray.
const textHeader = "! SKTEXTSIMPLE\n"

var InvalidTextError = xerrors.New("invalid sktext image")

func init() {
	image.RegisterFormat("sktext", textHeader, decodeText, decodeTextConfig)
}

func textDimensions(reader *bufio.Reader) (int, int, error) {
	header, err := reader.ReadString('\n')
	if err != nil || header != textHeader {
		return 0, 0, xerrors.Errorf("bad header %q: %w", header, InvalidTextError)
	}

	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, 0, xerrors.Errorf("failed to read dimensions: %w", err)
	}
	var width, height int
	if n, err := fmt.Sscanf(line, "%d %d", &width, &height); err != nil || n != 2 {
		return 0, 0, xerrors.Errorf("bad dimensions %q: %w", strings.TrimSpace(line), InvalidTextError)
	}
	if err := raster.CheckSize(width, height); err != nil {
		return 0, 0, xerrors.Errorf("bad dimensions %dx%d: %w", width, height, InvalidTextError)
	}
	return width, height, nil
}

// DecodeText reads the text format straight into a raster.
func DecodeText(r io.Reader) (*raster.Raster, error) {
	reader := bufio.NewReader(r)
	width, height, err := textDimensions(reader)
	if err != nil {
		return nil, err
	}

	result := raster.New(width, height)
	y := 0
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, xerrors.Errorf("failed to read row %d: %w", y, readErr)
		}

		fields := strings.Fields(line)
		if len(fields) > 0 {
			if y >= height {
				return nil, xerrors.Errorf("more than %d rows: %w", height, InvalidTextError)
			}
			if len(fields) > width {
				return nil, xerrors.Errorf("row %d has %d pixels, want %d: %w", y, len(fields), width, InvalidTextError)
			}
			for x, field := range fields {
				argb, err := parseTextPixel(field)
				if err != nil {
					return nil, xerrors.Errorf("pixel (%d,%d): %w", x, y, err)
				}
				result.SetARGB(x, y, argb)
			}
			y++
		}

		if readErr == io.EOF {
			break
		}
	}

	return result, nil
}

func parseTextPixel(field string) (uint32, error) {
	if !strings.HasPrefix(field, "0x") || (len(field) != 4 && len(field) != 10) {
		return 0, xerrors.Errorf("%q is neither 0xRRGGBBAA nor 0xXX: %w", field, InvalidTextError)
	}
	v, err := strconv.ParseUint(field[2:], 16, 32)
	if err != nil {
		return 0, xerrors.Errorf("%q: %w", field, InvalidTextError)
	}

	if len(field) == 4 {
		gray := int(v)
		return raster.Pack(0xFF, gray, gray, gray), nil
	}
	// RGBA on disk, ARGB in memory.
	return uint32(v>>8) | uint32(v&0xFF)<<24, nil
}

// EncodeText writes r in the text format, one row per line.
func EncodeText(w io.Writer, r *raster.Raster) error {
	if err := r.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s%d %d\n", textHeader, r.Width, r.Height); err != nil {
		return xerrors.Errorf("failed to write header: %w", err)
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if x > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			argb := r.ARGB(x, y)
			if _, err := fmt.Fprintf(bw, "0x%08x", argb<<8|argb>>24); err != nil {
				return xerrors.Errorf("failed to write pixel (%d,%d): %w", x, y, err)
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func decodeText(r io.Reader) (image.Image, error) {
	return DecodeText(r)
}

func decodeTextConfig(r io.Reader) (image.Config, error) {
	width, height, err := textDimensions(bufio.NewReader(r))
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      width,
		Height:     height,
	}, nil
}

// MustDecodeText is for fixtures in tests.
func MustDecodeText(s string) *raster.Raster {
	r, err := DecodeText(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("failed to decode text image: %v", err))
	}
	return r
}
