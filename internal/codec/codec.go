package codec

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	"golang.org/x/xerrors"

	"snapshot-delta/internal/raster"
)

var UnknownFormatError = xerrors.New("unknown image format")

// Decode reads any registered format (png, jpeg, gif, sktext) and returns the
// canonical raster and the format name. Headers announcing more than
// raster.MaxPixels fail before any pixel buffer is allocated.
func Decode(r io.Reader) (*raster.Raster, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", xerrors.Errorf("failed to read image: %w", err)
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", UnknownFormatError
		}
		return nil, "", xerrors.Errorf("failed to decode image header: %w", err)
	}
	if err := raster.CheckSize(config.Width, config.Height); err != nil {
		return nil, "", xerrors.Errorf("%s image: %w", format, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", xerrors.Errorf("failed to decode image: %w", err)
	}

	result, err := raster.Normalize(img)
	if err != nil {
		return nil, "", xerrors.Errorf("failed to normalize %s image: %w", format, err)
	}
	return result, format, nil
}

func DecodeBytes(data []byte) (*raster.Raster, error) {
	result, _, err := Decode(bytes.NewReader(data))
	return result, err
}

func DecodeFile(path string) (*raster.Raster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	result, _, err := Decode(file)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", path, err)
	}
	return result, nil
}

// EncodePNG writes r losslessly. Artifacts are always PNG, whatever the name
// they are stored under.
func EncodePNG(r *raster.Raster) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, r.NRGBA()); err != nil {
		return nil, xerrors.Errorf("failed to encode png: %w", err)
	}
	return buffer.Bytes(), nil
}
