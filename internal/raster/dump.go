package raster

import (
	"bufio"
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// WritePixelData writes one "x,y: [r, g, b]" line per pixel, row by row.
// Alpha is omitted so dumps of scaled thumbnails can be diffed as text.
func WritePixelData(w io.Writer, r *Raster) error {
	out := bufio.NewWriter(w)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			_, red, green, blue := Channels(r.ARGB(x, y))
			if _, err := fmt.Fprintf(out, "%d,%d: [%d, %d, %d]\n", x, y, red, green, blue); err != nil {
				return xerrors.Errorf("failed to write pixel data: %w", err)
			}
		}
	}
	if err := out.Flush(); err != nil {
		return xerrors.Errorf("failed to flush pixel data: %w", err)
	}
	return nil
}
