package image

import (
	"snapshot-delta/internal/raster"
)

const (
	outlineColor     = 0xFFFF0000
	outlineThickness = 3
	// Regions closer than this are reported as one.
	mergeDistance = 10
)

type Rectangle struct {
	X      int
	Y      int
	Width  int
	Height int
}

// SmallestDiffRect returns the bounding box of every coordinate at which a
// and b differ. A coordinate outside one raster but inside the other always
// differs.
//
// The box is only reported when it spans at least two columns and two rows:
// differences confined to a single row, a single column or a single pixel
// yield false, exactly like no difference at all.
//
// Both rasters are validated first; an invalid one fails with
// raster.InvalidRasterError.
func SmallestDiffRect(a *raster.Raster, b *raster.Raster) (Rectangle, bool, error) {
	if err := a.Validate(); err != nil {
		return Rectangle{}, false, err
	}
	if err := b.Validate(); err != nil {
		return Rectangle{}, false, err
	}

	maxWidth := max(a.Width, b.Width)
	maxHeight := max(a.Height, b.Height)

	left, right, top, bottom := -1, -1, -1, -1
	for y := 0; y < maxHeight; y++ {
		for x := 0; x < maxWidth; x++ {
			aIn := a.InBounds(x, y)
			bIn := b.InBounds(x, y)
			if aIn && bIn && a.ARGB(x, y) == b.ARGB(x, y) {
				continue
			}
			if !aIn && !bIn {
				continue
			}

			if x < left || left == -1 {
				left = x
			}
			if x > right {
				right = x
			}
			if y < top || top == -1 {
				top = y
			}
			if y > bottom {
				bottom = y
			}
		}
	}

	diffWidth := right - left
	diffHeight := bottom - top
	if diffWidth <= 0 || diffHeight <= 0 {
		return Rectangle{}, false, nil
	}
	return Rectangle{
		X:      left,
		Y:      top,
		Width:  diffWidth + 1,
		Height: diffHeight + 1,
	}, true, nil
}

// RectangleDiff groups differing pixels into 8-connected regions, merges
// regions that overlap or nearly touch, and accepts the candidate when the
// merged regions cover at most threshold of the compared area.
type RectangleDiff struct {
	threshold float64
}

func NewRectangleDiff(threshold float64) *RectangleDiff {
	return &RectangleDiff{
		threshold: threshold,
	}
}

func (r *RectangleDiff) Compare(golden *raster.Raster, candidate *raster.Raster) DiffResult {
	bounds := unionBounds(golden, candidate)
	width := bounds.Dx()
	height := bounds.Dy()

	diffMap := make([][]bool, height)
	for i := range diffMap {
		diffMap[i] = make([]bool, width)
	}

	var diffPixelCount int64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !golden.InBounds(x, y) || !candidate.InBounds(x, y) || golden.ARGB(x, y) != candidate.ARGB(x, y) {
				diffMap[y][x] = true
				diffPixelCount++
			}
		}
	}

	totalPixelCount := int64(width * height)
	if diffPixelCount == 0 {
		return Identical{}
	}

	rectangles := r.findRectangles(diffMap, width, height)

	var diffArea int64
	for _, rect := range rectangles {
		diffArea += int64(rect.Width * rect.Height)
	}
	if float64(diffArea)/float64(totalPixelCount) > r.threshold {
		return Different{
			NumDifferentPixels: diffPixelCount,
			NumTotalPixels:     totalPixelCount,
		}
	}

	return Similar{
		NumSimilarPixels: diffPixelCount,
		NumTotalPixels:   totalPixelCount,
		Highlights:       r.outline(candidate, width, height, rectangles),
	}
}

func (r *RectangleDiff) findRectangles(diffMap [][]bool, width int, height int) []Rectangle {
	visited := make([][]bool, height)
	for i := range visited {
		visited[i] = make([]bool, width)
	}

	var rectangles []Rectangle
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if diffMap[y][x] && !visited[y][x] {
				rectangles = append(rectangles, r.findBoundingBox(diffMap, visited, x, y, width, height))
			}
		}
	}

	return r.mergeRectangles(rectangles)
}

// findBoundingBox flood-fills the region containing (startX, startY).
func (r *RectangleDiff) findBoundingBox(diffMap [][]bool, visited [][]bool, startX int, startY int, width int, height int) Rectangle {
	type point struct {
		x int
		y int
	}

	minX, minY := startX, startY
	maxX, maxY := startX, startY

	queue := []point{{startX, startY}}
	visited[startY][startX] = true

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		minX = min(minX, p.x)
		maxX = max(maxX, p.x)
		minY = min(minY, p.y)
		maxY = max(maxY, p.y)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx := p.x + dx
				ny := p.y + dy
				if nx >= 0 && nx < width && ny >= 0 && ny < height &&
					diffMap[ny][nx] && !visited[ny][nx] {
					visited[ny][nx] = true
					queue = append(queue, point{nx, ny})
				}
			}
		}
	}

	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}
}

func (r *RectangleDiff) mergeRectangles(rects []Rectangle) []Rectangle {
	if len(rects) <= 1 {
		return rects
	}

	merged := make([]Rectangle, 0, len(rects))
	used := make([]bool, len(rects))

	for i := 0; i < len(rects); i++ {
		if used[i] {
			continue
		}

		current := rects[i]
		for mergedAny := true; mergedAny; {
			mergedAny = false
			for j := i + 1; j < len(rects); j++ {
				if used[j] {
					continue
				}
				if current.Overlaps(rects[j].Inset(-mergeDistance)) {
					current = current.Union(rects[j])
					used[j] = true
					mergedAny = true
				}
			}
		}

		merged = append(merged, current)
	}

	return merged
}

// outline draws each rectangle onto a copy of the candidate, padded to the
// compared area.
func (r *RectangleDiff) outline(candidate *raster.Raster, width int, height int, rectangles []Rectangle) *raster.Raster {
	result := raster.New(width, height)
	for y := 0; y < candidate.Height; y++ {
		copy(result.Pix[y*width:y*width+candidate.Width], candidate.Pix[y*candidate.Width:(y+1)*candidate.Width])
	}

	set := func(x int, y int) {
		if result.InBounds(x, y) {
			result.SetARGB(x, y, outlineColor)
		}
	}

	for _, rect := range rectangles {
		for thickness := 0; thickness < outlineThickness; thickness++ {
			for x := rect.X - thickness; x < rect.X+rect.Width+thickness; x++ {
				set(x, rect.Y-thickness)
				set(x, rect.Y+rect.Height+thickness)
			}
			for y := rect.Y - thickness; y < rect.Y+rect.Height+thickness; y++ {
				set(rect.X-thickness, y)
				set(rect.X+rect.Width+thickness, y)
			}
		}
	}

	return result
}

// Overlaps reports whether the two rectangles share any pixel.
func (r Rectangle) Overlaps(o Rectangle) bool {
	return !(r.X+r.Width <= o.X || o.X+o.Width <= r.X ||
		r.Y+r.Height <= o.Y || o.Y+o.Height <= r.Y)
}

// Inset shrinks r by n on every side; a negative n grows it.
func (r Rectangle) Inset(n int) Rectangle {
	return Rectangle{
		X:      r.X + n,
		Y:      r.Y + n,
		Width:  r.Width - 2*n,
		Height: r.Height - 2*n,
	}
}

// Union is the smallest rectangle containing both.
func (r Rectangle) Union(o Rectangle) Rectangle {
	minX := min(r.X, o.X)
	minY := min(r.Y, o.Y)
	maxX := max(r.X+r.Width, o.X+o.Width)
	maxY := max(r.Y+r.Height, o.Y+o.Height)
	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}
