package detection

import (
	"image"
)

// Padding is the margin added on every side of the located digit before it
// is cropped. Each edge is clipped to the image independently.
const Padding = 20

// BoundingBox is an axis-aligned rectangle in pixel coordinates.
//
// A valid box for a W x H image satisfies 0 <= X, 0 <= Y, X+Width <= W and
// Y+Height <= H.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the box as an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Empty reports whether the box has no area.
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Point is a pixel position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Location is the result of LocateForeground.
type Location struct {
	// Box is the padded, clipped region to crop.
	Box BoundingBox `json:"box"`

	// Found is false when the mask had no external foreground region and Box
	// covers the whole image instead.
	Found bool `json:"found"`

	// Area is the pixel count of the selected region (0 when not found).
	Area int `json:"area"`

	// Regions is the number of external regions considered.
	Regions int `json:"regions"`
}

// LocateForeground finds the largest external foreground region of a binary
// mask and returns its bounding box expanded by Padding.
//
// Foreground is any non-zero pixel. Regions are 8-connected. A region is
// external when it touches the image edge or background that is 4-connected
// to the edge; regions sitting entirely inside a hole of another region
// (the counter of a 0, 6, 8 or 9) are ignored. Size is measured by pixel
// count, and the first region found in scan order wins ties.
//
// When no external region exists the box covers the whole image and Found is
// false. LocateForeground never fails.
func LocateForeground(mask *image.Gray) Location {
	bounds := mask.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	whole := Location{
		Box: BoundingBox{X: bounds.Min.X, Y: bounds.Min.Y, Width: width, Height: height},
	}
	if width == 0 || height == 0 {
		return whole
	}

	fg := make([][]bool, height)
	for y := 0; y < height; y++ {
		fg[y] = make([]bool, width)
		row := mask.Pix[y*mask.Stride : y*mask.Stride+width]
		for x, v := range row {
			fg[y][x] = v != 0
		}
	}

	outside := floodOutside(fg, width, height)

	visited := make([][]bool, height)
	for y := 0; y < height; y++ {
		visited[y] = make([]bool, width)
	}

	var best []Point
	regions := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !fg[y][x] || visited[y][x] {
				continue
			}
			region := make([]Point, 0)
			floodFill(fg, visited, x, y, width, height, &region)
			if !isExternal(region, outside, width, height) {
				continue
			}
			regions++
			if len(region) > len(best) {
				best = region
			}
		}
	}

	if len(best) == 0 {
		return whole
	}

	minX, minY := width, height
	maxX, maxY := 0, 0
	for _, p := range best {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	x0 := max(0, minX-Padding)
	y0 := max(0, minY-Padding)
	x1 := min(width, maxX+1+Padding)
	y1 := min(height, maxY+1+Padding)

	return Location{
		Box: BoundingBox{
			X:      x0 + bounds.Min.X,
			Y:      y0 + bounds.Min.Y,
			Width:  x1 - x0,
			Height: y1 - y0,
		},
		Found:   true,
		Area:    len(best),
		Regions: regions,
	}
}

// floodFill collects the 8-connected foreground component containing
// (startX, startY). It is iterative so large strokes cannot overflow the
// goroutine stack.
func floodFill(fg, visited [][]bool, startX, startY, width, height int, region *[]Point) {
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y][p.X] || !fg[p.Y][p.X] {
			continue
		}

		visited[p.Y][p.X] = true
		*region = append(*region, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
}

// floodOutside marks the background reachable from the image edge through
// 4-connected steps. Background left unmarked belongs to holes.
func floodOutside(fg [][]bool, width, height int) [][]bool {
	outside := make([][]bool, height)
	for y := 0; y < height; y++ {
		outside[y] = make([]bool, width)
	}

	stack := make([]Point, 0, 2*(width+height))
	for x := 0; x < width; x++ {
		stack = append(stack, Point{X: x, Y: 0}, Point{X: x, Y: height - 1})
	}
	for y := 0; y < height; y++ {
		stack = append(stack, Point{X: 0, Y: y}, Point{X: width - 1, Y: y})
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if outside[p.Y][p.X] || fg[p.Y][p.X] {
			continue
		}

		outside[p.Y][p.X] = true
		stack = append(stack,
			Point{X: p.X + 1, Y: p.Y},
			Point{X: p.X - 1, Y: p.Y},
			Point{X: p.X, Y: p.Y + 1},
			Point{X: p.X, Y: p.Y - 1},
		)
	}

	return outside
}

// isExternal reports whether a region touches the image edge or a
// 4-neighbour of outside background. With 8-connected foreground an
// 8-adjacent outside pixel always implies a 4-adjacent one, so checking the
// four direct neighbours is enough.
func isExternal(region []Point, outside [][]bool, width, height int) bool {
	for _, p := range region {
		if p.X == 0 || p.Y == 0 || p.X == width-1 || p.Y == height-1 {
			return true
		}
		if outside[p.Y][p.X-1] || outside[p.Y][p.X+1] ||
			outside[p.Y-1][p.X] || outside[p.Y+1][p.X] {
			return true
		}
	}
	return false
}
