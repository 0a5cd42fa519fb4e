package detection

import (
	"image"
)

// Bounds represents a rectangular bounding box in pixel coordinates.
//
// The coordinate convention follows standard image bounds:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner (exclusive)
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge (exclusive)
	Y2 int `json:"y2"` // Bottom edge (exclusive)
}

// Width returns X2 - X1.
func (b Bounds) Width() int { return b.X2 - b.X1 }

// Height returns Y2 - Y1.
func (b Bounds) Height() int { return b.Y2 - b.Y1 }

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// Region is one detected blob of mask pixels, described by its outer boundary.
type Region struct {
	// Outline is the closed outer boundary as a polygon. Only the vertices where the
	// boundary changes direction are kept, so a solid axis-aligned rectangle has
	// exactly four points. The last point connects back to the first.
	Outline []Point `json:"outline"`

	// Bounds is the bounding box of the blob.
	Bounds Bounds `json:"bounds"`

	// PixelCount is the number of mask pixels in the blob. Pixels of blobs nested
	// inside its holes are not included.
	PixelCount int `json:"pixel_count"`
}

// ImagePoints returns the outline as image.Point values for drawing.
func (r Region) ImagePoints() []image.Point {
	pts := make([]image.Point, len(r.Outline))
	for i, p := range r.Outline {
		pts[i] = image.Point{X: p.X, Y: p.Y}
	}
	return pts
}

// Neighbour offsets, ordered counter-clockwise on screen starting east.
var (
	dirX = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	dirY = [8]int{0, -1, -1, -1, 0, 1, 1, 1}
)

// dirIndex maps an offset (dy+1, dx+1) to its index in dirX/dirY.
var dirIndex = [3][3]int{
	{3, 2, 1},
	{4, -1, 0},
	{5, 6, 7},
}

// FindExternalRegions extracts the outer boundary of every blob in a binary mask.
//
// Any non-zero mask pixel is foreground. Only external boundaries are returned:
// a blob with holes yields a single outline, and blobs lying inside the hole of
// another blob are ignored entirely.
//
// # Algorithm
//
//  1. The mask is padded with one background pixel on every side so that blobs
//     touching the image border are traced like any other.
//  2. Background reachable from the padding through 4-connected background pixels
//     is marked as outside; enclosed background forms holes.
//  3. Foreground pixels are grouped into 8-connected blobs. A blob is external if
//     any of its pixels has an outside pixel as a 4-neighbour.
//  4. Each external blob's boundary is followed from its first pixel in raster
//     order, turning counter-clockwise around the current pixel to find the next
//     boundary pixel, until the first step repeats.
//  5. Runs of boundary pixels moving in the same direction are collapsed to their
//     end points.
//
// Regions are returned in raster order of their top-left-most pixel. Coordinates
// are in the mask's own coordinate space.
func FindExternalRegions(mask *image.Gray) []Region {
	mb := mask.Bounds()
	w, h := mb.Dx(), mb.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	pw, ph := w+2, h+2
	fg := make([]bool, pw*ph)
	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		for x, v := range row {
			if v != 0 {
				fg[(y+1)*pw+x+1] = true
			}
		}
	}

	outside := markOutside(fg, pw, ph)

	visited := make([]bool, pw*ph)
	regions := make([]Region, 0)
	var stack []int

	for y := 1; y <= h; y++ {
		for x := 1; x <= w; x++ {
			start := y*pw + x
			if !fg[start] || visited[start] {
				continue
			}

			// Collect the 8-connected blob.
			external := false
			count := 0
			minX, minY, maxX, maxY := x, y, x, y

			visited[start] = true
			stack = append(stack[:0], start)
			for len(stack) > 0 {
				i := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				count++

				cx, cy := i%pw, i/pw
				if cx < minX {
					minX = cx
				}
				if cx > maxX {
					maxX = cx
				}
				if cy > maxY {
					maxY = cy
				}

				if outside[i-1] || outside[i+1] || outside[i-pw] || outside[i+pw] {
					external = true
				}

				for d := 0; d < 8; d++ {
					n := i + dirY[d]*pw + dirX[d]
					if fg[n] && !visited[n] {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}

			if !external {
				continue
			}

			outline := compressChain(traceBorder(fg, pw, x, y))
			for j := range outline {
				outline[j].X += mb.Min.X - 1
				outline[j].Y += mb.Min.Y - 1
			}

			regions = append(regions, Region{
				Outline: outline,
				Bounds: Bounds{
					X1: minX - 1 + mb.Min.X,
					Y1: minY - 1 + mb.Min.Y,
					X2: maxX + mb.Min.X,
					Y2: maxY + mb.Min.Y,
				},
				PixelCount: count,
			})
		}
	}

	return regions
}

// markOutside flood-fills the background connected to the padding border.
// Uses 4-connectivity, the complement of the 8-connected foreground.
func markOutside(fg []bool, pw, ph int) []bool {
	outside := make([]bool, pw*ph)
	outside[0] = true
	stack := []int{0}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%pw, i/pw

		visit := func(n int) {
			if !fg[n] && !outside[n] {
				outside[n] = true
				stack = append(stack, n)
			}
		}
		if x > 0 {
			visit(i - 1)
		}
		if x < pw-1 {
			visit(i + 1)
		}
		if y > 0 {
			visit(i - pw)
		}
		if y < ph-1 {
			visit(i + pw)
		}
	}
	return outside
}

// traceBorder follows the outer boundary of the blob whose first raster pixel is
// (sx, sy) in the padded grid. The west neighbour of that pixel is background.
//
// A single isolated pixel yields a one-point boundary; a one-pixel-wide line is
// walked out and back, so interior line pixels appear twice.
func traceBorder(fg []bool, pw, sx, sy int) []Point {
	at := func(x, y int) bool { return fg[y*pw+x] }

	// Search clockwise from the west neighbour for the last boundary pixel.
	first := -1
	for k := 0; k < 8; k++ {
		d := (4 - k + 8) % 8
		if at(sx+dirX[d], sy+dirY[d]) {
			first = d
			break
		}
	}
	if first < 0 {
		return []Point{{X: sx, Y: sy}}
	}

	lastX, lastY := sx+dirX[first], sy+dirY[first]
	px, py := lastX, lastY
	cx, cy := sx, sy
	pts := make([]Point, 0, 64)

	for {
		d := dirIndex[py-cy+1][px-cx+1]
		nx, ny := px, py
		for k := 1; k <= 8; k++ {
			nd := (d + k) % 8
			tx, ty := cx+dirX[nd], cy+dirY[nd]
			if at(tx, ty) {
				nx, ny = tx, ty
				break
			}
		}

		pts = append(pts, Point{X: cx, Y: cy})
		if nx == sx && ny == sy && cx == lastX && cy == lastY {
			return pts
		}
		px, py = cx, cy
		cx, cy = nx, ny
	}
}

// compressChain drops boundary points that continue in the same direction as the
// previous step, keeping only the vertices of the polygon.
func compressChain(pts []Point) []Point {
	n := len(pts)
	if n < 3 {
		return pts
	}

	out := make([]Point, 0, 8)
	for i := 0; i < n; i++ {
		prev := pts[(i-1+n)%n]
		cur := pts[i]
		next := pts[(i+1)%n]
		if cur.X-prev.X != next.X-cur.X || cur.Y-prev.Y != next.Y-cur.Y {
			out = append(out, cur)
		}
	}
	if len(out) == 0 {
		out = append(out, pts[0])
	}
	return out
}
