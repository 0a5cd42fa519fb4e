package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// labelFace is the bitmap font used for burned-in labels.
var labelFace = basicfont.Face7x13

// DrawPolygon strokes a closed polygon onto dst.
//
// Consecutive points are joined by straight lines and the last point is joined back
// to the first. Each line pixel is stamped with a width x width square brush, so the
// stroke is width pixels thick regardless of the line's direction. A single point
// draws one brush stamp. Pixels outside dst are clipped.
func DrawPolygon(dst *image.NRGBA, pts []image.Point, c color.NRGBA, width int) {
	if len(pts) == 0 {
		return
	}
	if width < 1 {
		width = 1
	}
	if len(pts) == 1 {
		stamp(dst, pts[0].X, pts[0].Y, c, width)
		return
	}
	for i := range pts {
		next := pts[(i+1)%len(pts)]
		drawLine(dst, pts[i], next, c, width)
	}
}

// drawLine rasterizes a line segment with Bresenham's algorithm.
func drawLine(dst *image.NRGBA, from, to image.Point, c color.NRGBA, width int) {
	x0, y0 := from.X, from.Y
	x1, y1 := to.X, to.Y

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	for {
		stamp(dst, x0, y0, c, width)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// stamp fills a width x width square whose top-left corner is offset so that the
// square is centred on (x, y) for odd widths.
func stamp(dst *image.NRGBA, x, y int, c color.NRGBA, width int) {
	half := (width - 1) / 2
	r := image.Rect(x-half, y-half, x-half+width, y-half+width).Intersect(dst.Rect)
	for py := r.Min.Y; py < r.Max.Y; py++ {
		i := dst.PixOffset(r.Min.X, py)
		for px := r.Min.X; px < r.Max.X; px++ {
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = c.A
			i += 4
		}
	}
}

// LabelStyle controls how DrawLabel renders text.
type LabelStyle struct {
	// Color is the text colour.
	Color color.NRGBA

	// Scale magnifies the 7x13 base font. The glyphs are enlarged by the integer
	// factor max(1, round(Scale*2)) so a scale of 1.5 yields 39 pixel tall lines.
	Scale float64

	// Thickness is the stroke weight in pixels; 1 draws the glyphs as-is.
	Thickness int
}

// magnification converts a label scale into the integer glyph enlargement factor.
func (s LabelStyle) magnification() int {
	m := int(math.Round(s.Scale * 2))
	if m < 1 {
		m = 1
	}
	return m
}

// LabelSize returns the pixel width and height of text rendered with style.
func LabelSize(text string, style LabelStyle) (int, int) {
	m := style.magnification()
	w := font.MeasureString(labelFace, text).Ceil()
	h := labelFace.Metrics().Height.Ceil()
	t := style.Thickness
	if t < 1 {
		t = 1
	}
	return w*m + t - 1, h*m + t - 1
}

// DrawLabel burns text into dst with its baseline starting at origin.
//
// # Rendering
//
//  1. The text is drawn at 1x into an alpha mask using the 7x13 bitmap font.
//  2. The mask is enlarged with nearest-neighbour resampling so glyph edges stay hard.
//  3. Every covered mask pixel is stamped into dst with a Thickness-wide brush.
//
// The label is clipped to dst; text that falls entirely outside draws nothing.
func DrawLabel(dst *image.NRGBA, origin image.Point, text string, style LabelStyle) {
	if text == "" {
		return
	}

	metrics := labelFace.Metrics()
	ascent := metrics.Ascent.Ceil()
	w := font.MeasureString(labelFace, text).Ceil()
	h := metrics.Height.Ceil()

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: labelFace,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(text)

	m := style.magnification()
	scaled := imaging.Resize(mask, w*m, h*m, imaging.NearestNeighbor)

	thickness := style.Thickness
	if thickness < 1 {
		thickness = 1
	}

	top := origin.Y - ascent*m
	sb := scaled.Bounds()
	for y := sb.Min.Y; y < sb.Max.Y; y++ {
		for x := sb.Min.X; x < sb.Max.X; x++ {
			if scaled.Pix[scaled.PixOffset(x, y)+3] < 0x80 {
				continue
			}
			stamp(dst, origin.X+x+(thickness-1)/2, top+y+(thickness-1)/2, style.Color, thickness)
		}
	}
}

// CopyToNRGBA returns a new NRGBA copy of img with its origin at (0, 0).
// The source image is never modified.
func CopyToNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
