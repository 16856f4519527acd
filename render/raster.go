package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"leanpdf/coords"
)

// curveSteps is the flattening resolution for cubic segments. Sixteen
// chords keep glyph-sized curves under a quarter pixel of error.
const curveSteps = 16

type subpath struct {
	pts    []coords.Point
	closed bool
}

// path accumulates device-space subpaths. Curves are flattened to line
// chords as they arrive so fill and stroke share one representation.
type path struct {
	subs []subpath
}

func newPath() *path { return &path{} }

func (p *path) moveTo(pt coords.Point) {
	p.subs = append(p.subs, subpath{pts: []coords.Point{pt}})
}

func (p *path) lineTo(pt coords.Point) {
	if len(p.subs) == 0 {
		p.moveTo(pt)
		return
	}
	last := &p.subs[len(p.subs)-1]
	last.pts = append(last.pts, pt)
}

func (p *path) curveTo(c1, c2, end coords.Point) {
	start := p.current()
	for i := 1; i <= curveSteps; i++ {
		t := float64(i) / curveSteps
		p.lineTo(cubicAt(start, c1, c2, end, t))
	}
}

func (p *path) close() {
	if len(p.subs) > 0 {
		p.subs[len(p.subs)-1].closed = true
	}
}

func (p *path) current() coords.Point {
	if len(p.subs) == 0 {
		return coords.Point{}
	}
	last := p.subs[len(p.subs)-1]
	if len(last.pts) == 0 {
		return coords.Point{}
	}
	return last.pts[len(last.pts)-1]
}

func (p *path) empty() bool {
	for _, sub := range p.subs {
		if len(sub.pts) > 1 {
			return false
		}
	}
	return true
}

func cubicAt(p0, c1, c2, p1 coords.Point, t float64) coords.Point {
	u := 1 - t
	a := u * u * u
	b := 3 * u * u * t
	c := 3 * u * t * t
	d := t * t * t
	return coords.Point{
		X: a*p0.X + b*c1.X + c*c2.X + d*p1.X,
		Y: a*p0.Y + b*c1.Y + c*c2.Y + d*p1.Y,
	}
}

// fill paints the path with the nonzero winding rule, antialiased.
func (p *path) fill(pix *Pixmap, rgb [3]float64) {
	if p.empty() {
		return
	}
	ras := vector.NewRasterizer(pix.Width, pix.Height)
	ras.DrawOp = draw.Over
	for _, sub := range p.subs {
		if len(sub.pts) < 2 {
			continue
		}
		ras.MoveTo(float32(sub.pts[0].X), float32(sub.pts[0].Y))
		for _, pt := range sub.pts[1:] {
			ras.LineTo(float32(pt.X), float32(pt.Y))
		}
		ras.ClosePath()
	}
	dst := pix.RGBA()
	ras.Draw(dst, dst.Bounds(), image.NewUniform(toRGBA(rgb)), image.Point{})
}

// strokePath paints each path segment as a filled quadrilateral of the
// current line width. Joins and caps are butt-style; at the widths page
// content uses the difference is under a pixel.
func (st *state) strokePath() {
	if st.path.empty() {
		return
	}
	width := st.gs.lineWidth * st.ctmScale()
	if width < 1 {
		width = 1
	}
	half := width / 2
	quads := newPath()
	for _, sub := range st.path.subs {
		pts := sub.pts
		if sub.closed && len(pts) > 1 {
			pts = append(append([]coords.Point{}, pts...), pts[0])
		}
		for i := 0; i+1 < len(pts); i++ {
			appendSegmentQuad(quads, pts[i], pts[i+1], half)
		}
	}
	quads.fill(st.pix, st.gs.stroke)
}

func appendSegmentQuad(p *path, a, b coords.Point, half float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx := -dy / length * half
	ny := dx / length * half
	p.moveTo(coords.Point{X: a.X + nx, Y: a.Y + ny})
	p.lineTo(coords.Point{X: b.X + nx, Y: b.Y + ny})
	p.lineTo(coords.Point{X: b.X - nx, Y: b.Y - ny})
	p.lineTo(coords.Point{X: a.X - nx, Y: a.Y - ny})
	p.close()
}

// ctmScale is the average scale factor of the CTM, used to carry line
// widths from user space into device pixels.
func (st *state) ctmScale() float64 {
	m := st.gs.ctm
	det := math.Abs(m[0]*m[3] - m[1]*m[2])
	return math.Sqrt(det)
}

// RGBA wraps the buffer as a stdlib image sharing the same samples.
func (p *Pixmap) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    p.Samples,
		Stride: p.Stride,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

func toRGBA(rgb [3]float64) color.RGBA {
	return color.RGBA{
		R: byte(clamp01(rgb[0])*255 + 0.5),
		G: byte(clamp01(rgb[1])*255 + 0.5),
		B: byte(clamp01(rgb[2])*255 + 0.5),
		A: 0xFF,
	}
}
