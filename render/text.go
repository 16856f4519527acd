package render

import (
	gofont "github.com/go-text/typesetting/font"
	ot "github.com/go-text/typesetting/font/opentype"

	"leanpdf/coords"
)

// showText shapes the string with the builtin face and fills each
// glyph outline under the text rendering matrix. Documents name their
// own base fonts but the builtin face stands in for all of them.
func (st *state) showText(text string) {
	if st.renderer == nil || st.gs.fontSize == 0 || text == "" {
		return
	}
	glyphs := st.renderer.face.Shape(text, st.gs.fontSize)
	runes := []rune(text)
	oneToOne := len(glyphs) == len(runes)

	for i, g := range glyphs {
		st.drawGlyph(g.GID, g.XOffset, g.YOffset)
		adv := g.XAdvance + st.gs.charSpace
		if oneToOne && runes[i] == ' ' {
			adv += st.gs.wordSpace
		}
		st.advanceText(adv)
	}
}

func (st *state) drawGlyph(gid gofont.GID, xoff, yoff float64) {
	outline, scale, ok := st.renderer.face.Outline(gid)
	if !ok || len(outline.Segments) == 0 {
		return
	}
	size := st.gs.fontSize
	m := coords.Scale(scale*size*st.gs.horizScale, scale*size).
		Multiply(coords.Translate(xoff*st.gs.horizScale, st.gs.rise+yoff)).
		Multiply(st.tm).
		Multiply(st.gs.ctm)

	p := newPath()
	at := func(sp gofont.SegmentPoint) coords.Point {
		return m.Transform(coords.Point{X: float64(sp.X), Y: float64(sp.Y)})
	}
	for _, seg := range outline.Segments {
		switch seg.Op {
		case ot.SegmentOpMoveTo:
			p.close()
			p.moveTo(at(seg.Args[0]))
		case ot.SegmentOpLineTo:
			p.lineTo(at(seg.Args[0]))
		case ot.SegmentOpQuadTo:
			start := p.current()
			ctrl := at(seg.Args[0])
			end := at(seg.Args[1])
			c1 := coords.Point{
				X: start.X + 2.0/3.0*(ctrl.X-start.X),
				Y: start.Y + 2.0/3.0*(ctrl.Y-start.Y),
			}
			c2 := coords.Point{
				X: end.X + 2.0/3.0*(ctrl.X-end.X),
				Y: end.Y + 2.0/3.0*(ctrl.Y-end.Y),
			}
			p.curveTo(c1, c2, end)
		case ot.SegmentOpCubeTo:
			p.curveTo(at(seg.Args[0]), at(seg.Args[1]), at(seg.Args[2]))
		}
	}
	p.close()
	p.fill(st.pix, st.gs.fill)
}
