package fonts

import (
	"bytes"
	"sync"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// Face wraps a parsed outline font for shaping and glyph geometry.
// The rasterizer draws every text run with it as a stand-in for
// whatever base font the document names.
type Face struct {
	face *gofont.Face
	upem float64
}

var (
	builtinOnce sync.Once
	builtinFace *Face
	builtinErr  error
)

// Builtin parses the bundled regular face once and returns it.
func Builtin() (*Face, error) {
	builtinOnce.Do(func() {
		f, err := gofont.ParseTTF(bytes.NewReader(goregular.TTF))
		if err != nil {
			builtinErr = err
			return
		}
		builtinFace = &Face{face: f, upem: float64(f.Upem())}
	})
	return builtinFace, builtinErr
}

// Glyph is one positioned glyph in text space, scaled to the requested
// size in PDF units.
type Glyph struct {
	GID      gofont.GID
	XAdvance float64
	XOffset  float64
	YOffset  float64
}

// Shape runs the text through the shaper at the given size. Offsets
// and advances come back in PDF user-space units.
func (f *Face) Shape(text string, size float64) []Glyph {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	shaper := &shaping.HarfbuzzShaper{}
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      f.face,
		Size:      fixed.Int26_6(size * 64),
		Script:    language.Latin,
		Language:  language.DefaultLanguage(),
	}
	out := shaper.Shape(input)
	glyphs := make([]Glyph, 0, len(out.Glyphs))
	for _, g := range out.Glyphs {
		glyphs = append(glyphs, Glyph{
			GID:      g.GlyphID,
			XAdvance: fixedToFloat(g.XAdvance),
			XOffset:  fixedToFloat(g.XOffset),
			YOffset:  fixedToFloat(g.YOffset),
		})
	}
	return glyphs
}

// Outline returns the glyph's contour segments in font units together
// with the scale factor from font units to a 1pt em.
func (f *Face) Outline(gid gofont.GID) (gofont.GlyphOutline, float64, bool) {
	data := f.face.GlyphData(gid)
	outline, ok := data.(gofont.GlyphOutline)
	if !ok {
		return gofont.GlyphOutline{}, 0, false
	}
	return outline, 1 / f.upem, true
}

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }
