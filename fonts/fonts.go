// Package fonts carries the metrics of the built-in base font and a
// shaping face used for rasterization.
package fonts

import "fmt"

// BaseFontName is the standard font every generated text run and
// appearance stream references. Viewers ship it, so nothing is
// embedded.
const BaseFontName = "Helvetica"

// helveticaWidths holds the AFM advance widths (1/1000 em) for the
// printable ASCII range, indexed from 0x20.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, // space .. )
	389, 584, 278, 333, 278, 278, 556, 556, 556, 556, // * .. 3
	556, 556, 556, 556, 556, 556, 278, 278, 584, 584, // 4 .. =
	584, 556, 1015, 667, 667, 722, 722, 667, 611, 778, // > .. G
	722, 278, 500, 667, 556, 833, 722, 778, 667, 778, // H .. Q
	722, 667, 611, 722, 667, 944, 667, 667, 611, 278, // R .. [
	278, 278, 469, 556, 333, 556, 556, 500, 556, 556, // \ .. e
	278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // f .. o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, // p .. y
	500, 334, 260, 334, 584, // z .. ~
}

const missingWidth = 556

// GlyphAdvance returns the Helvetica advance for r in 1/1000 em.
// Characters outside the table fall back to the average width, which
// keeps measurement monotonic for arbitrary input.
func GlyphAdvance(r rune) float64 {
	if r >= 0x20 && r <= 0x7E {
		return float64(helveticaWidths[r-0x20])
	}
	return missingWidth
}

// TextWidth measures s at the given size in PDF user-space units.
func TextWidth(s string, size float64) float64 {
	var w float64
	for _, r := range s {
		w += GlyphAdvance(r)
	}
	return w * size / 1000
}

// EscapeText renders s as the inside of a PDF literal string, escaping
// delimiters and folding non-ASCII runes to octal byte escapes.
func EscapeText(s string) string {
	out := make([]byte, 0, len(s)+8)
	for _, r := range s {
		switch r {
		case '\\':
			out = append(out, '\\', '\\')
		case '(':
			out = append(out, '\\', '(')
		case ')':
			out = append(out, '\\', ')')
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		case '\t':
			out = append(out, '\\', 't')
		default:
			if r > 0xFF {
				// No byte encoding for this rune in the base font.
				out = append(out, '?')
			} else if r < 0x20 || r > 0x7E {
				// Latin-1 fold for the base font's byte encoding.
				out = append(out, []byte(fmt.Sprintf("\\%03o", byte(r)))...)
			} else {
				out = append(out, byte(r))
			}
		}
	}
	return string(out)
}
