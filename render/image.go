package render

import (
	"context"
	"fmt"
	"math"

	"leanpdf/content"
	"leanpdf/coords"
	"leanpdf/object"
)

func pt(x, y float64) coords.Point { return coords.Point{X: x, Y: y} }

// sampler returns the color of one source pixel. ok false means the
// pixel is masked out.
type sampler func(x, y int) (rgb [3]float64, ok bool)

// drawImage paints an image XObject into the unit square mapped by the
// CTM. Eight-bit gray and RGB samples and one-bit image masks render
// exactly; other depths and spaces paint a placeholder box.
func (st *state) drawImage(ctx context.Context, stream *object.Stream) {
	r := st.renderer
	w, _ := r.store.ResolveInt(stream.Dict, "Width")
	h, _ := r.store.ResolveInt(stream.Dict, "Height")
	if w <= 0 || h <= 0 {
		return
	}
	data, err := r.pipeline.DecodeStream(ctx, stream, r.store.Resolve)
	if err != nil {
		st.degrade(fmt.Sprintf("image decode: %v", err))
		st.paintPlaceholder()
		return
	}
	s, ok := st.imageSampler(stream.Dict, data, int(w), int(h))
	if !ok {
		st.paintPlaceholder()
		return
	}
	st.blit(s, int(w), int(h))
}

func (st *state) imageSampler(dict *object.Dict, data []byte, w, h int) (sampler, bool) {
	r := st.renderer
	if mask, _ := dict.Bool("ImageMask"); mask {
		return maskSampler(data, w, h, st.gs.fill), true
	}
	bpc, _ := r.store.ResolveInt(dict, "BitsPerComponent")
	cs, _ := r.store.ResolveName(dict, "ColorSpace")
	if bpc != 8 {
		st.degrade(fmt.Sprintf("image with %d bits per component approximated", bpc))
		return nil, false
	}
	switch cs {
	case "DeviceRGB", "RGB":
		return rgbSampler(data, w, h), true
	case "DeviceGray", "G":
		return graySampler(data, w, h), true
	default:
		st.degrade(fmt.Sprintf("image color space /%s approximated", cs))
		return nil, false
	}
}

func rgbSampler(data []byte, w, h int) sampler {
	return func(x, y int) ([3]float64, bool) {
		off := (y*w + x) * 3
		if off+2 >= len(data) {
			return [3]float64{}, false
		}
		return [3]float64{
			float64(data[off]) / 255,
			float64(data[off+1]) / 255,
			float64(data[off+2]) / 255,
		}, true
	}
}

func graySampler(data []byte, w, h int) sampler {
	return func(x, y int) ([3]float64, bool) {
		off := y*w + x
		if off >= len(data) {
			return [3]float64{}, false
		}
		v := float64(data[off]) / 255
		return [3]float64{v, v, v}, true
	}
}

// maskSampler reads a 1-bit stencil. An unset bit paints the current
// fill color, a set bit leaves the backdrop.
func maskSampler(data []byte, w, h int, fill [3]float64) sampler {
	stride := (w + 7) / 8
	return func(x, y int) ([3]float64, bool) {
		off := y*stride + x/8
		if off >= len(data) {
			return [3]float64{}, false
		}
		if data[off]&(0x80>>uint(x%8)) != 0 {
			return [3]float64{}, false
		}
		return fill, true
	}
}

// blit maps source pixels through the CTM with nearest-neighbor
// sampling. The CTM places the image in the unit square with row zero
// at the top edge.
func (st *state) blit(s sampler, w, h int) {
	inv, err := st.gs.ctm.Inverse()
	if err != nil {
		return
	}
	minX, minY, maxX, maxY := st.unitSquareBounds()
	for dy := minY; dy < maxY; dy++ {
		for dx := minX; dx < maxX; dx++ {
			u := inv.Transform(pt(float64(dx)+0.5, float64(dy)+0.5))
			if u.X < 0 || u.X >= 1 || u.Y < 0 || u.Y >= 1 {
				continue
			}
			sx := int(u.X * float64(w))
			sy := int((1 - u.Y) * float64(h))
			if sx >= w {
				sx = w - 1
			}
			if sy >= h {
				sy = h - 1
			}
			rgb, ok := s(sx, sy)
			if !ok {
				continue
			}
			st.setPixel(dx, dy, rgb)
		}
	}
}

// paintPlaceholder fills the image's unit square with a mid gray so
// unsupported images keep their footprint on the page.
func (st *state) paintPlaceholder() {
	p := newPath()
	p.moveTo(st.dev(0, 0))
	p.lineTo(st.dev(1, 0))
	p.lineTo(st.dev(1, 1))
	p.lineTo(st.dev(0, 1))
	p.close()
	p.fill(st.pix, [3]float64{0.5, 0.5, 0.5})
}

func (st *state) unitSquareBounds() (minX, minY, maxX, maxY int) {
	corners := []struct{ x, y float64 }{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	lo := pt(math.Inf(1), math.Inf(1))
	hi := pt(math.Inf(-1), math.Inf(-1))
	for _, c := range corners {
		p := st.dev(c.x, c.y)
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	minX = clampInt(int(math.Floor(lo.X)), 0, st.pix.Width)
	minY = clampInt(int(math.Floor(lo.Y)), 0, st.pix.Height)
	maxX = clampInt(int(math.Ceil(hi.X)), 0, st.pix.Width)
	maxY = clampInt(int(math.Ceil(hi.Y)), 0, st.pix.Height)
	return
}

func (st *state) setPixel(x, y int, rgb [3]float64) {
	off := y*st.pix.Stride + x*4
	st.pix.Samples[off] = byte(clamp01(rgb[0])*255 + 0.5)
	st.pix.Samples[off+1] = byte(clamp01(rgb[1])*255 + 0.5)
	st.pix.Samples[off+2] = byte(clamp01(rgb[2])*255 + 0.5)
	st.pix.Samples[off+3] = 0xFF
}

// drawInlineImage paints a BI..ID..EI image. The operator's operands
// hold the abbreviated key-value header. Only unfiltered payloads
// render; filtered ones paint the placeholder.
func (st *state) drawInlineImage(op content.Operation) {
	dict := object.NewDict()
	for i := 0; i+1 < len(op.Operands); i += 2 {
		key, ok := op.Operands[i].(object.Name)
		if !ok {
			continue
		}
		dict.Set(expandInlineKey(key), op.Operands[i+1])
	}
	if _, filtered := dict.Get("Filter"); filtered {
		st.degrade("filtered inline image approximated")
		st.paintPlaceholder()
		return
	}
	w, _ := dict.Int("Width")
	h, _ := dict.Int("Height")
	if w <= 0 || h <= 0 {
		return
	}
	s, ok := st.imageSampler(dict, op.Image, int(w), int(h))
	if !ok {
		st.paintPlaceholder()
		return
	}
	st.blit(s, int(w), int(h))
}

// expandInlineKey maps the inline image abbreviations onto the full
// image dictionary names.
func expandInlineKey(key object.Name) object.Name {
	switch key {
	case "W":
		return "Width"
	case "H":
		return "Height"
	case "BPC":
		return "BitsPerComponent"
	case "CS":
		return "ColorSpace"
	case "F":
		return "Filter"
	case "IM":
		return "ImageMask"
	case "D":
		return "Decode"
	case "DP":
		return "DecodeParms"
	case "I":
		return "Interpolate"
	}
	return key
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
