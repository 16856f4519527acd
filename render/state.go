package render

import (
	"context"
	"fmt"

	"leanpdf/content"
	"leanpdf/coords"
	"leanpdf/object"
)

// gstate is the subset of the graphics state the rasterizer honors.
type gstate struct {
	ctm        coords.Matrix
	fill       [3]float64
	stroke     [3]float64
	lineWidth  float64
	fontSize   float64
	charSpace  float64
	wordSpace  float64
	horizScale float64
	leading    float64
	rise       float64
}

type state struct {
	renderer *Renderer
	pix      *Pixmap

	gs    gstate
	stack []gstate
	path  *path

	tm, tlm coords.Matrix

	degraded     []string
	degradedSeen map[string]bool
	opCount      int
}

func newPageState(pix *Pixmap, base coords.Matrix) *state {
	return &state{
		pix: pix,
		gs: gstate{
			ctm:        base,
			lineWidth:  1,
			horizScale: 1,
		},
		path:         newPath(),
		degradedSeen: map[string]bool{},
	}
}

// degrade records one skipped construct. Each message is kept once.
func (st *state) degrade(msg string) {
	if st.degradedSeen[msg] {
		return
	}
	st.degradedSeen[msg] = true
	st.degraded = append(st.degraded, msg)
}

// run executes one operator list against the given resource dictionary.
// depth guards Form XObject recursion.
func (st *state) run(ctx context.Context, ops []content.Operation, res *object.Dict, depth int) error {
	for _, op := range ops {
		if st.opCount++; st.opCount > maxOps {
			return fmt.Errorf("content stream exceeds %d operators", maxOps)
		}
		if st.opCount%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		st.apply(ctx, op, res, depth)
	}
	return nil
}

func (st *state) apply(ctx context.Context, op content.Operation, res *object.Dict, depth int) {
	switch op.Operator {

	// General graphics state.
	case "q":
		st.stack = append(st.stack, st.gs)
	case "Q":
		if n := len(st.stack); n > 0 {
			st.gs = st.stack[n-1]
			st.stack = st.stack[:n-1]
		}
	case "cm":
		if m, ok := matrixOperands(op.Operands); ok {
			st.gs.ctm = m.Multiply(st.gs.ctm)
		}
	case "w":
		if v, ok := numOperand(op.Operands, 0); ok {
			st.gs.lineWidth = v
		}
	case "gs", "j", "J", "M", "d", "ri", "i":
		// Ext state and line style details do not change what we paint.

	// Color. Pattern and separation spaces fall back to the operand
	// numbers we understand, or to black.
	case "g":
		if v, ok := numOperand(op.Operands, 0); ok {
			st.gs.fill = [3]float64{v, v, v}
		}
	case "G":
		if v, ok := numOperand(op.Operands, 0); ok {
			st.gs.stroke = [3]float64{v, v, v}
		}
	case "rg":
		if c, ok := rgbOperands(op.Operands); ok {
			st.gs.fill = c
		}
	case "RG":
		if c, ok := rgbOperands(op.Operands); ok {
			st.gs.stroke = c
		}
	case "k":
		if c, ok := cmykOperands(op.Operands); ok {
			st.gs.fill = c
		}
	case "K":
		if c, ok := cmykOperands(op.Operands); ok {
			st.gs.stroke = c
		}
	case "cs", "CS":
		// Color space selection; the next sc/scn carries the values.
	case "sc", "scn":
		st.gs.fill = componentColor(op.Operands)
	case "SC", "SCN":
		st.gs.stroke = componentColor(op.Operands)

	// Path construction.
	case "m":
		if x, y, ok := num2(op.Operands); ok {
			st.path.moveTo(st.dev(x, y))
		}
	case "l":
		if x, y, ok := num2(op.Operands); ok {
			st.path.lineTo(st.dev(x, y))
		}
	case "c":
		if p, ok := numsN(op.Operands, 6); ok {
			st.path.curveTo(st.dev(p[0], p[1]), st.dev(p[2], p[3]), st.dev(p[4], p[5]))
		}
	case "v":
		if p, ok := numsN(op.Operands, 4); ok {
			cur := st.path.current()
			st.path.curveTo(cur, st.dev(p[0], p[1]), st.dev(p[2], p[3]))
		}
	case "y":
		if p, ok := numsN(op.Operands, 4); ok {
			end := st.dev(p[2], p[3])
			st.path.curveTo(st.dev(p[0], p[1]), end, end)
		}
	case "h":
		st.path.close()
	case "re":
		if p, ok := numsN(op.Operands, 4); ok {
			st.path.moveTo(st.dev(p[0], p[1]))
			st.path.lineTo(st.dev(p[0]+p[2], p[1]))
			st.path.lineTo(st.dev(p[0]+p[2], p[1]+p[3]))
			st.path.lineTo(st.dev(p[0], p[1]+p[3]))
			st.path.close()
		}

	// Path painting. Even-odd variants paint with the nonzero rule,
	// which matches for the simple shapes documents draw in practice.
	case "f", "F", "f*":
		st.path.fill(st.pix, st.gs.fill)
		st.path = newPath()
	case "S":
		st.strokePath()
		st.path = newPath()
	case "s":
		st.path.close()
		st.strokePath()
		st.path = newPath()
	case "B", "B*":
		st.path.fill(st.pix, st.gs.fill)
		st.strokePath()
		st.path = newPath()
	case "b", "b*":
		st.path.close()
		st.path.fill(st.pix, st.gs.fill)
		st.strokePath()
		st.path = newPath()
	case "n":
		st.path = newPath()
	case "W", "W*":
		st.degrade("clipping path ignored")

	// Text state and positioning.
	case "BT":
		st.tm = coords.Identity()
		st.tlm = coords.Identity()
	case "ET":
	case "Tf":
		// The operand font name is resolved to metrics at draw time;
		// every base font renders with the builtin face.
		if v, ok := numOperand(op.Operands, 1); ok {
			st.gs.fontSize = v
		}
	case "Tc":
		if v, ok := numOperand(op.Operands, 0); ok {
			st.gs.charSpace = v
		}
	case "Tw":
		if v, ok := numOperand(op.Operands, 0); ok {
			st.gs.wordSpace = v
		}
	case "Tz":
		if v, ok := numOperand(op.Operands, 0); ok {
			st.gs.horizScale = v / 100
		}
	case "TL":
		if v, ok := numOperand(op.Operands, 0); ok {
			st.gs.leading = v
		}
	case "Ts":
		if v, ok := numOperand(op.Operands, 0); ok {
			st.gs.rise = v
		}
	case "Tr":
		// Render mode; invisible text still advances, which the draw
		// path handles uniformly.
	case "Td":
		if x, y, ok := num2(op.Operands); ok {
			st.tlm = coords.Translate(x, y).Multiply(st.tlm)
			st.tm = st.tlm
		}
	case "TD":
		if x, y, ok := num2(op.Operands); ok {
			st.gs.leading = -y
			st.tlm = coords.Translate(x, y).Multiply(st.tlm)
			st.tm = st.tlm
		}
	case "Tm":
		if m, ok := matrixOperands(op.Operands); ok {
			st.tlm = m
			st.tm = m
		}
	case "T*":
		st.nextLine()

	// Text showing.
	case "Tj":
		if s, ok := stringOperand(op.Operands, 0); ok {
			st.showText(s)
		}
	case "'":
		st.nextLine()
		if s, ok := stringOperand(op.Operands, 0); ok {
			st.showText(s)
		}
	case "\"":
		if aw, ok := numOperand(op.Operands, 0); ok {
			st.gs.wordSpace = aw
		}
		if ac, ok := numOperand(op.Operands, 1); ok {
			st.gs.charSpace = ac
		}
		st.nextLine()
		if s, ok := stringOperand(op.Operands, 2); ok {
			st.showText(s)
		}
	case "TJ":
		arr, ok := arrayOperand(op.Operands, 0)
		if !ok {
			return
		}
		for _, item := range arr.Items {
			switch v := item.(type) {
			case object.String:
				st.showText(string(v.Data))
			case object.Integer:
				st.advanceText(-float64(v) / 1000 * st.gs.fontSize)
			case object.Real:
				st.advanceText(-float64(v) / 1000 * st.gs.fontSize)
			}
		}

	// XObjects.
	case "Do":
		name, ok := nameOperand(op.Operands, 0)
		if !ok {
			return
		}
		st.doXObject(ctx, name, res, depth)

	// Inline images.
	case "BI":
		// The scanner folds the whole BI..EI construct into ID.
	case "ID":
		st.drawInlineImage(op)

	// Marked content and compatibility sections carry no paint.
	case "BMC", "BDC", "EMC", "MP", "DP", "BX", "EX":

	case "sh":
		st.degrade("shading pattern ignored")
	case "d0", "d1":
		// Type 3 glyph metrics; nothing to paint here.

	default:
		st.degrade(fmt.Sprintf("operator %q ignored", op.Operator))
	}
}

// dev maps a user-space point through the current CTM.
func (st *state) dev(x, y float64) coords.Point {
	return st.gs.ctm.Transform(coords.Point{X: x, Y: y})
}

func (st *state) nextLine() {
	st.tlm = coords.Translate(0, -st.gs.leading).Multiply(st.tlm)
	st.tm = st.tlm
}

// advanceText moves the text matrix along the baseline by w text-space
// units, honoring horizontal scaling.
func (st *state) advanceText(w float64) {
	st.tm = coords.Translate(w*st.gs.horizScale, 0).Multiply(st.tm)
}

func (st *state) doXObject(ctx context.Context, name object.Name, res *object.Dict, depth int) {
	r := st.renderer
	if res == nil {
		st.degrade(fmt.Sprintf("XObject /%s has no resource dictionary", name))
		return
	}
	xobjs, ok := r.store.ResolveDict(res, "XObject")
	if !ok {
		st.degrade(fmt.Sprintf("XObject /%s not in resources", name))
		return
	}
	stream, ok := r.store.ResolveStream(xobjs, name)
	if !ok {
		st.degrade(fmt.Sprintf("XObject /%s not in resources", name))
		return
	}
	sub, _ := stream.Dict.Name("Subtype")
	switch sub {
	case "Form":
		if depth >= maxFormDepth {
			st.degrade("form XObject nesting too deep")
			return
		}
		if err := st.runForm(ctx, stream, depth+1); err != nil {
			st.degrade(fmt.Sprintf("form XObject /%s: %v", name, err))
		}
	case "Image":
		st.drawImage(ctx, stream)
	default:
		st.degrade(fmt.Sprintf("XObject subtype /%s ignored", sub))
	}
}

// runForm executes a Form XObject's content under a saved state,
// applying its /Matrix.
func (st *state) runForm(ctx context.Context, stream *object.Stream, depth int) error {
	r := st.renderer
	data, err := r.pipeline.DecodeStream(ctx, stream, r.store.Resolve)
	if err != nil {
		return err
	}
	ops, err := content.Parse(data)
	if err != nil {
		return err
	}
	saved := st.gs
	savedDepth := len(st.stack)
	if m, ok := stream.Dict.Array("Matrix"); ok {
		if fm, ok2 := matrixFromFloats(m.Floats()); ok2 {
			st.gs.ctm = fm.Multiply(st.gs.ctm)
		}
	}
	res, _ := r.store.ResolveDict(stream.Dict, "Resources")
	runErr := st.run(ctx, ops, res, depth)
	st.gs = saved
	st.stack = st.stack[:savedDepth]
	st.path = newPath()
	return runErr
}

// runAppearance maps a widget appearance stream's /BBox onto the
// annotation /Rect and executes it.
func (st *state) runAppearance(ctx context.Context, stream *object.Stream, rect []float64) error {
	llx := min2(rect[0], rect[2])
	lly := min2(rect[1], rect[3])
	w := abs2(rect[2] - rect[0])
	h := abs2(rect[3] - rect[1])
	if w <= 0 || h <= 0 {
		return nil
	}

	bbox := []float64{0, 0, w, h}
	if b, ok := stream.Dict.Array("BBox"); ok {
		if f := b.Floats(); len(f) >= 4 {
			bbox = f
		}
	}
	bw := abs2(bbox[2] - bbox[0])
	bh := abs2(bbox[3] - bbox[1])
	if bw == 0 || bh == 0 {
		return nil
	}

	saved := st.gs
	savedDepth := len(st.stack)
	fit := coords.Translate(-min2(bbox[0], bbox[2]), -min2(bbox[1], bbox[3])).
		Multiply(coords.Scale(w/bw, h/bh)).
		Multiply(coords.Translate(llx, lly))
	st.gs.ctm = fit.Multiply(st.gs.ctm)
	err := st.runForm(ctx, stream, 1)
	st.gs = saved
	st.stack = st.stack[:savedDepth]
	return err
}

// Operand helpers. Malformed operands drop the operation rather than
// failing the page.

func numValue(obj object.Object) (float64, bool) {
	switch v := obj.(type) {
	case object.Integer:
		return float64(v), true
	case object.Real:
		return float64(v), true
	}
	return 0, false
}

func numOperand(ops []object.Object, i int) (float64, bool) {
	if i >= len(ops) {
		return 0, false
	}
	return numValue(ops[i])
}

func num2(ops []object.Object) (float64, float64, bool) {
	if len(ops) < 2 {
		return 0, 0, false
	}
	x, ok1 := numValue(ops[len(ops)-2])
	y, ok2 := numValue(ops[len(ops)-1])
	return x, y, ok1 && ok2
}

func numsN(ops []object.Object, n int) ([]float64, bool) {
	if len(ops) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, ok := numValue(ops[len(ops)-n+i])
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func matrixOperands(ops []object.Object) (coords.Matrix, bool) {
	p, ok := numsN(ops, 6)
	if !ok {
		return coords.Matrix{}, false
	}
	return coords.Matrix{p[0], p[1], p[2], p[3], p[4], p[5]}, true
}

func matrixFromFloats(f []float64) (coords.Matrix, bool) {
	if len(f) < 6 {
		return coords.Matrix{}, false
	}
	return coords.Matrix{f[0], f[1], f[2], f[3], f[4], f[5]}, true
}

func rgbOperands(ops []object.Object) ([3]float64, bool) {
	p, ok := numsN(ops, 3)
	if !ok {
		return [3]float64{}, false
	}
	return [3]float64{clamp01(p[0]), clamp01(p[1]), clamp01(p[2])}, true
}

func cmykOperands(ops []object.Object) ([3]float64, bool) {
	p, ok := numsN(ops, 4)
	if !ok {
		return [3]float64{}, false
	}
	c, m, y, k := p[0], p[1], p[2], p[3]
	return [3]float64{
		clamp01((1 - c) * (1 - k)),
		clamp01((1 - m) * (1 - k)),
		clamp01((1 - y) * (1 - k)),
	}, true
}

// componentColor interprets sc/scn operands by arity: one number is
// gray, three are RGB, four are CMYK, anything else paints black.
func componentColor(ops []object.Object) [3]float64 {
	var nums []float64
	for _, op := range ops {
		if v, ok := numValue(op); ok {
			nums = append(nums, v)
		}
	}
	switch len(nums) {
	case 1:
		v := clamp01(nums[0])
		return [3]float64{v, v, v}
	case 3:
		return [3]float64{clamp01(nums[0]), clamp01(nums[1]), clamp01(nums[2])}
	case 4:
		c, _ := cmykOperands(ops)
		return c
	}
	return [3]float64{0, 0, 0}
}

func stringOperand(ops []object.Object, i int) (string, bool) {
	if i >= len(ops) {
		return "", false
	}
	s, ok := ops[i].(object.String)
	if !ok {
		return "", false
	}
	return string(s.Data), true
}

func nameOperand(ops []object.Object, i int) (object.Name, bool) {
	if i >= len(ops) {
		return "", false
	}
	n, ok := ops[i].(object.Name)
	return n, ok
}

func arrayOperand(ops []object.Object, i int) (*object.Array, bool) {
	if i >= len(ops) {
		return nil, false
	}
	a, ok := ops[i].(*object.Array)
	return a, ok
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func abs2(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
