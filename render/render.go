// Package render rasterizes pages into RGBA pixel buffers. It walks
// the content operator stream with a small graphics state machine and
// paints paths and text through a scanline rasterizer. Operators
// outside its vocabulary are skipped and reported, never fatal.
package render

import (
	"context"
	"fmt"
	"math"

	"leanpdf/content"
	"leanpdf/coords"
	"leanpdf/filters"
	"leanpdf/fonts"
	"leanpdf/object"
	"leanpdf/observability"
	"leanpdf/pagetree"
)

// Pixmap is a row-major RGBA buffer. Stride is in bytes.
type Pixmap struct {
	Width    int
	Height   int
	Stride   int
	HasAlpha bool
	Samples  []byte
}

// At returns the pixel at (x, y) as r, g, b, a.
func (p *Pixmap) At(x, y int) (byte, byte, byte, byte) {
	off := y*p.Stride + x*4
	return p.Samples[off], p.Samples[off+1], p.Samples[off+2], p.Samples[off+3]
}

// Result carries the buffer plus the operators that were skipped.
// A non-empty Degraded list means best-effort output, not failure.
type Result struct {
	Pix      *Pixmap
	Degraded []string
}

// Renderer rasterizes pages of one document.
type Renderer struct {
	store    *object.Store
	pipeline *filters.Pipeline
	face     *fonts.Face
	log      observability.Logger
}

const (
	maxOps       = 1 << 20
	maxFormDepth = 8
)

func New(store *object.Store, pipeline *filters.Pipeline, log observability.Logger) (*Renderer, error) {
	face, err := fonts.Builtin()
	if err != nil {
		return nil, fmt.Errorf("load builtin face: %w", err)
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Renderer{store: store, pipeline: pipeline, face: face, log: log}, nil
}

// RenderPage rasterizes one page at the given zoom over a white
// background. Output is deterministic for a fixed (page, zoom) pair.
func (r *Renderer) RenderPage(ctx context.Context, page *pagetree.Page, zoom float64) (*Result, error) {
	if zoom <= 0 {
		return nil, fmt.Errorf("zoom must be positive, got %g", zoom)
	}
	w, h := coords.RotatedSize(page.MediaBox.Width(), page.MediaBox.Height(), page.Rotate)
	pw := int(math.Ceil(w * zoom))
	ph := int(math.Ceil(h * zoom))
	if pw < 1 || ph < 1 {
		return nil, fmt.Errorf("page %d has a degenerate media box", page.Index)
	}

	pix := &Pixmap{Width: pw, Height: ph, Stride: pw * 4, HasAlpha: true,
		Samples: make([]byte, pw*ph*4)}
	for i := range pix.Samples {
		pix.Samples[i] = 0xFF
	}

	// Shift the media box to the origin before the page transform.
	base := coords.Translate(-page.MediaBox.LLX, -page.MediaBox.LLY).
		Multiply(coords.PageTransform(page.MediaBox.Width(), page.MediaBox.Height(), page.Rotate, zoom))

	st := newPageState(pix, base)
	st.renderer = r

	data, err := content.Decoded(ctx, r.store, page.Contents, r.pipeline)
	if err != nil {
		return nil, fmt.Errorf("decode page %d content: %w", page.Index, err)
	}
	ops, err := content.Parse(data)
	if err != nil {
		// A truncated stream still paints what it managed to parse.
		st.degrade(fmt.Sprintf("content parse: %v", err))
	}
	if err := st.run(ctx, ops, page.Resources, 0); err != nil {
		return nil, err
	}
	r.renderWidgets(ctx, page, st)

	if len(st.degraded) > 0 {
		r.log.Warn("page rendered with skipped constructs",
			observability.Int("page", page.Index),
			observability.Int("skipped", len(st.degraded)))
	}
	return &Result{Pix: pix, Degraded: st.degraded}, nil
}

// renderWidgets paints visible widget annotation appearances so form
// updates show up in the very next render.
func (r *Renderer) renderWidgets(ctx context.Context, page *pagetree.Page, st *state) {
	annots, ok := r.store.ResolveArray(page.Dict, "Annots")
	if !ok {
		return
	}
	for _, item := range annots.Items {
		dict, ok := r.store.Resolve(item).(*object.Dict)
		if !ok {
			continue
		}
		if sub, _ := dict.Name("Subtype"); sub != "Widget" {
			continue
		}
		if f, _ := r.store.ResolveInt(dict, "F"); f&2 != 0 {
			continue
		}
		stream := r.appearanceStream(dict)
		if stream == nil {
			continue
		}
		rect, ok := r.store.ResolveArray(dict, "Rect")
		if !ok {
			continue
		}
		nums := rect.Floats()
		if len(nums) < 4 {
			continue
		}
		if err := st.runAppearance(ctx, stream, nums); err != nil {
			st.degrade(fmt.Sprintf("widget appearance: %v", err))
		}
	}
}

// appearanceStream picks /AP /N, honoring /AS for stateful widgets.
func (r *Renderer) appearanceStream(dict *object.Dict) *object.Stream {
	ap, ok := r.store.ResolveDict(dict, "AP")
	if !ok {
		return nil
	}
	nObj, ok := ap.Get("N")
	if !ok {
		return nil
	}
	switch n := r.store.Resolve(nObj).(type) {
	case *object.Stream:
		return n
	case *object.Dict:
		as, _ := dict.Name("AS")
		if as == "" {
			as = "Off"
		}
		if st, ok := r.store.ResolveStream(n, as); ok {
			return st
		}
	}
	return nil
}
