package render

import (
	"context"
	"fmt"
	"testing"

	"leanpdf/filters"
	"leanpdf/object"
	"leanpdf/pagetree"
)

func testRenderer(t *testing.T, store *object.Store) *Renderer {
	t.Helper()
	r, err := New(store, filters.NewDefaultPipeline(filters.Limits{}), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// testPage builds a one-page fixture with the given media box and raw
// content stream.
func testPage(store *object.Store, w, h float64, rotate int, ops string) *pagetree.Page {
	dict := object.NewDict()
	st := object.NewStream(object.NewDict(), []byte(ops))
	st.Dict.Set("Length", object.Integer(len(ops)))
	return &pagetree.Page{
		Index:    0,
		Dict:     dict,
		MediaBox: pagetree.Rect{LLX: 0, LLY: 0, URX: w, URY: h},
		CropBox:  pagetree.Rect{LLX: 0, LLY: 0, URX: w, URY: h},
		Rotate:   rotate,
		Contents: st,
	}
}

func isDark(r, g, b byte) bool  { return r < 0x40 && g < 0x40 && b < 0x40 }
func isWhite(r, g, b byte) bool { return r > 0xF0 && g > 0xF0 && b > 0xF0 }

func TestRenderFilledRect(t *testing.T) {
	store := object.NewStore()
	page := testPage(store, 100, 100, 0, "0 0 0 rg\n10 10 50 50 re\nf")
	r := testRenderer(t, store)

	res, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if res.Pix.Width != 100 || res.Pix.Height != 100 {
		t.Fatalf("got %dx%d, want 100x100", res.Pix.Width, res.Pix.Height)
	}
	if len(res.Degraded) != 0 {
		t.Fatalf("unexpected degraded ops: %v", res.Degraded)
	}
	// Rect covers PDF y 10..60, which is device rows 40..90.
	if r0, g0, b0, _ := res.Pix.At(35, 65); !isDark(r0, g0, b0) {
		t.Errorf("pixel inside rect is %d,%d,%d, want dark", r0, g0, b0)
	}
	if r0, g0, b0, _ := res.Pix.At(5, 5); !isWhite(r0, g0, b0) {
		t.Errorf("pixel outside rect is %d,%d,%d, want white", r0, g0, b0)
	}
}

func TestRenderZoomScalesOutput(t *testing.T) {
	store := object.NewStore()
	page := testPage(store, 100, 50, 0, "")
	r := testRenderer(t, store)

	res, err := r.RenderPage(context.Background(), page, 2)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if res.Pix.Width != 200 || res.Pix.Height != 100 {
		t.Fatalf("got %dx%d, want 200x100", res.Pix.Width, res.Pix.Height)
	}
}

func TestRenderRotateSwapsDimensions(t *testing.T) {
	store := object.NewStore()
	page := testPage(store, 200, 100, 90, "0 0 0 rg\n0 0 20 20 re\nf")
	r := testRenderer(t, store)

	res, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if res.Pix.Width != 100 || res.Pix.Height != 200 {
		t.Fatalf("got %dx%d, want 100x200", res.Pix.Width, res.Pix.Height)
	}
}

func TestRenderRejectsBadZoom(t *testing.T) {
	store := object.NewStore()
	page := testPage(store, 100, 100, 0, "")
	r := testRenderer(t, store)

	if _, err := r.RenderPage(context.Background(), page, 0); err == nil {
		t.Fatal("expected error for zoom 0")
	}
	if _, err := r.RenderPage(context.Background(), page, -1); err == nil {
		t.Fatal("expected error for negative zoom")
	}
}

func TestRenderStroke(t *testing.T) {
	store := object.NewStore()
	page := testPage(store, 100, 100, 0, "4 w\n0 0 0 RG\n10 10 m\n90 10 l\nS")
	r := testRenderer(t, store)

	res, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	// The line sits at PDF y 10, device row 90.
	if r0, g0, b0, _ := res.Pix.At(50, 90); !isDark(r0, g0, b0) {
		t.Errorf("pixel on stroke is %d,%d,%d, want dark", r0, g0, b0)
	}
	if r0, g0, b0, _ := res.Pix.At(50, 50); !isWhite(r0, g0, b0) {
		t.Errorf("pixel off stroke is %d,%d,%d, want white", r0, g0, b0)
	}
}

func TestRenderTextPaintsGlyphs(t *testing.T) {
	store := object.NewStore()
	page := testPage(store, 100, 100, 0,
		"BT\n/F1 24 Tf\n0 0 0 rg\n1 0 0 1 10 40 Tm\n(Hg) Tj\nET")
	r := testRenderer(t, store)

	res, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	dark := 0
	for y := 0; y < res.Pix.Height; y++ {
		for x := 0; x < res.Pix.Width; x++ {
			if r0, g0, b0, _ := res.Pix.At(x, y); isDark(r0, g0, b0) {
				dark++
			}
		}
	}
	if dark < 20 {
		t.Errorf("got %d dark pixels, want at least 20 for a 24pt run", dark)
	}
}

func TestRenderGraphicsStateStack(t *testing.T) {
	// The scaled rect inside q..Q must not affect the one after Q.
	store := object.NewStore()
	page := testPage(store, 100, 100, 0,
		"q\n2 0 0 2 0 0 cm\n0 0 0 rg\n5 5 10 10 re\nf\nQ\n0 0 0 rg\n70 70 20 20 re\nf")
	r := testRenderer(t, store)

	res, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	// Scaled rect covers PDF 10..30 square, device rows 70..90.
	if r0, g0, b0, _ := res.Pix.At(20, 80); !isDark(r0, g0, b0) {
		t.Errorf("scaled rect missing at (20,80): %d,%d,%d", r0, g0, b0)
	}
	// Post-Q rect covers PDF 70..90, device rows 10..30, unscaled.
	if r0, g0, b0, _ := res.Pix.At(80, 20); !isDark(r0, g0, b0) {
		t.Errorf("post-restore rect missing at (80,20): %d,%d,%d", r0, g0, b0)
	}
	if r0, g0, b0, _ := res.Pix.At(45, 45); !isWhite(r0, g0, b0) {
		t.Errorf("center should stay white: %d,%d,%d", r0, g0, b0)
	}
}

func TestRenderDegradedOperatorsReported(t *testing.T) {
	store := object.NewStore()
	page := testPage(store, 100, 100, 0, "/P0 sh\n1 2 frobnicate\n0 0 0 rg\n10 10 20 20 re\nf")
	r := testRenderer(t, store)

	res, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if len(res.Degraded) != 2 {
		t.Fatalf("got degraded %v, want shading and unknown operator entries", res.Degraded)
	}
	// Degradation never suppresses what did rasterize.
	if r0, g0, b0, _ := res.Pix.At(20, 80); !isDark(r0, g0, b0) {
		t.Errorf("rect after degraded ops missing: %d,%d,%d", r0, g0, b0)
	}
}

func TestRenderFormXObject(t *testing.T) {
	store := object.NewStore()
	form := object.NewStream(object.NewDict(), []byte("0 0 0 rg\n0 0 10 10 re\nf"))
	form.Dict.Set("Type", object.Name("XObject"))
	form.Dict.Set("Subtype", object.Name("Form"))
	form.Dict.Set("Matrix", object.NewArray(
		object.Integer(1), object.Integer(0), object.Integer(0),
		object.Integer(1), object.Integer(40), object.Integer(40)))
	formRef := store.Allocate(form)

	xobjs := object.NewDict()
	xobjs.Set("Fm0", object.NewRef(formRef.Num, formRef.Gen))
	res := object.NewDict()
	res.Set("XObject", xobjs)

	page := testPage(store, 100, 100, 0, "/Fm0 Do")
	page.Resources = res
	r := testRenderer(t, store)

	out, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	// Form square lands at PDF 40..50, device rows 50..60.
	if r0, g0, b0, _ := out.Pix.At(45, 55); !isDark(r0, g0, b0) {
		t.Errorf("form content missing at (45,55): %d,%d,%d", r0, g0, b0)
	}
}

func TestRenderWidgetAppearance(t *testing.T) {
	store := object.NewStore()

	ap := object.NewStream(object.NewDict(), []byte("0 0 0 rg\n0 0 40 20 re\nf"))
	ap.Dict.Set("Type", object.Name("XObject"))
	ap.Dict.Set("Subtype", object.Name("Form"))
	ap.Dict.Set("BBox", object.NewArray(
		object.Integer(0), object.Integer(0), object.Integer(40), object.Integer(20)))
	apRef := store.Allocate(ap)

	apDict := object.NewDict()
	apDict.Set("N", object.NewRef(apRef.Num, apRef.Gen))
	widget := object.NewDict()
	widget.Set("Type", object.Name("Annot"))
	widget.Set("Subtype", object.Name("Widget"))
	widget.Set("Rect", object.NewArray(
		object.Integer(30), object.Integer(40), object.Integer(70), object.Integer(60)))
	widget.Set("AP", apDict)
	widgetRef := store.Allocate(widget)

	page := testPage(store, 100, 100, 0, "")
	page.Dict.Set("Annots", object.NewArray(object.NewRef(widgetRef.Num, widgetRef.Gen)))
	r := testRenderer(t, store)

	out, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	// Widget rect spans PDF y 40..60, device rows 40..60.
	if r0, g0, b0, _ := out.Pix.At(50, 50); !isDark(r0, g0, b0) {
		t.Errorf("widget appearance missing at (50,50): %d,%d,%d", r0, g0, b0)
	}
	if r0, g0, b0, _ := out.Pix.At(10, 10); !isWhite(r0, g0, b0) {
		t.Errorf("outside widget should stay white: %d,%d,%d", r0, g0, b0)
	}
}

func TestRenderImageXObject(t *testing.T) {
	store := object.NewStore()

	// A 2x2 RGB image: red top row, blue bottom row.
	raw := []byte{
		0xFF, 0, 0, 0xFF, 0, 0,
		0, 0, 0xFF, 0, 0, 0xFF,
	}
	img := object.NewStream(object.NewDict(), raw)
	img.Dict.Set("Type", object.Name("XObject"))
	img.Dict.Set("Subtype", object.Name("Image"))
	img.Dict.Set("Width", object.Integer(2))
	img.Dict.Set("Height", object.Integer(2))
	img.Dict.Set("BitsPerComponent", object.Integer(8))
	img.Dict.Set("ColorSpace", object.Name("DeviceRGB"))
	imgRef := store.Allocate(img)

	xobjs := object.NewDict()
	xobjs.Set("Im0", object.NewRef(imgRef.Num, imgRef.Gen))
	res := object.NewDict()
	res.Set("XObject", xobjs)

	// Place the image across PDF 20..60 x 20..60.
	page := testPage(store, 100, 100, 0, "q\n40 0 0 40 20 20 cm\n/Im0 Do\nQ")
	page.Resources = res
	r := testRenderer(t, store)

	out, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	// Image top row is red; PDF top of the square is y 60, device row 40.
	r0, g0, b0, _ := out.Pix.At(40, 45)
	if r0 < 0xC0 || g0 > 0x40 || b0 > 0x40 {
		t.Errorf("top of image is %d,%d,%d, want red", r0, g0, b0)
	}
	r1, g1, b1, _ := out.Pix.At(40, 75)
	if b1 < 0xC0 || g1 > 0x40 || r1 > 0x40 {
		t.Errorf("bottom of image is %d,%d,%d, want blue", r1, g1, b1)
	}
}

func TestRenderTJAdjustments(t *testing.T) {
	// A negative TJ adjustment moves the pen right by its magnitude
	// over 1000 in text space. The run must stay inside the page.
	ops := fmt.Sprintf("BT\n/F1 12 Tf\n0 0 0 rg\n1 0 0 1 5 50 Tm\n[(A) %d (B)] TJ\nET", -500)
	store := object.NewStore()
	page := testPage(store, 100, 100, 0, ops)
	r := testRenderer(t, store)

	res, err := r.RenderPage(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if len(res.Degraded) != 0 {
		t.Fatalf("unexpected degraded ops: %v", res.Degraded)
	}
}
