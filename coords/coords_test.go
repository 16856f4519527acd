package coords

import (
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMultiplyOrder(t *testing.T) {
	// Scale then translate: the translation must not be scaled.
	m := Scale(2, 2).Multiply(Translate(10, 20))
	p := m.Transform(Point{X: 1, Y: 1})
	if !near(p.X, 12) || !near(p.Y, 22) {
		t.Errorf("got (%v,%v), want (12,22)", p.X, p.Y)
	}
}

func TestInverseRoundTrip(t *testing.T) {
	m := Translate(3, -7).Multiply(Scale(2, 0.5)).Multiply(Rotate(0.3))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	p := Point{X: 5, Y: 11}
	q := inv.Transform(m.Transform(p))
	if !near(q.X, p.X) || !near(q.Y, p.Y) {
		t.Errorf("round trip gave (%v,%v)", q.X, q.Y)
	}
}

func TestInverseSingular(t *testing.T) {
	if _, err := (Matrix{0, 0, 0, 0, 1, 2}).Inverse(); err == nil {
		t.Error("singular matrix must not invert")
	}
}

func TestDeviceToPDFRoundTrip(t *testing.T) {
	dev := Point{X: 150, Y: 40}
	pdf := DeviceToPDF(dev, 792, 2.0)
	if !near(pdf.X, 75) || !near(pdf.Y, 772) {
		t.Fatalf("DeviceToPDF = (%v,%v)", pdf.X, pdf.Y)
	}
	back := PDFToDevice(pdf, 792, 2.0)
	if !near(back.X, dev.X) || !near(back.Y, dev.Y) {
		t.Errorf("round trip gave (%v,%v)", back.X, back.Y)
	}
}

func TestPageTransformCorners(t *testing.T) {
	const w, h = 612.0, 792.0

	// Unrotated: PDF origin lands at the bottom-left of the raster.
	m := PageTransform(w, h, 0, 1)
	p := m.Transform(Point{})
	if !near(p.X, 0) || !near(p.Y, h) {
		t.Errorf("rotate 0: origin -> (%v,%v)", p.X, p.Y)
	}

	// Rotated 90: the bottom-left corner moves to the top-left.
	m = PageTransform(w, h, 90, 1)
	p = m.Transform(Point{})
	if !near(p.X, 0) || !near(p.Y, 0) {
		t.Errorf("rotate 90: origin -> (%v,%v)", p.X, p.Y)
	}
	p = m.Transform(Point{X: 0, Y: h})
	if !near(p.X, h) || !near(p.Y, 0) {
		t.Errorf("rotate 90: top-left -> (%v,%v)", p.X, p.Y)
	}
}

func TestRotatedSize(t *testing.T) {
	w, h := RotatedSize(612, 792, 270)
	if w != 792 || h != 612 {
		t.Errorf("got %vx%v", w, h)
	}
	w, h = RotatedSize(612, 792, 360)
	if w != 612 || h != 792 {
		t.Errorf("got %vx%v", w, h)
	}
}
