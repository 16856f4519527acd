// Package coords provides 2D affine transforms and the conversions
// between device space (origin top-left, y down) and PDF user space
// (origin bottom-left, y up).
package coords

import (
	"errors"
	"math"
)

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

// Point is a position in either space; the function names say which.
type Point struct {
	X, Y float64
}

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate builds a counter-clockwise rotation by angle radians.
func Rotate(angle float64) Matrix {
	c := math.Cos(angle)
	s := math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Multiply returns m applied first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// DeviceToPDF maps a pixel position on a rendered page image back to
// PDF user space. pageHeight is the page height in PDF points and zoom
// the scale the image was rendered at. Device y grows downward.
func DeviceToPDF(p Point, pageHeight, zoom float64) Point {
	if zoom <= 0 {
		zoom = 1
	}
	return Point{
		X: p.X / zoom,
		Y: pageHeight - p.Y/zoom,
	}
}

// PDFToDevice is the inverse of DeviceToPDF.
func PDFToDevice(p Point, pageHeight, zoom float64) Point {
	if zoom <= 0 {
		zoom = 1
	}
	return Point{
		X: p.X * zoom,
		Y: (pageHeight - p.Y) * zoom,
	}
}

// PageTransform builds the user-space to device matrix for a page of
// the given size, applying /Rotate (multiples of 90, clockwise in the
// viewer) and a zoom factor. The result maps the page's media box to a
// top-left origin raster.
func PageTransform(width, height float64, rotate int, zoom float64) Matrix {
	rotate = ((rotate % 360) + 360) % 360
	m := Identity()
	switch rotate {
	case 90:
		m = Rotate(-math.Pi / 2).Multiply(Translate(0, width))
	case 180:
		m = Rotate(math.Pi).Multiply(Translate(width, height))
	case 270:
		m = Rotate(math.Pi / 2).Multiply(Translate(height, 0))
	}
	// Flip y so device origin sits at the top-left.
	outH := height
	if rotate == 90 || rotate == 270 {
		outH = width
	}
	flip := Matrix{1, 0, 0, -1, 0, outH}
	return m.Multiply(flip).Multiply(Scale(zoom, zoom))
}

// RotatedSize returns the device-space page size after /Rotate.
func RotatedSize(width, height float64, rotate int) (float64, float64) {
	rotate = ((rotate % 360) + 360) % 360
	if rotate == 90 || rotate == 270 {
		return height, width
	}
	return width, height
}
