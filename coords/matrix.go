package coords

import "errors"

// ErrSingular is returned when inverting a matrix with a zero determinant.
var ErrSingular = errors.New("matrix is not invertible")

// Matrix is a 2D affine transformation in row-major order:
//
//	| a  b  c |
//	| d  e  f |
//
// x' = a*x + b*y + c
// y' = d*x + e*y + f
type Matrix struct {
	A, B, C float64
	D, E, F float64
}

// Matrix returns the render→screen map as an affine matrix.
func (v ViewportTransform) Matrix() Matrix {
	return Matrix{
		A: v.Zoom, B: 0, C: v.PanX,
		D: 0, E: v.Zoom, F: v.PanY,
	}
}

func (m Matrix) TransformPoint(p Point) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.C,
		Y: m.D*p.X + m.E*p.Y + m.F,
	}
}

func (m Matrix) Determinant() float64 {
	return m.A*m.E - m.B*m.D
}

// Invert returns the inverse transformation, or ErrSingular.
func (m Matrix) Invert() (Matrix, error) {
	det := m.Determinant()
	if det == 0 {
		return Matrix{}, ErrSingular
	}
	inv := 1 / det
	return Matrix{
		A: m.E * inv,
		B: -m.B * inv,
		C: (m.B*m.F - m.E*m.C) * inv,
		D: -m.D * inv,
		E: m.A * inv,
		F: (m.D*m.C - m.A*m.F) * inv,
	}, nil
}
