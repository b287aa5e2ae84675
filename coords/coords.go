// Package coords maps points between the coordinate spaces used by the canvas.
//
// Four spaces are involved:
//
//	ViewportTransform  zoom > 0, unbounded pan   affine map between screen and render space
//	Render             [0, 8000]², top-left      internal rendering
//	Center             [-4000, 4000]², center    storage, placement, cursors
//	Screen             element pixels, ≥ 0       pointer events, overlays
//
// Every function here is pure. Nothing is clamped: Validate* reports an
// *OutOfRangeError and the caller decides what to do with it.
package coords

import (
	"fmt"
	"math"
)

const (
	// CanvasSize is the edge length of the square render space.
	CanvasSize = 8000.0
	// HalfCanvas is the offset between render space and center space.
	HalfCanvas = CanvasSize / 2
)

type Space string

const (
	SpaceRender   Space = "render"
	SpaceCenter   Space = "center"
	SpaceScreen   Space = "screen"
	SpaceViewport Space = "viewport"
)

// Point is a position in one of the coordinate spaces. The space is implied by
// the function that produced it.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ViewportTransform is the affine map from render space to screen space:
// screen = render*Zoom + Pan.
type ViewportTransform struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"panX"`
	PanY float64 `json:"panY"`
}

// IdentityViewport returns the transform where screen and render space coincide.
func IdentityViewport() ViewportTransform {
	return ViewportTransform{Zoom: 1}
}

func ScreenToRender(p Point, vpt ViewportTransform) Point {
	return Point{
		X: (p.X - vpt.PanX) / vpt.Zoom,
		Y: (p.Y - vpt.PanY) / vpt.Zoom,
	}
}

func RenderToScreen(p Point, vpt ViewportTransform) Point {
	return Point{
		X: p.X*vpt.Zoom + vpt.PanX,
		Y: p.Y*vpt.Zoom + vpt.PanY,
	}
}

func RenderToCenter(p Point) Point {
	return Point{X: p.X - HalfCanvas, Y: p.Y - HalfCanvas}
}

func CenterToRender(p Point) Point {
	return Point{X: p.X + HalfCanvas, Y: p.Y + HalfCanvas}
}

// Bounds is the visible region of the canvas, in render space.
type Bounds struct {
	TopLeft     Point   `json:"topLeft"`
	Center      Point   `json:"center"`
	BottomRight Point   `json:"bottomRight"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

// ComputeViewportBounds applies the inverse viewport map to the screen
// rectangle (0,0)-(screenW,screenH).
func ComputeViewportBounds(vpt ViewportTransform, screenW, screenH float64) Bounds {
	topLeft := ScreenToRender(Point{X: 0, Y: 0}, vpt)
	bottomRight := ScreenToRender(Point{X: screenW, Y: screenH}, vpt)

	return Bounds{
		TopLeft:     topLeft,
		BottomRight: bottomRight,
		Center: Point{
			X: (topLeft.X + bottomRight.X) / 2,
			Y: (topLeft.Y + bottomRight.Y) / 2,
		},
		Width:  bottomRight.X - topLeft.X,
		Height: bottomRight.Y - topLeft.Y,
	}
}

// Contains reports whether a render-space point is inside the bounds.
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.TopLeft.X && p.X <= b.BottomRight.X &&
		p.Y >= b.TopLeft.Y && p.Y <= b.BottomRight.Y
}

// OutOfRangeError reports a value outside the declared range of its space.
type OutOfRangeError struct {
	Space Space
	Point Point
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("point (%g, %g) is out of range for %s space", e.Point.X, e.Point.Y, e.Space)
}

func ValidateRender(p Point) error {
	if !finite(p) || p.X < 0 || p.X > CanvasSize || p.Y < 0 || p.Y > CanvasSize {
		return &OutOfRangeError{Space: SpaceRender, Point: p}
	}
	return nil
}

func ValidateCenter(p Point) error {
	if !finite(p) || p.X < -HalfCanvas || p.X > HalfCanvas || p.Y < -HalfCanvas || p.Y > HalfCanvas {
		return &OutOfRangeError{Space: SpaceCenter, Point: p}
	}
	return nil
}

// ValidateScreen only requires a finite, non-negative point; the upper bound
// depends on the element size, which this package does not know.
func ValidateScreen(p Point) error {
	if !finite(p) || p.X < 0 || p.Y < 0 {
		return &OutOfRangeError{Space: SpaceScreen, Point: p}
	}
	return nil
}

func ValidateViewport(vpt ViewportTransform) error {
	if math.IsNaN(vpt.Zoom) || math.IsInf(vpt.Zoom, 0) || vpt.Zoom <= 0 ||
		!finite(Point{X: vpt.PanX, Y: vpt.PanY}) {
		return &OutOfRangeError{Space: SpaceViewport, Point: Point{X: vpt.PanX, Y: vpt.PanY}}
	}
	return nil
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}
