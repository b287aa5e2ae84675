package core

import (
	"context"

	"collabcanvas/coords"
)

type (
	// Visual is a renderer-owned mirror of one object.
	Visual interface {
		ObjectID() string
	}

	// VisualTransform is what a renderer needs to reposition a visual.
	// X and Y are in render space.
	VisualTransform struct {
		X        float64
		Y        float64
		Width    float64
		Height   float64
		Rotation float64
		Fill     string
		Opacity  float64
	}

	// Renderer mirrors repository state into visible shapes. It is never
	// authoritative and it must not call back into the pipeline from these
	// methods.
	Renderer interface {
		// CreateVisual may return nil when the object cannot be drawn.
		CreateVisual(object *CanvasObject) Visual
		AddVisual(v Visual)
		FindVisualByID(id string) Visual
		RemoveVisual(v Visual)
		UpdateVisualTransform(v Visual, t VisualTransform)
		RequestRedraw()
	}

	// RemoteStore is the client's view of the authoritative store.
	RemoteStore interface {
		Insert(ctx context.Context, object *CanvasObject) error
		UpdateFields(ctx context.Context, id string, patch *ObjectPatch) error
		DeleteMany(ctx context.Context, ids []string) error
		ListAll(ctx context.Context) ([]*CanvasObject, error)

		// SubscribeChanges delivers events in transport order. The channel is
		// closed when the feed disconnects or ctx is done.
		SubscribeChanges(ctx context.Context, table string) (<-chan ChangeEvent, error)
	}
)

// TransformOf converts an object's stored geometry into render space.
func TransformOf(o *CanvasObject) VisualTransform {
	p := coords.CenterToRender(o.Position())
	return VisualTransform{
		X:        p.X,
		Y:        p.Y,
		Width:    o.Width,
		Height:   o.Height,
		Rotation: o.Rotation,
		Fill:     o.Fill,
		Opacity:  o.Opacity,
	}
}
