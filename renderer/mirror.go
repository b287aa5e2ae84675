// Package renderer holds the helpers the pipeline and reconciler use to keep
// a core.Renderer in step with the repository.
package renderer

import "collabcanvas/core"

// Show makes sure a visual for o exists and matches it. An existing visual is
// moved rather than duplicated.
func Show(r core.Renderer, o *core.CanvasObject) {
	if v := r.FindVisualByID(o.ID); v != nil {
		r.UpdateVisualTransform(v, core.TransformOf(o))
		return
	}
	if v := r.CreateVisual(o); v != nil {
		r.AddVisual(v)
	}
}

// Hide removes the visual for id, if any.
func Hide(r core.Renderer, id string) {
	if v := r.FindVisualByID(id); v != nil {
		r.RemoveVisual(v)
	}
}

// Move updates an existing visual and never creates one.
func Move(r core.Renderer, o *core.CanvasObject) {
	if v := r.FindVisualByID(o.ID); v != nil {
		r.UpdateVisualTransform(v, core.TransformOf(o))
	}
}
