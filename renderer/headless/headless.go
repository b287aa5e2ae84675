// Package headless is a Renderer that keeps visuals in memory. It backs the
// canvas agent and tests.
package headless

import (
	"sort"
	"sync"

	"collabcanvas/core"
)

type Visual struct {
	ID        string
	Type      core.ObjectType
	Transform core.VisualTransform
}

func (v *Visual) ObjectID() string {
	return v.ID
}

type Renderer struct {
	mu       sync.Mutex
	visuals  map[string]*Visual
	created  int
	redraws  int
	onRedraw func()
}

func New() *Renderer {
	return &Renderer{visuals: make(map[string]*Visual)}
}

// OnRedraw registers fn to run after each RequestRedraw.
func (r *Renderer) OnRedraw(fn func()) {
	r.mu.Lock()
	r.onRedraw = fn
	r.mu.Unlock()
}

func (r *Renderer) CreateVisual(o *core.CanvasObject) core.Visual {
	r.mu.Lock()
	r.created++
	r.mu.Unlock()
	return &Visual{ID: o.ID, Type: o.Type, Transform: core.TransformOf(o)}
}

func (r *Renderer) AddVisual(v core.Visual) {
	hv, ok := v.(*Visual)
	if !ok {
		return
	}
	r.mu.Lock()
	r.visuals[hv.ID] = hv
	r.mu.Unlock()
}

func (r *Renderer) FindVisualByID(id string) core.Visual {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.visuals[id]; ok {
		return v
	}
	return nil
}

func (r *Renderer) RemoveVisual(v core.Visual) {
	r.mu.Lock()
	delete(r.visuals, v.ObjectID())
	r.mu.Unlock()
}

func (r *Renderer) UpdateVisualTransform(v core.Visual, t core.VisualTransform) {
	hv, ok := v.(*Visual)
	if !ok {
		return
	}
	r.mu.Lock()
	hv.Transform = t
	r.mu.Unlock()
}

func (r *Renderer) RequestRedraw() {
	r.mu.Lock()
	r.redraws++
	fn := r.onRedraw
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Lookup returns a copy of the visual for id.
func (r *Renderer) Lookup(id string) (Visual, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visuals[id]
	if !ok {
		return Visual{}, false
	}
	return *v, true
}

// IDs lists the object ids that currently have a visual, sorted.
func (r *Renderer) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.visuals))
	for id := range r.visuals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Renderer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visuals)
}

// Created counts CreateVisual calls.
func (r *Renderer) Created() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

func (r *Renderer) Redraws() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redraws
}
