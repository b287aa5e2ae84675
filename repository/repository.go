// Package repository holds the client's in-memory mirror of the remote
// canvas: objects by id plus the viewport.
//
// Every write replaces an entry wholesale, so a reader on any goroutine sees
// either the old or the new object, never a mix of the two. Callers get
// clones and cannot reach the stored values.
package repository

import (
	"math"
	"sync"

	"collabcanvas/core"

	"github.com/sirupsen/logrus"
)

type entry struct {
	object *core.CanvasObject
	origin core.Origin
}

type Repository struct {
	mu        sync.RWMutex
	objects   map[string]entry
	viewport  core.ViewportState
	renderKey uint64
	subs      map[chan struct{}]struct{}
	log       logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Repository {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Repository{
		objects:  make(map[string]entry),
		viewport: core.DefaultViewport(),
		subs:     make(map[chan struct{}]struct{}),
		log:      log,
	}
}

func (r *Repository) Get(id string) (*core.CanvasObject, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.objects[id]
	if !ok {
		return nil, false
	}
	return e.object.Clone(), true
}

func (r *Repository) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.objects[id]
	return ok
}

func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.objects)
}

// List returns every object in stacking order: z_index, then creation time,
// then id.
func (r *Repository) List() []*core.CanvasObject {
	r.mu.RLock()
	objects := make([]*core.CanvasObject, 0, len(r.objects))
	for _, e := range r.objects {
		objects = append(objects, e.object.Clone())
	}
	r.mu.RUnlock()

	core.SortObjects(objects)
	return objects
}

// Upsert stores object. A new entry is Confirmed; an existing entry keeps
// its origin.
func (r *Repository) Upsert(object *core.CanvasObject) {
	r.mu.Lock()
	origin := core.Confirmed
	if e, ok := r.objects[object.ID]; ok {
		origin = e.origin
	}
	r.objects[object.ID] = entry{object: object.Clone(), origin: origin}
	r.changedLocked()
	r.mu.Unlock()
}

// Put stores object with an explicit origin.
func (r *Repository) Put(object *core.CanvasObject, origin core.Origin) {
	r.mu.Lock()
	r.objects[object.ID] = entry{object: object.Clone(), origin: origin}
	r.changedLocked()
	r.mu.Unlock()
}

// Remove deletes id and reports whether it was present.
func (r *Repository) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.objects[id]; !ok {
		return false
	}
	delete(r.objects, id)
	r.changedLocked()
	return true
}

// Seed replaces the whole object map, e.g. with a fresh listAll().
func (r *Repository) Seed(objects []*core.CanvasObject) {
	r.mu.Lock()
	r.objects = make(map[string]entry, len(objects))
	for _, o := range objects {
		r.objects[o.ID] = entry{object: o.Clone(), origin: core.Confirmed}
	}
	r.changedLocked()
	r.mu.Unlock()

	r.log.WithField("objects", len(objects)).Debug("Repository seeded")
}

func (r *Repository) Origin(id string) (core.Origin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.objects[id]
	return e.origin, ok
}

// SetOrigin changes the provenance tag of an existing entry. It does not
// count as a change for render-key purposes.
func (r *Repository) SetOrigin(id string, origin core.Origin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.objects[id]; ok {
		e.origin = origin
		r.objects[id] = e
	}
}

// SyncViewport overwrites the viewport atomically. It mirrors an external
// value, so any finite numbers are stored as given; only NaN and infinities
// are rejected.
func (r *Repository) SyncViewport(zoom, panX, panY float64) error {
	for _, v := range []float64{zoom, panX, panY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &core.ValidationError{Field: "viewport", Reason: "values must be finite"}
		}
	}

	r.mu.Lock()
	r.viewport = core.ViewportState{Zoom: zoom, PanX: panX, PanY: panY}
	r.mu.Unlock()
	return nil
}

func (r *Repository) RestoreViewport() core.ViewportState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.viewport
}

// RenderKey changes on every upsert and remove. Read-only consumers compare
// it with the last value they drew instead of diffing objects.
func (r *Repository) RenderKey() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.renderKey
}

// Subscribe returns a channel that receives a value after object changes.
// Notifications coalesce: a slow reader sees one signal for many changes.
func (r *Repository) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

func (r *Repository) Unsubscribe(ch <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sub := range r.subs {
		if sub == ch {
			delete(r.subs, sub)
			close(sub)
			return
		}
	}
}

func (r *Repository) changedLocked() {
	r.renderKey++
	for sub := range r.subs {
		select {
		case sub <- struct{}{}:
		default:
		}
	}
}
