// Package remotetest provides an in-memory core.RemoteStore for tests.
package remotetest

import (
	"context"
	"slices"
	"sync"

	"collabcanvas/core"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpList   = "list"
)

// Call records one request that reached the store.
type Call struct {
	Op  string
	IDs []string
}

// Fake stores objects in a map. Individual operations can be made to fail,
// and Hold blocks every write until Release.
type Fake struct {
	mu         sync.Mutex
	objects    map[string]*core.CanvasObject
	calls      []Call
	fail       map[string]error
	gate       chan struct{}
	subs       []chan core.ChangeEvent
	subscribes int
	subErr     error
}

func New() *Fake {
	return &Fake{
		objects: make(map[string]*core.CanvasObject),
		fail:    make(map[string]error),
	}
}

func (f *Fake) Seed(objects ...*core.CanvasObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range objects {
		f.objects[o.ID] = o.Clone()
	}
}

// Fail makes every later call of op return err. A nil err clears it.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// FailSubscribe makes SubscribeChanges return err until cleared with nil.
func (f *Fake) FailSubscribe(err error) {
	f.mu.Lock()
	f.subErr = err
	f.mu.Unlock()
}

func (f *Fake) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *Fake) Object(id string) (*core.CanvasObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// enter records the call and waits for the gate. It returns the error
// configured for op.
func (f *Fake) enter(ctx context.Context, op string, ids []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, IDs: slices.Clone(ids)})
	gate := f.gate
	err := f.fail[op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *Fake) Insert(ctx context.Context, object *core.CanvasObject) error {
	if err := f.enter(ctx, OpInsert, []string{object.ID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[object.ID]; ok {
		return core.ErrConflict
	}
	f.objects[object.ID] = object.Clone()
	return nil
}

func (f *Fake) UpdateFields(ctx context.Context, id string, patch *core.ObjectPatch) error {
	if err := f.enter(ctx, OpUpdate, []string{id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[id]
	if !ok {
		return core.ErrNotFound
	}
	patch.Apply(o)
	return nil
}

func (f *Fake) DeleteMany(ctx context.Context, ids []string) error {
	if err := f.enter(ctx, OpDelete, ids); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.objects, id)
	}
	return nil
}

func (f *Fake) ListAll(ctx context.Context) ([]*core.CanvasObject, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: OpList})
	err := f.fail[OpList]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*core.CanvasObject, 0, len(f.objects))
	for _, o := range f.objects {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (f *Fake) SubscribeChanges(ctx context.Context, table string) (<-chan core.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribes++
	if f.subErr != nil {
		return nil, f.subErr
	}
	ch := make(chan core.ChangeEvent, 64)
	f.subs = append(f.subs, ch)
	return ch, nil
}

// Subscribes counts SubscribeChanges calls, failed ones included.
func (f *Fake) Subscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

// Emit delivers ev to every open subscription.
func (f *Fake) Emit(ev core.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- ev
	}
}

// Disconnect closes every open subscription.
func (f *Fake) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
