// Package pipeline applies create, update and delete optimistically: the
// repository and renderer change at once, the remote store is asked to
// persist in the background, and a rejected persist rolls the local change
// back.
//
// Persist calls for the same object id reach the remote store in the order
// their local changes were applied. A rollback restores the snapshot taken
// by its own mutation, whatever the repository holds by then.
package pipeline

import (
	"context"
	"errors"
	"slices"
	"time"

	"collabcanvas/core"
	"collabcanvas/metrics"
	"collabcanvas/renderer"
	"collabcanvas/repository"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	opInsert = "insert"
	opUpdate = "update"
	opDelete = "delete"
)

// ErrAbandoned is the persist error of a mutation that was queued behind a
// create which later rolled back. It is never sent to the remote store.
var ErrAbandoned = errors.New("object creation was rolled back")

type Option func(*Pipeline)

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

type Pipeline struct {
	repo     *repository.Repository
	renderer core.Renderer
	remote   core.RemoteStore
	disp     *Dispatcher
	order    *idOrder

	// pending counts unsettled mutations per id; dispatcher goroutine only.
	pending map[string]int

	inflight *inflight
	log      logrus.FieldLogger
	now      func() time.Time
	newID    func() string
}

func New(repo *repository.Repository, r core.Renderer, remote core.RemoteStore, disp *Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:     repo,
		renderer: r,
		remote:   remote,
		disp:     disp,
		order:    newIDOrder(),
		pending:  make(map[string]int),
		inflight: newInflight(),
		log:      logrus.StandardLogger(),
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create materializes partial into a full object, shows it immediately and
// persists it in the background. The returned error is only ever a
// validation error; persistence failures are reported by the Task, after
// the object has been removed again.
func (p *Pipeline) Create(ctx context.Context, partial core.ObjectPatch) (*Task, error) {
	if err := core.ValidatePatch(&partial); err != nil {
		return nil, err
	}
	object := core.Materialize(partial, p.newID(), p.now())
	if err := core.ValidateObject(object); err != nil {
		return nil, err
	}

	var (
		prev    []<-chan struct{}
		release func()
	)
	err := p.disp.Exec(ctx, func() {
		p.repo.Put(object, core.LocalPending)
		p.pending[object.ID]++
		renderer.Show(p.renderer, object)
		p.renderer.RequestRedraw()
		prev, release = p.order.enqueue([]string{object.ID})
	})
	if err != nil {
		return nil, err
	}
	metrics.MutationsApplied.WithLabelValues(opInsert).Inc()
	p.log.WithFields(logrus.Fields{
		"object_id": object.ID,
		"type":      object.Type,
	}).Debug("Object created optimistically")

	task := newTask(object.ID)
	insert := object.Clone()
	p.persist(ctx, task, opInsert, prev, release,
		func(ctx context.Context, _ []string) error {
			return p.remote.Insert(ctx, insert)
		},
		func() {
			p.settle(object.ID)
		},
		func([]string) {
			p.repo.Remove(object.ID)
			renderer.Hide(p.renderer, object.ID)
			p.renderer.RequestRedraw()
			p.order.abandon(object.ID)
			p.settle(object.ID)
		})
	return task, nil
}

// Update merges partial over the current object. An unknown id is a no-op
// and the returned Task is already settled. On a rejected persist the exact
// pre-update object and its visual are restored.
func (p *Pipeline) Update(ctx context.Context, id string, partial core.ObjectPatch) (*Task, error) {
	if err := core.ValidatePatch(&partial); err != nil {
		return nil, err
	}

	var (
		snapshot *core.CanvasObject
		origin   core.Origin
		fields   core.ObjectPatch
		applyErr error
		prev     []<-chan struct{}
		release  func()
	)
	err := p.disp.Exec(ctx, func() {
		current, ok := p.repo.Get(id)
		if !ok {
			return
		}

		now := p.now()
		fields = partial
		fields.UpdatedAt = &now
		next := current.Clone()
		fields.Apply(next)
		if partial.TypeProperties != nil || partial.Type != nil {
			if _, err := core.DecodeTypeProperties(next.Type, next.TypeProperties); err != nil {
				applyErr = err
				return
			}
		}

		snapshot = current
		origin, _ = p.repo.Origin(id)
		p.repo.Put(next, core.LocalPending)
		p.pending[id]++
		if partial.TouchesVisual() {
			renderer.Move(p.renderer, next)
			p.renderer.RequestRedraw()
		}
		prev, release = p.order.enqueue([]string{id})
	})
	if err != nil {
		return nil, err
	}
	if applyErr != nil {
		return nil, applyErr
	}
	if snapshot == nil {
		p.log.WithField("object_id", id).Debug("Update of unknown object ignored")
		return settledTask(id), nil
	}
	metrics.MutationsApplied.WithLabelValues(opUpdate).Inc()

	task := newTask(id)
	p.persist(ctx, task, opUpdate, prev, release,
		func(ctx context.Context, _ []string) error {
			return p.remote.UpdateFields(ctx, id, &fields)
		},
		func() {
			p.settle(id)
		},
		func([]string) {
			p.repo.Put(snapshot, origin)
			renderer.Show(p.renderer, snapshot)
			p.renderer.RequestRedraw()
			p.settle(id)
		})
	return task, nil
}

type removed struct {
	object *core.CanvasObject
	origin core.Origin
}

// DeleteMany removes every existing id at once; unknown ids are skipped. On a
// rejected persist exactly the removed objects come back.
func (p *Pipeline) DeleteMany(ctx context.Context, ids []string) (*Task, error) {
	var (
		snapshots []removed
		matched   []string
		prev      []<-chan struct{}
		release   func()
	)
	err := p.disp.Exec(ctx, func() {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			current, ok := p.repo.Get(id)
			if !ok {
				continue
			}
			origin, _ := p.repo.Origin(id)
			snapshots = append(snapshots, removed{object: current, origin: origin})
			matched = append(matched, id)
		}
		if len(matched) == 0 {
			return
		}

		for _, s := range snapshots {
			p.repo.Remove(s.object.ID)
			p.pending[s.object.ID]++
			renderer.Hide(p.renderer, s.object.ID)
		}
		p.renderer.RequestRedraw()
		prev, release = p.order.enqueue(matched)
	})
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		p.log.WithField("ids", ids).Debug("Delete matched no objects")
		return settledTask(), nil
	}
	metrics.MutationsApplied.WithLabelValues(opDelete).Inc()
	p.log.WithField("ids", matched).Debug("Objects deleted optimistically")

	task := newTask(matched...)
	p.persist(ctx, task, opDelete, prev, release,
		func(ctx context.Context, live []string) error {
			return p.remote.DeleteMany(ctx, live)
		},
		func() {
			for _, id := range matched {
				p.settle(id)
			}
		},
		func(live []string) {
			for _, s := range snapshots {
				if slices.Contains(live, s.object.ID) {
					p.repo.Put(s.object, s.origin)
					renderer.Show(p.renderer, s.object)
				}
				p.settle(s.object.ID)
			}
			p.renderer.RequestRedraw()
		})
	return task, nil
}

// Lock sets the advisory soft-lock fields. Nothing enforces them.
func (p *Pipeline) Lock(ctx context.Context, id, user string) (*Task, error) {
	now := p.now()
	return p.Update(ctx, id, core.ObjectPatch{LockedBy: &user, LockAcquiredAt: &now})
}

func (p *Pipeline) Unlock(ctx context.Context, id string) (*Task, error) {
	return p.Update(ctx, id, core.ObjectPatch{Clear: []string{core.FieldLockedBy, core.FieldLockAcquiredAt}})
}

// Flush waits until every persist issued so far has settled.
func (p *Pipeline) Flush(ctx context.Context) error {
	select {
	case <-p.inflight.drained():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persist runs the confirm step: wait for earlier calls on the same ids,
// call the remote store, then route the outcome back through the
// dispatcher. The caller's cancellation does not stop a persist once issued.
func (p *Pipeline) persist(
	ctx context.Context,
	task *Task,
	op string,
	prev []<-chan struct{},
	release func(),
	call func(ctx context.Context, ids []string) error,
	confirm func(),
	rollback func(live []string),
) {
	ctx = context.WithoutCancel(ctx)
	log := p.log.WithFields(logrus.Fields{"op": op, "ids": task.ids})

	p.inflight.add()
	go func() {
		defer p.inflight.done()
		for _, ch := range prev {
			<-ch
		}

		var err error
		live := p.order.live(task.ids)
		if len(live) == 0 {
			err = &core.PersistenceError{Op: op, IDs: task.IDs(), Err: ErrAbandoned}
		} else if callErr := call(ctx, live); callErr != nil {
			err = &core.PersistenceError{Op: op, IDs: task.IDs(), Err: callErr}
		}

		settleErr := p.disp.Exec(ctx, func() {
			switch {
			case errors.Is(err, ErrAbandoned):
				for _, id := range task.ids {
					p.settle(id)
				}
			case err != nil:
				rollback(live)
				metrics.MutationRollbacks.WithLabelValues(op).Inc()
			default:
				confirm()
			}
		})

		switch {
		case settleErr != nil:
			log.WithError(settleErr).Warn("Mutation outcome could not be applied")
		case errors.Is(err, ErrAbandoned):
			log.Debug("Mutation dropped after its create rolled back")
		case err != nil:
			log.WithError(err).Warn("Persist rejected, local change rolled back")
		default:
			log.Debug("Mutation confirmed")
		}

		release()
		task.finish(err)
	}()
}

// settle records that one mutation on id finished. The entry goes back to
// Confirmed once no mutation on it is outstanding.
func (p *Pipeline) settle(id string) {
	p.pending[id]--
	if p.pending[id] > 0 {
		return
	}
	delete(p.pending, id)
	p.repo.SetOrigin(id, core.Confirmed)
}
