// Package reconciler folds the remote change feed into the local
// repository. Events are applied one at a time in arrival order:
//
//   - INSERT only when the id is absent, so the echo of a local create is
//     dropped.
//   - UPDATE always, overwriting the whole entry (last writer wins).
//   - DELETE only when the id is present.
package reconciler

import (
	"context"
	"errors"
	"time"

	"collabcanvas/core"
	"collabcanvas/metrics"
	"collabcanvas/pipeline"
	"collabcanvas/renderer"
	"collabcanvas/repository"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

const (
	actionApplied   = "applied"
	actionDiscarded = "discarded"
	actionIgnored   = "ignored"
)

var errFeedClosed = errors.New("change feed closed")

type Option func(*Reconciler)

func WithLogger(log logrus.FieldLogger) Option {
	return func(rc *Reconciler) { rc.log = log }
}

// WithResyncOnReconnect reseeds the repository from ListAll after every
// re-subscription, covering events missed while the feed was down.
func WithResyncOnReconnect(on bool) Option {
	return func(rc *Reconciler) { rc.resync = on }
}

func WithBackOff(initial, max time.Duration) Option {
	return func(rc *Reconciler) {
		rc.initialInterval = initial
		rc.maxInterval = max
	}
}

type Reconciler struct {
	repo     *repository.Repository
	renderer core.Renderer
	remote   core.RemoteStore
	disp     *pipeline.Dispatcher
	table    string

	resync          bool
	initialInterval time.Duration
	maxInterval     time.Duration
	log             logrus.FieldLogger
}

func New(repo *repository.Repository, r core.Renderer, remote core.RemoteStore, disp *pipeline.Dispatcher, table string, opts ...Option) *Reconciler {
	rc := &Reconciler{
		repo:            repo,
		renderer:        r,
		remote:          remote,
		disp:            disp,
		table:           table,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     30 * time.Second,
		log:             logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	rc.log = rc.log.WithField("table", table)
	return rc
}

// Apply runs one event through the policy on the dispatcher goroutine.
func (rc *Reconciler) Apply(ctx context.Context, ev core.ChangeEvent) error {
	var action string
	err := rc.disp.Exec(ctx, func() {
		action = rc.apply(ev)
	})
	if err != nil {
		return err
	}

	metrics.ReconciledEvents.WithLabelValues(string(ev.Type), action).Inc()
	rc.log.WithFields(logrus.Fields{
		"type":      ev.Type,
		"object_id": ev.ObjectID(),
		"action":    action,
	}).Debug("Change event reconciled")
	return nil
}

func (rc *Reconciler) apply(ev core.ChangeEvent) string {
	if ev.Table != "" && ev.Table != rc.table {
		return actionIgnored
	}

	switch ev.Type {
	case core.ChangeInsert:
		if ev.New == nil {
			return actionIgnored
		}
		// The pipeline owns the origin of an entry it created.
		if rc.repo.Has(ev.New.ID) {
			return actionDiscarded
		}
		rc.repo.Put(ev.New, core.Confirmed)
		renderer.Show(rc.renderer, ev.New)
		rc.renderer.RequestRedraw()
		return actionApplied

	case core.ChangeUpdate:
		if ev.New == nil {
			return actionIgnored
		}
		rc.repo.Upsert(ev.New)
		renderer.Show(rc.renderer, ev.New)
		rc.renderer.RequestRedraw()
		return actionApplied

	case core.ChangeDelete:
		id := ev.ObjectID()
		if id == "" || !rc.repo.Remove(id) {
			return actionDiscarded
		}
		renderer.Hide(rc.renderer, id)
		rc.renderer.RequestRedraw()
		return actionApplied
	}
	return actionIgnored
}

// Run consumes the change feed until ctx is done. A closed feed or failed
// subscription is logged as a transport error and retried with exponential
// backoff. Events missed in between are not replayed unless resync is on.
func (rc *Reconciler) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rc.initialInterval
	bo.MaxInterval = rc.maxInterval
	bo.Reset()

	connected := false
	for {
		events, err := rc.remote.SubscribeChanges(ctx, rc.table)
		if err == nil {
			if connected {
				metrics.FeedReconnects.Inc()
				rc.log.Info("Change feed re-subscribed")
				if rc.resync {
					if err := rc.Resync(ctx); err != nil && ctx.Err() == nil {
						rc.log.WithError(err).Warn("Resync after reconnect failed")
					}
				}
			}
			connected = true
			bo.Reset()

			rc.consume(ctx, events)
			err = errFeedClosed
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.NextBackOff()
		rc.log.WithError(&core.TransportError{Table: rc.table, Err: err}).
			WithField("retry_in", wait).
			Warn("Change feed disconnected")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (rc *Reconciler) consume(ctx context.Context, events <-chan core.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := rc.Apply(ctx, ev); err != nil {
				rc.log.WithError(err).Warn("Change event dropped")
			}
		}
	}
}

// Resync replaces confirmed entries with a fresh ListAll. Entries with a
// local mutation still in flight are kept as they are.
func (rc *Reconciler) Resync(ctx context.Context) error {
	objects, err := rc.remote.ListAll(ctx)
	if err != nil {
		return err
	}

	return rc.disp.Exec(ctx, func() {
		fresh := make(map[string]bool, len(objects))
		for _, o := range objects {
			fresh[o.ID] = true
			if origin, ok := rc.repo.Origin(o.ID); ok && origin == core.LocalPending {
				continue
			}
			rc.repo.Upsert(o)
			renderer.Show(rc.renderer, o)
		}
		for _, o := range rc.repo.List() {
			if fresh[o.ID] {
				continue
			}
			if origin, _ := rc.repo.Origin(o.ID); origin == core.LocalPending {
				continue
			}
			rc.repo.Remove(o.ID)
			renderer.Hide(rc.renderer, o.ID)
		}
		rc.renderer.RequestRedraw()
		rc.log.WithField("objects", len(objects)).Info("Repository resynced")
	})
}
