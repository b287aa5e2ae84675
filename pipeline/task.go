package pipeline

import (
	"context"
	"slices"
)

// Task is the confirm half of an optimistic mutation. The apply half has
// already happened when a Task is handed out.
type Task struct {
	ids  []string
	done chan struct{}
	err  error
}

func newTask(ids ...string) *Task {
	return &Task{ids: ids, done: make(chan struct{})}
}

// settledTask is a task with nothing to confirm, e.g. an update of an
// unknown id.
func settledTask(ids ...string) *Task {
	t := newTask(ids...)
	t.finish(nil)
	return t
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// ObjectID is the id of the created or updated object.
func (t *Task) ObjectID() string {
	if len(t.ids) == 0 {
		return ""
	}
	return t.ids[0]
}

func (t *Task) IDs() []string {
	return slices.Clone(t.ids)
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err is nil until the task is done.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the remote store confirmed or rejected the mutation. A
// rejected mutation has been rolled back and Wait returns its
// *core.PersistenceError.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve waits and returns the object id, or "" when the mutation failed.
func (t *Task) Resolve(ctx context.Context) (string, error) {
	if err := t.Wait(ctx); err != nil {
		return "", err
	}
	return t.ObjectID(), nil
}
