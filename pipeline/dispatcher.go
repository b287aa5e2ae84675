package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when work is submitted to a stopped dispatcher.
var ErrClosed = errors.New("dispatcher closed")

type job struct {
	fn   func()
	done chan struct{}
}

// Dispatcher runs every repository mutation on one goroutine. Optimistic
// applies, remote confirmations, rollbacks and realtime events all go
// through Exec, so they never interleave.
type Dispatcher struct {
	jobs      chan job
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	log       logrus.FieldLogger
}

func NewDispatcher(log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Dispatcher{
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     log,
	}
	go d.run()
	return d
}

// Exec runs fn on the dispatcher goroutine and returns once it has run.
// fn must not call Exec itself.
func (d *Dispatcher) Exec(ctx context.Context, fn func()) error {
	j := job{fn: fn, done: make(chan struct{})}

	select {
	case d.jobs <- j:
	case <-d.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-j.done:
		return nil
	case <-d.stopped:
		select {
		case <-j.done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close stops the loop. Jobs already accepted finish first.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
	})
	<-d.stopped
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case j := <-d.jobs:
			d.runJob(j)
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) runJob(j job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("Dispatcher job panicked")
		}
	}()
	j.fn()
}
