package realtime

import (
	"context"
	"errors"
	"sync"

	"collabcanvas/core"
	"collabcanvas/metrics"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 256

var ErrBrokerClosed = errors.New("broker closed")

type LocalBroker struct {
	mu     sync.Mutex
	subs   map[string]map[chan core.ChangeEvent]struct{}
	closed bool
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[chan core.ChangeEvent]struct{})}
}

// Publish never blocks. A subscriber whose buffer is full is dropped.
func (b *LocalBroker) Publish(ctx context.Context, ev core.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[ev.Table] {
		select {
		case ch <- ev:
		default:
			logrus.WithField("table", ev.Table).Warn("Dropping slow feed subscriber")
			b.removeLocked(ev.Table, ch)
		}
	}
	metrics.ChangesPublished.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, table string) (<-chan core.ChangeEvent, error) {
	ch := make(chan core.ChangeEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	if b.subs[table] == nil {
		b.subs[table] = make(map[chan core.ChangeEvent]struct{})
	}
	b.subs[table][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.removeLocked(table, ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *LocalBroker) removeLocked(table string, ch chan core.ChangeEvent) {
	if _, ok := b.subs[table][ch]; !ok {
		return
	}
	delete(b.subs[table], ch)
	if len(b.subs[table]) == 0 {
		delete(b.subs, table)
	}
	close(ch)
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for table, chans := range b.subs {
		for ch := range chans {
			b.removeLocked(table, ch)
		}
	}
	return nil
}
