// Package realtime fans change events out to feed subscribers, either
// within one process or across instances through Redis pub/sub.
package realtime

import (
	"context"
	"os"

	"collabcanvas/core"

	"github.com/sirupsen/logrus"
)

// Broker delivers every published event to the subscribers of its table,
// in publish order.
type Broker interface {
	Publish(ctx context.Context, ev core.ChangeEvent) error

	// Subscribe returns a channel that is closed when ctx is done or the
	// subscriber falls too far behind.
	Subscribe(ctx context.Context, table string) (<-chan core.ChangeEvent, error)
	Close() error
}

// GetBroker uses Redis when REDIS_ADDR is set and an in-process broker
// otherwise.
func GetBroker(ctx context.Context) (Broker, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logrus.WithField("broker", "local").Info("Use broker")
		return NewLocalBroker(), nil
	}

	channel := os.Getenv("REDIS_CHANNEL")
	b, err := NewRedisBroker(ctx, addr, channel)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"broker": "redis", "addr": addr, "channel": b.prefix}).Info("Use broker")
	return b, nil
}
