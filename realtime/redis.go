package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"collabcanvas/core"
	"collabcanvas/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultChannel = "collabcanvas"

// RedisBroker publishes events as JSON on "<prefix>:<table>" so that every
// server instance can feed its own subscribers.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisBroker(ctx context.Context, addr, prefix string) (*RedisBroker, error) {
	if prefix == "" {
		prefix = defaultChannel
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return &RedisBroker{rdb: rdb, prefix: prefix}, nil
}

func (b *RedisBroker) channel(table string) string {
	return b.prefix + ":" + table
}

func (b *RedisBroker) Publish(ctx context.Context, ev core.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel(ev.Table), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	metrics.ChangesPublished.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, table string) (<-chan core.ChangeEvent, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel(table))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan core.ChangeEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev core.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logrus.WithError(err).WithField("channel", msg.Channel).Warn("Dropping malformed change event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
