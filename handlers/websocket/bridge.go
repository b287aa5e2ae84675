package websocket

import (
	"context"

	"collabcanvas/core"

	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// ChangeEvent is the socket.io event carrying one core.ChangeEvent.
const ChangeEvent = "canvas-change"

type Subscriber interface {
	Subscribe(ctx context.Context, table string) (<-chan core.ChangeEvent, error)
}

// ChangeRoom names the socket.io room that receives the changes of table.
func ChangeRoom(table string) string {
	return "canvas:" + table
}

type emitFunc func(room string, ev core.ChangeEvent) error

// BridgeChanges relays the broker's events for table into ChangeRoom(table)
// until ctx is done. A dropped subscription is renewed.
func BridgeChanges(ctx context.Context, srv *socketio.Server, sub Subscriber, table string) error {
	return relay(ctx, sub, table, func(room string, ev core.ChangeEvent) error {
		return srv.To(socketio.Room(room)).Emit(ChangeEvent, ev)
	})
}

func relay(ctx context.Context, sub Subscriber, table string, emit emitFunc) error {
	room := ChangeRoom(table)
	log := logrus.WithFields(logrus.Fields{"table": table, "room": room})

	for {
		events, err := sub.Subscribe(ctx, table)
		if err != nil {
			return err
		}
		for ev := range events {
			if err := emit(room, ev); err != nil {
				log.WithError(err).Warn("Failed to relay change")
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Change subscription dropped, subscribing again")
	}
}
