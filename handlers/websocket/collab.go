// Package websocket carries the realtime surfaces of the server: socket.io
// collaboration rooms, the change relay into those rooms and the plain
// websocket change feed used by canvas clients.
package websocket

import (
	"errors"
	"regexp"

	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/engine.io/v2/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

var (
	errRoomRequired = errors.New("room id is required")
	errRoomInvalid  = errors.New("invalid room id")
)

// ackFunc answers a client acknowledgement callback.
type ackFunc func(payload map[string]any, err error)

// SetupSocketIO builds the collaboration server. Clients join rooms, relay
// scene broadcasts to each other and, in the rooms named by ChangeRoom,
// receive "canvas-change" events for persisted objects.
func SetupSocketIO(rooms *Rooms) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	opts.SetCors(&types.Cors{
		Origin:      []any{"tauri://localhost", localhostOrigin},
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // socket.io listeners have no useful error
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		c := &collab{srv: srv, socket: socket, rooms: rooms}
		_ = srv.To(socketio.Room(socket.Id())).Emit("init-room")

		socket.On("join-room", c.join)
		socket.On("server-broadcast", func(args ...any) { c.broadcast(args, false) })
		socket.On("server-volatile-broadcast", func(args ...any) { c.broadcast(args, true) })
		socket.On("disconnecting", c.leaveAll)
		socket.On("disconnect", func(...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

// collab holds the per-connection handlers.
type collab struct {
	srv    *socketio.Server
	socket *socketio.Socket
	rooms  *Rooms
}

func (c *collab) join(args ...any) {
	ack, args := splitAck(args)
	roomID, err := roomArg(args)
	if err != nil {
		c.reply(ack, "join-room-ack", statusPayload(err), err)
		return
	}

	me := c.socket.Id()
	room := socketio.Room(roomID)
	c.socket.Join(room)
	utils.Log().Printf("socket %v joined %v", me, room)

	c.srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, err error) {
		if err != nil {
			c.reply(ack, "join-room-ack", statusPayload(err), err)
			return
		}
		c.rooms.Set(roomID, len(users))

		if len(users) <= 1 {
			_ = c.srv.To(socketio.Room(me)).Emit("first-in-room")
		} else {
			_ = c.socket.Broadcast().To(room).Emit("new-user", me)
		}

		ids := make([]socketio.SocketId, 0, len(users))
		for _, user := range users {
			ids = append(ids, user.Id())
		}
		_ = c.srv.In(room).Emit("room-user-change", ids)

		payload := statusPayload(nil)
		payload["user_count"] = len(users)
		c.reply(ack, "join-room-ack", payload, nil)
	})
}

// broadcast relays a scene update to the rest of a room. Volatile updates
// (cursor positions) may be dropped by the transport.
func (c *collab) broadcast(args []any, volatile bool) {
	ack, args := splitAck(args)
	roomID, payload, meta, err := broadcastArgs(args)
	if err != nil {
		c.reply(ack, "broadcast-ack", broadcastAck(payload, err), err)
		return
	}

	op := c.socket.Broadcast()
	if volatile {
		op = c.socket.Volatile().Broadcast()
	}
	err = op.To(socketio.Room(roomID)).Emit("client-broadcast", payload, meta)
	c.reply(ack, "broadcast-ack", broadcastAck(payload, err), err)
}

func (c *collab) leaveAll(...any) {
	me := c.socket.Id()
	for _, room := range c.socket.Rooms().Keys() {
		if string(room) == string(me) {
			continue
		}
		room := room
		c.srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
			others := make([]socketio.SocketId, 0, len(users))
			for _, user := range users {
				if user.Id() != me {
					others = append(others, user.Id())
				}
			}
			c.rooms.Set(string(room), len(others))
			utils.Log().Printf("socket %v left %v, %d remaining", me, room, len(others))

			if len(others) > 0 {
				_ = c.srv.In(room).Emit("room-user-change", others)
			}
		})
	}
}

// reply answers the client's ack callback, if any, and also emits event so
// clients without ack support see the outcome.
func (c *collab) reply(ack ackFunc, event string, payload map[string]any, err error) {
	if ack != nil {
		ack(payload, err)
	}
	_ = c.socket.Emit(event, payload)
}

// splitAck separates a trailing acknowledgement callback from the event
// arguments.
func splitAck(args []any) (ackFunc, []any) {
	if len(args) == 0 {
		return nil, args
	}
	switch fn := args[len(args)-1].(type) {
	case func([]any, error):
		return func(payload map[string]any, err error) { fn([]any{payload}, err) }, args[:len(args)-1]
	case func(...any):
		return func(payload map[string]any, err error) {
			if err != nil {
				fn(err.Error())
				return
			}
			fn(payload)
		}, args[:len(args)-1]
	}
	return nil, args
}

func roomArg(args []any) (string, error) {
	if len(args) == 0 {
		return "", errRoomRequired
	}
	id, ok := args[0].(string)
	if !ok || id == "" {
		return "", errRoomInvalid
	}
	return id, nil
}

func broadcastArgs(args []any) (roomID string, payload, meta any, err error) {
	if len(args) < 3 {
		if len(args) > 1 {
			payload = args[1]
		}
		return "", payload, nil, errRoomRequired
	}
	roomID, _ = args[0].(string)
	if roomID == "" {
		return "", args[1], args[2], errRoomInvalid
	}
	return roomID, args[1], args[2], nil
}

func statusPayload(err error) map[string]any {
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok"}
}

// broadcastAck echoes the client's message id so it can match the ack to
// the update it sent.
func broadcastAck(original any, err error) map[string]any {
	payload := statusPayload(err)
	if m, ok := original.(map[string]any); ok {
		if id, ok := m["__collabMessageId"].(string); ok && id != "" {
			payload["messageId"] = id
		}
	}
	return payload
}
