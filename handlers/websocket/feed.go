package websocket

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"collabcanvas/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || AllowedOrigin(origin)
	},
}

// AllowedOrigin accepts local browser origins and the desktop shell.
func AllowedOrigin(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	case "tauri":
		return parsed.Hostname() == "localhost"
	}
	return false
}

// HandleFeed streams the change events of the {table} URL parameter as JSON
// text frames. The feed is one way; anything the client sends is discarded.
func HandleFeed(sub Subscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "table")
		log := logrus.WithFields(logrus.Fields{"table": table, "remote": r.RemoteAddr})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		events, err := sub.Subscribe(ctx, table)
		if err != nil {
			log.WithError(err).Error("Failed to subscribe feed")
			http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("Failed to upgrade feed connection")
			return
		}
		defer conn.Close()

		metrics.FeedSubscribers.Inc()
		defer metrics.FeedSubscribers.Dec()
		log.Debug("Feed subscriber connected")

		go discardReads(conn, cancel)

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("Feed subscriber disconnected")
				return
			case ev, ok := <-events:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					log.Warn("Feed subscription dropped")
					closeFeed(conn, websocket.CloseTryAgainLater, "subscription dropped")
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					log.WithError(err).Debug("Failed to write change")
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}
}

// discardReads keeps control frames flowing and cancels once the peer goes
// away.
func discardReads(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func closeFeed(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
