package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabcanvas/core"
	"collabcanvas/handlers/api/objects"
	"collabcanvas/handlers/websocket"
	"collabcanvas/metrics"
	"collabcanvas/realtime"
	"collabcanvas/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func setupRouter(store core.ObjectStore, broker realtime.Broker, rooms *websocket.Rooms) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"tauri://localhost"},
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return origin != "" && websocket.AllowedOrigin(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", objects.ClientIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/objects", objects.Routes(store, broker))
	r.Get("/api/rooms", websocket.HandleListRooms(rooms))
	r.Get("/realtime/{table}", websocket.HandleFeed(broker))

	return r
}

func waitForShutdown(srv *http.Server, ioo *socketio.Server, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signals
	logrus.WithField("signal", s.String()).Info("Shutting down")

	cancel()
	ioo.Close(nil)

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Server did not shut down cleanly")
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := stores.GetStore(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open object store")
	}
	broker, err := realtime.GetBroker(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open change broker")
	}
	defer broker.Close()

	rooms := websocket.NewRooms()
	r := setupRouter(store, broker, rooms)
	ioo := websocket.SetupSocketIO(rooms)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	go func() {
		err := websocket.BridgeChanges(ctx, ioo, broker, core.ObjectsTable)
		if err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("Change relay stopped")
		}
	}()

	srv := &http.Server{Addr: *listenAddr, Handler: r}
	logrus.WithField("addr", *listenAddr).Info("Starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(srv, ioo, cancel)
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close object store")
		}
	}
}
