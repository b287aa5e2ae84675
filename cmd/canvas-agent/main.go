// Command canvas-agent is a headless canvas client. It mirrors a server's
// objects into memory, follows the change feed and logs what it sees. With
// -script it also draws, moves and deletes a shape through the optimistic
// pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"collabcanvas/core"
	"collabcanvas/remote"
	"collabcanvas/renderer/headless"
	"collabcanvas/session"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type config struct {
	serverURL string
	table     string
	resync    bool
	script    bool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	resync, _ := strconv.ParseBool(os.Getenv("CANVAS_RESYNC"))
	var cfg config
	flag.StringVar(&cfg.serverURL, "server", envOr("CANVAS_SERVER_URL", "http://localhost:3002"), "collabcanvas server url")
	flag.StringVar(&cfg.table, "table", envOr("CANVAS_TABLE", core.ObjectsTable), "table to follow")
	flag.BoolVar(&cfg.resync, "resync", resync, "reload all objects after a feed reconnect")
	flag.BoolVar(&cfg.script, "script", false, "create, move and delete a demo rectangle")
	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("Agent failed")
	}
}

func run(ctx context.Context, cfg config) error {
	client, err := remote.NewClient(cfg.serverURL)
	if err != nil {
		return err
	}
	log := logrus.WithField("client_id", client.ClientID())

	mirror := headless.New()
	s, err := session.Open(ctx, session.Options{
		Remote:            client,
		Renderer:          mirror,
		Table:             cfg.table,
		Logger:            log,
		ResyncOnReconnect: cfg.resync,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			log.WithError(err).Warn("Session closed with persists outstanding")
		}
	}()

	report(log, s.View(), mirror)
	if cfg.script {
		if err := runScript(ctx, s); err != nil {
			log.WithError(err).Error("Script failed")
		}
	}

	changes, unsubscribe := s.View().Changes()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			report(log, s.View(), mirror)
		}
	}
}

func report(log logrus.FieldLogger, view *session.View, mirror *headless.Renderer) {
	log.WithFields(logrus.Fields{
		"objects":    len(view.List()),
		"visuals":    mirror.Len(),
		"render_key": view.RenderKey(),
	}).Info("Canvas state")
}

// runScript draws a rectangle, moves it and deletes it, waiting for the
// server to confirm each step.
func runScript(ctx context.Context, s *session.Session) error {
	p := s.Pipeline()

	task, err := p.Create(ctx, core.ObjectPatch{
		Type:   core.Type(core.TypeRectangle),
		X:      core.Float(-200),
		Y:      core.Float(-100),
		Width:  core.Float(400),
		Height: core.Float(200),
		Fill:   core.String("#10b981"),
	})
	if err != nil {
		return err
	}
	id, err := task.Resolve(ctx)
	if err != nil {
		return err
	}
	logrus.WithField("object_id", id).Info("Script created rectangle")

	task, err = p.Update(ctx, id, core.ObjectPatch{X: core.Float(0), Rotation: core.Float(15)})
	if err != nil {
		return err
	}
	if err := task.Wait(ctx); err != nil {
		return err
	}

	task, err = p.DeleteMany(ctx, []string{id})
	if err != nil {
		return err
	}
	return task.Wait(ctx)
}
