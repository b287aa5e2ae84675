// Package session wires a repository, pipeline and reconciler around one
// remote store and renderer. Sessions share nothing, so several can run in
// one process.
package session

import (
	"context"
	"errors"
	"fmt"

	"collabcanvas/coords"
	"collabcanvas/core"
	"collabcanvas/pipeline"
	"collabcanvas/reconciler"
	"collabcanvas/renderer"
	"collabcanvas/repository"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Remote   core.RemoteStore
	Renderer core.Renderer

	// Table defaults to core.ObjectsTable.
	Table  string
	Logger logrus.FieldLogger

	ResyncOnReconnect bool
	PipelineOptions   []pipeline.Option
	ReconcilerOptions []reconciler.Option
}

type Session struct {
	repo *repository.Repository
	disp *pipeline.Dispatcher
	pipe *pipeline.Pipeline
	rc   *reconciler.Reconciler
	view *View

	cancel context.CancelFunc
	done   chan struct{}
	log    logrus.FieldLogger
}

// Open seeds a fresh repository from ListAll, draws the seeded objects and
// starts following the change feed.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Remote == nil || opts.Renderer == nil {
		return nil, errors.New("session needs a remote store and a renderer")
	}
	if opts.Table == "" {
		opts.Table = core.ObjectsTable
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	log := opts.Logger.WithField("table", opts.Table)

	objects, err := opts.Remote.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("seeding repository: %w", err)
	}

	repo := repository.New(log)
	repo.Seed(objects)
	for _, o := range objects {
		renderer.Show(opts.Renderer, o)
	}
	opts.Renderer.RequestRedraw()

	disp := pipeline.NewDispatcher(log)
	pipe := pipeline.New(repo, opts.Renderer, opts.Remote, disp,
		append([]pipeline.Option{pipeline.WithLogger(log)}, opts.PipelineOptions...)...)
	rc := reconciler.New(repo, opts.Renderer, opts.Remote, disp, opts.Table,
		append([]reconciler.Option{
			reconciler.WithLogger(log),
			reconciler.WithResyncOnReconnect(opts.ResyncOnReconnect),
		}, opts.ReconcilerOptions...)...)

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		repo:   repo,
		disp:   disp,
		pipe:   pipe,
		rc:     rc,
		view:   &View{repo: repo},
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}
	go func() {
		defer close(s.done)
		_ = rc.Run(runCtx)
	}()

	log.WithField("objects", len(objects)).Info("Canvas session opened")
	return s, nil
}

func (s *Session) Pipeline() *pipeline.Pipeline {
	return s.pipe
}

// View is the read-only side of the session.
func (s *Session) View() *View {
	return s.view
}

// Resync reloads the repository from the remote store.
func (s *Session) Resync(ctx context.Context) error {
	return s.rc.Resync(ctx)
}

// SyncViewport stores a viewport the coords package can invert. A zero or
// negative zoom is rejected here, before it reaches the repository.
func (s *Session) SyncViewport(zoom, panX, panY float64) error {
	vpt := coords.ViewportTransform{Zoom: zoom, PanX: panX, PanY: panY}
	if err := coords.ValidateViewport(vpt); err != nil {
		return &core.ValidationError{Field: "viewport", Reason: "zoom must be positive and pan finite", Err: err}
	}
	return s.repo.SyncViewport(zoom, panX, panY)
}

// Close waits for in-flight persists, then stops the change feed and the
// dispatcher.
func (s *Session) Close(ctx context.Context) error {
	err := s.pipe.Flush(ctx)
	s.cancel()
	<-s.done
	s.disp.Close()
	s.log.Info("Canvas session closed")
	return err
}

type View struct {
	repo *repository.Repository
}

func (v *View) List() []*core.CanvasObject {
	return v.repo.List()
}

func (v *View) Get(id string) (*core.CanvasObject, bool) {
	return v.repo.Get(id)
}

func (v *View) RenderKey() uint64 {
	return v.repo.RenderKey()
}

func (v *View) RestoreViewport() core.ViewportState {
	return v.repo.RestoreViewport()
}

// ViewportBounds is the render-space rectangle visible on a screen of the
// given size under the stored viewport.
func (v *View) ViewportBounds(screenW, screenH float64) coords.Bounds {
	return coords.ComputeViewportBounds(v.repo.RestoreViewport().Transform(), screenW, screenH)
}

// Changes signals object changes until stop is called.
func (v *View) Changes() (changes <-chan struct{}, stop func()) {
	ch := v.repo.Subscribe()
	return ch, func() { v.repo.Unsubscribe(ch) }
}
