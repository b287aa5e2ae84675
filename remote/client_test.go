package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collabcanvas/core"
	"collabcanvas/handlers/api/objects"
	feed "collabcanvas/handlers/websocket"
	"collabcanvas/realtime"
	"collabcanvas/stores/memory"

	"github.com/go-chi/chi/v5"
)

type harness struct {
	store  *memory.Store
	broker *realtime.LocalBroker
	client *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: memory.NewStore(), broker: realtime.NewLocalBroker()}

	r := chi.NewRouter()
	r.Mount("/api/objects", objects.Routes(h.store, h.broker))
	r.Get("/realtime/{table}", feed.HandleFeed(h.broker))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		h.broker.Close()
		srv.Close()
	})

	client, err := NewClient(srv.URL+"/", WithClientID("client-1"))
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	h.client = client
	return h
}

func object(id string) *core.CanvasObject {
	return core.Materialize(core.ObjectPatch{X: core.Float(10)}, id, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
}

func TestClient_CRUD(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.client.Insert(ctx, object("a")); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if err := h.client.Insert(ctx, object("b")); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if err := h.client.UpdateFields(ctx, "a", &core.ObjectPatch{Fill: core.String("#000000")}); err != nil {
		t.Fatalf("UpdateFields() failed: %v", err)
	}

	list, err := h.client.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListAll() returned %d objects, want 2", len(list))
	}
	stored, _ := h.store.Get(ctx, "a")
	if stored.Fill != "#000000" || stored.X != 10 {
		t.Errorf("stored a = fill %q x %v", stored.Fill, stored.X)
	}

	if err := h.client.DeleteMany(ctx, []string{"a", "missing"}); err != nil {
		t.Fatalf("DeleteMany() failed: %v", err)
	}
	if _, err := h.store.Get(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("a still stored after delete: %v", err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.client.Insert(ctx, object("a")); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	if err := h.client.Insert(ctx, object("a")); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate Insert() error = %v, want ErrConflict", err)
	}
	if err := h.client.UpdateFields(ctx, "ghost", &core.ObjectPatch{X: core.Float(1)}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateFields(ghost) error = %v, want ErrNotFound", err)
	}
	if err := h.client.UpdateFields(ctx, "a", &core.ObjectPatch{}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("empty UpdateFields() error = %v, want ErrValidation", err)
	}
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream sad", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	_, err = client.ListAll(context.Background())

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("ListAll() error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusBadGateway || se.Message != "upstream sad" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestClient_SendsClientID(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(objects.ClientIDHeader)
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL)
	if _, err := client.ListAll(context.Background()); err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if got == "" || got != client.ClientID() {
		t.Errorf("%s = %q, want %q", objects.ClientIDHeader, got, client.ClientID())
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"ftp://host", "://nope", "localhost:3002"} {
		if _, err := NewClient(raw); err == nil {
			t.Errorf("NewClient(%q) succeeded", raw)
		}
	}
}

func TestClient_SubscribeChanges(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := h.client.SubscribeChanges(ctx, core.ObjectsTable)
	if err != nil {
		t.Fatalf("SubscribeChanges() failed: %v", err)
	}
	if err := h.client.Insert(ctx, object("a")); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("feed closed before the insert arrived")
		}
		if ev.Type != core.ChangeInsert || ev.ObjectID() != "a" {
			t.Errorf("event = %+v, want INSERT a", ev)
		}
		if ev.Origin != "client-1" {
			t.Errorf("Origin = %q, want client-1", ev.Origin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}

	cancel()
	select {
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed channel not closed after cancel")
	}
}

func TestClient_SubscribeClosesOnDisconnect(t *testing.T) {
	h := newHarness(t)

	events, err := h.client.SubscribeChanges(context.Background(), core.ObjectsTable)
	if err != nil {
		t.Fatalf("SubscribeChanges() failed: %v", err)
	}
	h.broker.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("unexpected event after broker close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed channel not closed after server-side close")
	}
}
