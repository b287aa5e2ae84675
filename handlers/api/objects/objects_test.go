package objects

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"collabcanvas/core"
	"collabcanvas/stores/memory"
)

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []core.ChangeEvent
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, ev core.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (f failingStore) ListAll(context.Context) ([]*core.CanvasObject, error) { return nil, f.err }
func (f failingStore) Get(context.Context, string) (*core.CanvasObject, error) {
	return nil, f.err
}
func (f failingStore) Insert(context.Context, *core.CanvasObject) error { return f.err }
func (f failingStore) UpdateFields(context.Context, string, *core.ObjectPatch) (*core.CanvasObject, error) {
	return nil, f.err
}
func (f failingStore) DeleteMany(context.Context, []string) ([]*core.CanvasObject, error) {
	return nil, f.err
}

func setup(t *testing.T) (*httptest.Server, *memory.Store, *mockPublisher) {
	t.Helper()
	store := memory.NewStore()
	pub := &mockPublisher{}
	srv := httptest.NewServer(Routes(store, pub))
	t.Cleanup(srv.Close)
	return srv, store, pub
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ClientIDHeader, "client-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sample(id string) *core.CanvasObject {
	return core.Materialize(core.ObjectPatch{X: core.Float(25)}, id, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
}

func TestCreateAndGet(t *testing.T) {
	srv, _, pub := setup(t)

	resp := do(t, http.MethodPost, srv.URL+"/", sample("a"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	var got core.CanvasObject
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "a" || got.X != 25 {
		t.Errorf("got %+v", got)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != core.ChangeInsert || ev.Table != core.ObjectsTable || ev.Origin != "client-1" || ev.ObjectID() != "a" {
		t.Errorf("event = %+v", ev)
	}
}

func TestCreate_AssignsID(t *testing.T) {
	srv, store, _ := setup(t)
	o := sample("")

	resp := do(t, http.MethodPost, srv.URL+"/", o)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var got core.CanvasObject
	json.NewDecoder(resp.Body).Decode(&got)
	if got.ID == "" {
		t.Fatal("server did not assign an id")
	}
	if _, err := store.Get(context.Background(), got.ID); err != nil {
		t.Errorf("assigned id not stored: %v", err)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, store, _ := setup(t)
	store.Insert(context.Background(), sample("a"))

	outOfRange := sample("far")
	outOfRange.X = 9000

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"duplicate create", http.MethodPost, "/", sample("a"), http.StatusConflict},
		{"create out of range", http.MethodPost, "/", outOfRange, http.StatusBadRequest},
		{"create empty type", http.MethodPost, "/", map[string]any{"id": "z", "type": ""}, http.StatusBadRequest},
		{"get missing", http.MethodGet, "/missing", nil, http.StatusNotFound},
		{"update missing", http.MethodPatch, "/missing", map[string]any{"x": 1}, http.StatusNotFound},
		{"update bad opacity", http.MethodPatch, "/a", map[string]any{"opacity": 3}, http.StatusBadRequest},
		{"update empty", http.MethodPatch, "/a", map[string]any{}, http.StatusBadRequest},
		{"update props for wrong type", http.MethodPatch, "/a", map[string]any{"type_properties": map[string]any{"radius": 3}}, http.StatusBadRequest},
		{"delete without ids", http.MethodPost, "/delete", DeleteRequest{}, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, tc.method, srv.URL+tc.path, tc.body)
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestUpdate_PublishesNewRow(t *testing.T) {
	srv, store, pub := setup(t)
	store.Insert(context.Background(), sample("a"))

	resp := do(t, http.MethodPatch, srv.URL+"/a", map[string]any{
		"fill":  "#00ff00",
		"clear": []string{"stroke"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	stored, _ := store.Get(context.Background(), "a")
	if stored.Fill != "#00ff00" {
		t.Errorf("fill = %q, want #00ff00", stored.Fill)
	}
	if !stored.UpdatedAt.After(stored.CreatedAt) {
		t.Error("updated_at was not stamped")
	}
	if len(pub.events) != 1 || pub.events[0].Type != core.ChangeUpdate || pub.events[0].New.Fill != "#00ff00" {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestCreate_OpenType(t *testing.T) {
	srv, store, _ := setup(t)

	resp := do(t, http.MethodPost, srv.URL+"/", map[string]any{
		"id":              "e",
		"type":            "ellipse",
		"type_properties": map[string]any{"rx": 4, "ry": 2},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	stored, err := store.Get(context.Background(), "e")
	if err != nil {
		t.Fatalf("object not stored: %v", err)
	}
	if stored.Type != "ellipse" || stored.TypeProperties["rx"] != 4.0 {
		t.Errorf("stored %s with %v", stored.Type, stored.TypeProperties)
	}
}

func TestUpdate_EmptyMapClears(t *testing.T) {
	srv, store, pub := setup(t)
	a := sample("a")
	a.Metadata = map[string]any{"label": "x"}
	a.StyleProperties = map[string]any{"dash": "dotted"}
	store.Insert(context.Background(), a)

	testCases := []struct {
		name  string
		body  string
		field func(*core.CanvasObject) map[string]any
	}{
		{"metadata", `{"metadata":{}}`, func(o *core.CanvasObject) map[string]any { return o.Metadata }},
		{"style properties", `{"style_properties":{}}`, func(o *core.CanvasObject) map[string]any { return o.StyleProperties }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, http.MethodPatch, srv.URL+"/a", json.RawMessage(tc.body))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			var echoed core.CanvasObject
			if err := json.NewDecoder(resp.Body).Decode(&echoed); err != nil {
				t.Fatal(err)
			}
			if len(tc.field(&echoed)) != 0 {
				t.Errorf("response still carries %v", tc.field(&echoed))
			}
			stored, _ := store.Get(context.Background(), "a")
			if len(tc.field(stored)) != 0 {
				t.Errorf("stored map = %v, want empty", tc.field(stored))
			}
		})
	}
	if len(pub.events) != 2 || len(pub.events[0].New.Metadata) != 0 {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestDelete_SkipsUnknown(t *testing.T) {
	srv, store, pub := setup(t)
	store.Insert(context.Background(), sample("a"))

	resp := do(t, http.MethodPost, srv.URL+"/delete", DeleteRequest{IDs: []string{"a", "b"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got DeleteResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if len(got.Deleted) != 1 || got.Deleted[0] != "a" {
		t.Errorf("deleted = %v, want [a]", got.Deleted)
	}
	if len(pub.events) != 1 || pub.events[0].Type != core.ChangeDelete || pub.events[0].Old.ID != "a" {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	srv, _, _ := setup(t)

	resp := do(t, http.MethodGet, srv.URL+"/", nil)
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("body = %q, want []", buf.String())
	}
}

func TestStoreFailureIs500(t *testing.T) {
	srv := httptest.NewServer(Routes(failingStore{err: errors.New("disk on fire")}, &mockPublisher{}))
	defer srv.Close()

	resp := do(t, http.MethodGet, srv.URL+"/", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if strings.Contains(body["error"], "disk") {
		t.Error("internal error detail leaked to client")
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	store := memory.NewStore()
	srv := httptest.NewServer(Routes(store, &mockPublisher{err: errors.New("broker down")}))
	defer srv.Close()

	resp := do(t, http.MethodPost, srv.URL+"/", sample("a"))
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
}
