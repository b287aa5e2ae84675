package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"collabcanvas/core"
	"collabcanvas/handlers/websocket"
	"collabcanvas/realtime"
	"collabcanvas/stores/memory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	broker := realtime.NewLocalBroker()
	t.Cleanup(func() { broker.Close() })
	return setupRouter(memory.NewStore(), broker, websocket.NewRooms())
}

func TestSetupRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("/healthz status = %d, want 204", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "collabcanvas_") {
		t.Errorf("/metrics status = %d, collabcanvas metrics present = %v",
			rr.Code, strings.Contains(rr.Body.String(), "collabcanvas_"))
	}
}

func TestSetupRouter_ObjectsAPI(t *testing.T) {
	r := newTestRouter(t)

	body := `{"id":"a","type":"circle","x":5,"y":-5,"width":10,"height":10,"fill":"#ff0000","opacity":1}`
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/objects/", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/objects/a", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var got core.CanvasObject
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != core.TypeCircle || got.X != 5 {
		t.Errorf("object = %+v", got)
	}
}

func TestSetupRouter_Rooms(t *testing.T) {
	r := newTestRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", rr.Body)
	}
}

func TestSetupRouter_CORS(t *testing.T) {
	r := newTestRouter(t)

	testCases := []struct {
		origin string
		allow  bool
	}{
		{"http://localhost:5173", true},
		{"tauri://localhost", true},
		{"https://example.com", false},
	}

	for _, tc := range testCases {
		t.Run(tc.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/objects/", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
			req.Header.Set("Access-Control-Request-Headers", "X-Client-ID")

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			got := rr.Header().Get("Access-Control-Allow-Origin")
			if tc.allow && got != tc.origin {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.origin)
			}
			if !tc.allow && got != "" {
				t.Errorf("Allow-Origin = %q, want none", got)
			}
		})
	}
}
