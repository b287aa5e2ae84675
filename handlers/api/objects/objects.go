package objects

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"collabcanvas/core"
	"collabcanvas/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// ClientIDHeader carries the writer's client id. It is copied into the
// Origin of the change events the write produces.
const ClientIDHeader = "X-Client-ID"

type (
	DeleteRequest struct {
		IDs []string `json:"ids"`
	}

	DeleteResponse struct {
		Deleted []string `json:"deleted"`
	}

	Publisher interface {
		Publish(ctx context.Context, ev core.ChangeEvent) error
	}
)

// Routes mounts the object API; main serves it under /api/objects.
func Routes(store core.ObjectStore, pub Publisher) chi.Router {
	r := chi.NewRouter()
	r.Get("/", HandleList(store))
	r.Post("/", HandleCreate(store, pub))
	r.Post("/delete", HandleDelete(store, pub))
	r.Get("/{id}", HandleGet(store))
	r.Patch("/{id}", HandleUpdate(store, pub))
	return r
}

func HandleList(store core.ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		objects, err := store.ListAll(r.Context())
		metrics.StoreOperations.WithLabelValues("list", metrics.Result(err)).Inc()
		if err != nil {
			logrus.WithError(err).Error("Failed to list objects")
			renderError(w, r, err)
			return
		}
		if objects == nil {
			objects = []*core.CanvasObject{}
		}
		render.JSON(w, r, objects)
	}
}

func HandleGet(store core.ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		object, err := store.Get(r.Context(), id)
		metrics.StoreOperations.WithLabelValues("get", metrics.Result(err)).Inc()
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, object)
	}
}

// HandleCreate stores a full object. A missing id is assigned by the
// server; missing timestamps default to now.
func HandleCreate(store core.ObjectStore, pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var object core.CanvasObject
		if err := json.NewDecoder(r.Body).Decode(&object); err != nil {
			logrus.WithError(err).Warn("Failed to decode object")
			renderError(w, r, &core.ValidationError{Reason: "invalid request body", Err: err})
			return
		}
		fillDefaults(&object, time.Now().UTC())
		if err := core.ValidateObject(&object); err != nil {
			renderError(w, r, err)
			return
		}

		err := store.Insert(r.Context(), &object)
		metrics.StoreOperations.WithLabelValues("insert", metrics.Result(err)).Inc()
		if err != nil {
			renderError(w, r, err)
			return
		}

		publish(r, pub, core.ChangeEvent{Type: core.ChangeInsert, New: &object})
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, &object)
	}
}

func HandleUpdate(store core.ObjectStore, pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logrus.WithField("object_id", id)

		var patch core.ObjectPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			log.WithError(err).Warn("Failed to decode patch")
			renderError(w, r, &core.ValidationError{Reason: "invalid request body", Err: err})
			return
		}
		if patch.IsEmpty() {
			renderError(w, r, &core.ValidationError{Reason: "patch changes nothing"})
			return
		}
		if err := core.ValidatePatch(&patch); err != nil {
			renderError(w, r, err)
			return
		}
		if patch.Type != nil || patch.TypeProperties != nil {
			if err := validateMerged(r.Context(), store, id, &patch); err != nil {
				renderError(w, r, err)
				return
			}
		}
		if patch.UpdatedAt == nil {
			now := time.Now().UTC()
			patch.UpdatedAt = &now
		}

		object, err := store.UpdateFields(r.Context(), id, &patch)
		metrics.StoreOperations.WithLabelValues("update", metrics.Result(err)).Inc()
		if err != nil {
			renderError(w, r, err)
			return
		}

		publish(r, pub, core.ChangeEvent{Type: core.ChangeUpdate, New: object})
		render.JSON(w, r, object)
	}
}

// HandleDelete removes a batch. Unknown ids are skipped and left out of
// the response.
func HandleDelete(store core.ObjectStore, pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, r, &core.ValidationError{Reason: "invalid request body", Err: err})
			return
		}
		if len(req.IDs) == 0 {
			renderError(w, r, &core.ValidationError{Field: "ids", Reason: "at least one id is required"})
			return
		}

		removed, err := store.DeleteMany(r.Context(), req.IDs)
		metrics.StoreOperations.WithLabelValues("delete", metrics.Result(err)).Inc()
		if err != nil {
			renderError(w, r, err)
			return
		}

		resp := DeleteResponse{Deleted: make([]string, 0, len(removed))}
		for _, o := range removed {
			resp.Deleted = append(resp.Deleted, o.ID)
			publish(r, pub, core.ChangeEvent{Type: core.ChangeDelete, Old: o})
		}
		render.JSON(w, r, resp)
	}
}

func validateMerged(ctx context.Context, store core.ObjectStore, id string, patch *core.ObjectPatch) error {
	current, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	patch.Apply(current)
	return core.ValidateObject(current)
}

func fillDefaults(o *core.CanvasObject, now time.Time) {
	if o.ID == "" {
		o.ID = ulid.Make().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if o.TypeProperties == nil {
		o.TypeProperties = map[string]any{}
	}
	if o.StyleProperties == nil {
		o.StyleProperties = map[string]any{}
	}
	if o.Metadata == nil {
		o.Metadata = map[string]any{}
	}
}

// publish announces a committed write. The write already succeeded, so a
// broker failure is only logged.
func publish(r *http.Request, pub Publisher, ev core.ChangeEvent) {
	ev.Table = core.ObjectsTable
	ev.Origin = r.Header.Get(ClientIDHeader)
	ev.CommitTime = time.Now().UTC()

	if err := pub.Publish(r.Context(), ev); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"type":      ev.Type,
			"object_id": ev.ObjectID(),
		}).Warn("Failed to publish change event")
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("Object store request failed")
		msg = "internal error"
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}
