package core

import (
	"context"
	"maps"
	"sort"
	"time"

	"collabcanvas/coords"
)

// ObjectsTable is the name of the table (and change feed) holding canvas objects.
const ObjectsTable = "canvas_objects"

type ObjectType string

const (
	TypeRectangle ObjectType = "rectangle"
	TypeCircle    ObjectType = "circle"
	TypeText      ObjectType = "text"
	TypeLine      ObjectType = "line"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Origin records whether an entry carries local writes the remote store has
// not confirmed yet.
type Origin int

const (
	Confirmed Origin = iota
	LocalPending
)

func (o Origin) String() string {
	if o == LocalPending {
		return "local-pending"
	}
	return "confirmed"
}

type (
	// CanvasObject is one shape on the canvas. X and Y are always in center
	// space; no other coordinate space is persisted or exchanged.
	CanvasObject struct {
		ID              string         `json:"id"`
		Type            ObjectType     `json:"type"`
		X               float64        `json:"x"`
		Y               float64        `json:"y"`
		Width           float64        `json:"width"`
		Height          float64        `json:"height"`
		Rotation        float64        `json:"rotation"`
		GroupID         *string        `json:"group_id"`
		ZIndex          int            `json:"z_index"`
		Fill            string         `json:"fill"`
		Stroke          *string        `json:"stroke"`
		StrokeWidth     *float64       `json:"stroke_width"`
		Opacity         float64        `json:"opacity"`
		TypeProperties  map[string]any `json:"type_properties"`
		StyleProperties map[string]any `json:"style_properties"`
		Metadata        map[string]any `json:"metadata"`
		CreatedBy       *string        `json:"created_by"`
		CreatedAt       time.Time      `json:"created_at"`
		UpdatedAt       time.Time      `json:"updated_at"`
		LockedBy        *string        `json:"locked_by"`
		LockAcquiredAt  *time.Time     `json:"lock_acquired_at"`
	}

	ViewportState struct {
		Zoom float64 `json:"zoom"`
		PanX float64 `json:"panX"`
		PanY float64 `json:"panY"`
	}

	// ChangeEvent is one row mutation pushed by the remote store.
	ChangeEvent struct {
		Type       ChangeType    `json:"type"`
		Table      string        `json:"table"`
		New        *CanvasObject `json:"new,omitempty"`
		Old        *CanvasObject `json:"old,omitempty"`
		Origin     string        `json:"origin,omitempty"`
		CommitTime time.Time     `json:"commit_time"`
	}

	// ObjectStore is the authoritative persistence layer behind the remote API.
	ObjectStore interface {
		ListAll(ctx context.Context) ([]*CanvasObject, error)
		Get(ctx context.Context, id string) (*CanvasObject, error)

		// Insert fails with ErrConflict when the id already exists.
		Insert(ctx context.Context, object *CanvasObject) error

		// UpdateFields merges patch into the stored row and returns the new row.
		// It fails with ErrNotFound for unknown ids.
		UpdateFields(ctx context.Context, id string, patch *ObjectPatch) (*CanvasObject, error)

		// DeleteMany removes every existing id and returns the removed rows.
		// Unknown ids are skipped.
		DeleteMany(ctx context.Context, ids []string) ([]*CanvasObject, error)
	}
)

func DefaultViewport() ViewportState {
	return ViewportState{Zoom: 1}
}

func (v ViewportState) Transform() coords.ViewportTransform {
	return coords.ViewportTransform{Zoom: v.Zoom, PanX: v.PanX, PanY: v.PanY}
}

// Position returns the object's center-space position.
func (o *CanvasObject) Position() coords.Point {
	return coords.Point{X: o.X, Y: o.Y}
}

// Clone returns a copy that shares no maps or pointers with o.
func (o *CanvasObject) Clone() *CanvasObject {
	if o == nil {
		return nil
	}
	c := *o
	c.GroupID = clonePtr(o.GroupID)
	c.Stroke = clonePtr(o.Stroke)
	c.StrokeWidth = clonePtr(o.StrokeWidth)
	c.CreatedBy = clonePtr(o.CreatedBy)
	c.LockedBy = clonePtr(o.LockedBy)
	c.LockAcquiredAt = clonePtr(o.LockAcquiredAt)
	c.TypeProperties = maps.Clone(o.TypeProperties)
	c.StyleProperties = maps.Clone(o.StyleProperties)
	c.Metadata = maps.Clone(o.Metadata)
	return &c
}

// ObjectID returns the id of the row the event refers to.
func (e ChangeEvent) ObjectID() string {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SortObjects orders objects for drawing: z_index, then creation time, then
// id.
func SortObjects(objects []*CanvasObject) {
	sort.Slice(objects, func(i, j int) bool {
		a, b := objects[i], objects[j]
		if a.ZIndex != b.ZIndex {
			return a.ZIndex < b.ZIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
