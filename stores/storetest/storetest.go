// Package storetest holds the behaviour every core.ObjectStore backend must
// share. Backend tests call Run with a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"collabcanvas/core"
)

func fixture(id string, z int, created time.Time) *core.CanvasObject {
	return core.Materialize(core.ObjectPatch{
		X:              core.Float(float64(z) * 10),
		ZIndex:         core.Int(z),
		Stroke:         core.String("#111111"),
		TypeProperties: map[string]any{"corner_radius": 4.0},
		Metadata:       map[string]any{"layer": "base"},
	}, id, created)
}

func Run(t *testing.T, s core.ObjectStore) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	a := fixture("a", 2, created)
	b := fixture("b", 1, created.Add(time.Second))

	t.Run("insert", func(t *testing.T) {
		for _, o := range []*core.CanvasObject{a, b} {
			if err := s.Insert(ctx, o); err != nil {
				t.Fatalf("Insert(%s) failed: %v", o.ID, err)
			}
		}
		if err := s.Insert(ctx, a); !errors.Is(err, core.ErrConflict) {
			t.Errorf("duplicate Insert() error = %v, want ErrConflict", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		got, err := s.Get(ctx, "a")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		assertSame(t, got, a)

		if _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		all, err := s.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll() failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("ListAll() returned %d objects, want 2", len(all))
		}
		core.SortObjects(all)
		if all[0].ID != "b" || all[1].ID != "a" {
			t.Errorf("ListAll() order = [%s %s], want [b a]", all[0].ID, all[1].ID)
		}
	})

	t.Run("update", func(t *testing.T) {
		updated := created.Add(time.Hour)
		patch := &core.ObjectPatch{
			X:         core.Float(-300),
			Fill:      core.String("#ff0000"),
			Metadata:  map[string]any{"layer": "top"},
			UpdatedAt: &updated,
			Clear:     []string{core.FieldStroke},
		}
		row, err := s.UpdateFields(ctx, "a", patch)
		if err != nil {
			t.Fatalf("UpdateFields() failed: %v", err)
		}
		if row.X != -300 || row.Fill != "#ff0000" || row.Stroke != nil {
			t.Errorf("returned row = x %v fill %q stroke %v", row.X, row.Fill, row.Stroke)
		}

		got, err := s.Get(ctx, "a")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.X != -300 || got.Metadata["layer"] != "top" || !got.UpdatedAt.Equal(updated) {
			t.Errorf("stored row = x %v metadata %v updated %v", got.X, got.Metadata, got.UpdatedAt)
		}
		if got.Width != a.Width || !got.CreatedAt.Equal(a.CreatedAt) {
			t.Error("untouched columns changed")
		}

		if _, err := s.UpdateFields(ctx, "missing", patch); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("UpdateFields(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		removed, err := s.DeleteMany(ctx, []string{"a", "missing"})
		if err != nil {
			t.Fatalf("DeleteMany() failed: %v", err)
		}
		if len(removed) != 1 || removed[0].ID != "a" {
			t.Fatalf("DeleteMany() removed %d rows, want only a", len(removed))
		}
		if _, err := s.Get(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("Get(a) after delete error = %v, want ErrNotFound", err)
		}
		if _, err := s.Get(ctx, "b"); err != nil {
			t.Errorf("b should survive: %v", err)
		}

		removed, err = s.DeleteMany(ctx, []string{"missing"})
		if err != nil || len(removed) != 0 {
			t.Errorf("DeleteMany(missing) = %d rows, %v; want 0, nil", len(removed), err)
		}
	})
}

func assertSame(t *testing.T, got, want *core.CanvasObject) {
	t.Helper()
	if got.ID != want.ID || got.Type != want.Type || got.X != want.X || got.Y != want.Y ||
		got.Width != want.Width || got.Height != want.Height || got.ZIndex != want.ZIndex ||
		got.Fill != want.Fill || got.Opacity != want.Opacity {
		t.Errorf("scalar fields differ:\n got %+v\nwant %+v", got, want)
	}
	if got.Stroke == nil || *got.Stroke != *want.Stroke {
		t.Errorf("stroke = %v, want %q", got.Stroke, *want.Stroke)
	}
	if got.GroupID != nil || got.LockedBy != nil {
		t.Error("null columns came back set")
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("timestamps = %v/%v, want %v/%v", got.CreatedAt, got.UpdatedAt, want.CreatedAt, want.UpdatedAt)
	}
	if got.TypeProperties["corner_radius"] != 4.0 || got.Metadata["layer"] != "base" {
		t.Errorf("maps = %v / %v", got.TypeProperties, got.Metadata)
	}
}
