package sqlrow

import (
	"errors"
	"strings"
	"testing"
	"time"

	"collabcanvas/core"
)

// valuesRow scans the output of Values back, standing in for a driver.
type valuesRow struct {
	values []any
}

func (r valuesRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *float64:
			*p = r.values[i].(float64)
		case *int:
			*p = r.values[i].(int)
		case *int64:
			*p = r.values[i].(int64)
		case **string:
			*p = r.values[i].(*string)
		case **float64:
			*p = r.values[i].(*float64)
		case **int64:
			*p = r.values[i].(*int64)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func TestValuesScanRoundTrip(t *testing.T) {
	lockedAt := time.Date(2024, 3, 1, 10, 0, 0, 123, time.UTC)
	o := core.Materialize(core.ObjectPatch{
		Type:           core.Type(core.TypeText),
		X:              core.Float(-12.5),
		Stroke:         core.String("#000000"),
		LockedBy:       core.String("bob"),
		LockAcquiredAt: &lockedAt,
		TypeProperties: map[string]any{"text": "hello", "font_size": 18.0},
		Metadata:       map[string]any{"layer": "ink"},
	}, "t1", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	values, err := Values(o)
	if err != nil {
		t.Fatalf("Values() failed: %v", err)
	}
	got, err := Scan(valuesRow{values: values})
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	if got.ID != "t1" || got.Type != core.TypeText || got.X != -12.5 {
		t.Errorf("scalar columns = (%q, %q, %v)", got.ID, got.Type, got.X)
	}
	if got.Stroke == nil || *got.Stroke != "#000000" || got.GroupID != nil {
		t.Errorf("nullable columns stroke=%v group=%v", got.Stroke, got.GroupID)
	}
	if got.LockAcquiredAt == nil || !got.LockAcquiredAt.Equal(lockedAt) {
		t.Errorf("lock_acquired_at = %v, want %v", got.LockAcquiredAt, lockedAt)
	}
	if !got.CreatedAt.Equal(o.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, o.CreatedAt)
	}
	if got.TypeProperties["text"] != "hello" || got.Metadata["layer"] != "ink" {
		t.Errorf("maps = %v / %v", got.TypeProperties, got.Metadata)
	}
	if got.StyleProperties == nil {
		t.Error("empty style_properties should scan as an empty map")
	}
}

func TestStatements(t *testing.T) {
	insert := InsertSQL("canvas_objects", Dollar)
	if !strings.HasSuffix(insert, "$21)") {
		t.Errorf("InsertSQL() = %q, want 21 dollar placeholders", insert)
	}

	update := UpdateSQL("canvas_objects", Question)
	if !strings.HasPrefix(update, "UPDATE canvas_objects SET type = ?") || !strings.HasSuffix(update, "WHERE id = ?") {
		t.Errorf("UpdateSQL() = %q", update)
	}
	if n := strings.Count(update, "?"); n != 21 {
		t.Errorf("UpdateSQL() has %d placeholders, want 21", n)
	}
}
