// Package sqlrow maps canvas objects to and from the canvas_objects table
// for the SQL backends. Times are stored as unix nanoseconds and the open
// property maps as JSON text.
package sqlrow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"collabcanvas/core"
)

var columns = []string{
	"id", "type", "x", "y", "width", "height", "rotation", "group_id", "z_index",
	"fill", "stroke", "stroke_width", "opacity", "type_properties",
	"style_properties", "metadata", "created_by", "created_at", "updated_at",
	"locked_by", "lock_acquired_at",
}

// Columns is the select list in Scan order.
var Columns = strings.Join(columns, ", ")

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

func Question(int) string { return "?" }

func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Scanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type Scanner interface {
	Scan(dest ...any) error
}

func InsertSQL(table string, ph Placeholder) string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, Columns, strings.Join(marks, ", "))
}

// UpdateSQL rewrites every column but id. Its arguments are Values(o)[1:]
// followed by the id.
func UpdateSQL(table string, ph Placeholder) string {
	sets := make([]string, 0, len(columns)-1)
	for i, c := range columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = %s", c, ph(i+1)))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", table, strings.Join(sets, ", "), ph(len(columns)))
}

// Values returns o's column values in Columns order.
func Values(o *core.CanvasObject) ([]any, error) {
	typeProps, err := encodeMap(o.TypeProperties)
	if err != nil {
		return nil, fmt.Errorf("type_properties: %w", err)
	}
	styleProps, err := encodeMap(o.StyleProperties)
	if err != nil {
		return nil, fmt.Errorf("style_properties: %w", err)
	}
	metadata, err := encodeMap(o.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	var lockedAt *int64
	if o.LockAcquiredAt != nil {
		n := o.LockAcquiredAt.UnixNano()
		lockedAt = &n
	}

	return []any{
		o.ID, string(o.Type), o.X, o.Y, o.Width, o.Height, o.Rotation, o.GroupID, o.ZIndex,
		o.Fill, o.Stroke, o.StrokeWidth, o.Opacity, typeProps,
		styleProps, metadata, o.CreatedBy, o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano(),
		o.LockedBy, lockedAt,
	}, nil
}

func Scan(row Scanner) (*core.CanvasObject, error) {
	var (
		o                               core.CanvasObject
		typ                             string
		typeProps, styleProps, metadata string
		createdAt, updatedAt            int64
		lockedAt                        *int64
	)
	err := row.Scan(
		&o.ID, &typ, &o.X, &o.Y, &o.Width, &o.Height, &o.Rotation, &o.GroupID, &o.ZIndex,
		&o.Fill, &o.Stroke, &o.StrokeWidth, &o.Opacity, &typeProps,
		&styleProps, &metadata, &o.CreatedBy, &createdAt, &updatedAt,
		&o.LockedBy, &lockedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Type = core.ObjectType(typ)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	o.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if lockedAt != nil {
		t := time.Unix(0, *lockedAt).UTC()
		o.LockAcquiredAt = &t
	}
	if o.TypeProperties, err = decodeMap(typeProps); err != nil {
		return nil, fmt.Errorf("type_properties of %s: %w", o.ID, err)
	}
	if o.StyleProperties, err = decodeMap(styleProps); err != nil {
		return nil, fmt.Errorf("style_properties of %s: %w", o.ID, err)
	}
	if o.Metadata, err = decodeMap(metadata); err != nil {
		return nil, fmt.Errorf("metadata of %s: %w", o.ID, err)
	}
	return &o, nil
}

func encodeMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMap(s string) (map[string]any, error) {
	m := map[string]any{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}
