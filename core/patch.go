package core

import (
	"maps"
	"slices"
	"time"
)

// Nullable columns a patch may reset to null through ObjectPatch.Clear.
const (
	FieldGroupID        = "group_id"
	FieldStroke         = "stroke"
	FieldStrokeWidth    = "stroke_width"
	FieldCreatedBy      = "created_by"
	FieldLockedBy       = "locked_by"
	FieldLockAcquiredAt = "lock_acquired_at"
)

// ObjectPatch is a partial CanvasObject. A nil field is left untouched.
// It is used for create partials, local updates and the UpdateFields payload.
// The open maps travel as null when unset, so an empty map is a real
// replacement that survives the wire.
type ObjectPatch struct {
	Type            *ObjectType    `json:"type,omitempty" validate:"omitnil,min=1"`
	X               *float64       `json:"x,omitempty"`
	Y               *float64       `json:"y,omitempty"`
	Width           *float64       `json:"width,omitempty" validate:"omitempty,gte=0"`
	Height          *float64       `json:"height,omitempty" validate:"omitempty,gte=0"`
	Rotation        *float64       `json:"rotation,omitempty"`
	GroupID         *string        `json:"group_id,omitempty"`
	ZIndex          *int           `json:"z_index,omitempty"`
	Fill            *string        `json:"fill,omitempty" validate:"omitempty,paint"`
	Stroke          *string        `json:"stroke,omitempty" validate:"omitempty,paint"`
	StrokeWidth     *float64       `json:"stroke_width,omitempty" validate:"omitempty,gte=0"`
	Opacity         *float64       `json:"opacity,omitempty" validate:"omitempty,gte=0,lte=1"`
	TypeProperties  map[string]any `json:"type_properties"`
	StyleProperties map[string]any `json:"style_properties"`
	Metadata        map[string]any `json:"metadata"`
	CreatedBy       *string        `json:"created_by,omitempty"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`
	LockedBy        *string        `json:"locked_by,omitempty"`
	LockAcquiredAt  *time.Time     `json:"lock_acquired_at,omitempty"`

	// Clear lists nullable columns to set to null.
	Clear []string `json:"clear,omitempty" validate:"dive,oneof=group_id stroke stroke_width created_by locked_by lock_acquired_at"`
}

// Apply shallow-merges p over o in place. Maps are replaced, not merged.
func (p *ObjectPatch) Apply(o *CanvasObject) {
	if p.Type != nil {
		o.Type = *p.Type
	}
	if p.X != nil {
		o.X = *p.X
	}
	if p.Y != nil {
		o.Y = *p.Y
	}
	if p.Width != nil {
		o.Width = *p.Width
	}
	if p.Height != nil {
		o.Height = *p.Height
	}
	if p.Rotation != nil {
		o.Rotation = *p.Rotation
	}
	if p.GroupID != nil {
		o.GroupID = clonePtr(p.GroupID)
	}
	if p.ZIndex != nil {
		o.ZIndex = *p.ZIndex
	}
	if p.Fill != nil {
		o.Fill = *p.Fill
	}
	if p.Stroke != nil {
		o.Stroke = clonePtr(p.Stroke)
	}
	if p.StrokeWidth != nil {
		o.StrokeWidth = clonePtr(p.StrokeWidth)
	}
	if p.Opacity != nil {
		o.Opacity = *p.Opacity
	}
	if p.TypeProperties != nil {
		o.TypeProperties = maps.Clone(p.TypeProperties)
	}
	if p.StyleProperties != nil {
		o.StyleProperties = maps.Clone(p.StyleProperties)
	}
	if p.Metadata != nil {
		o.Metadata = maps.Clone(p.Metadata)
	}
	if p.CreatedBy != nil {
		o.CreatedBy = clonePtr(p.CreatedBy)
	}
	if p.UpdatedAt != nil {
		o.UpdatedAt = *p.UpdatedAt
	}
	if p.LockedBy != nil {
		o.LockedBy = clonePtr(p.LockedBy)
	}
	if p.LockAcquiredAt != nil {
		o.LockAcquiredAt = clonePtr(p.LockAcquiredAt)
	}

	for _, field := range p.Clear {
		switch field {
		case FieldGroupID:
			o.GroupID = nil
		case FieldStroke:
			o.Stroke = nil
		case FieldStrokeWidth:
			o.StrokeWidth = nil
		case FieldCreatedBy:
			o.CreatedBy = nil
		case FieldLockedBy:
			o.LockedBy = nil
		case FieldLockAcquiredAt:
			o.LockAcquiredAt = nil
		}
	}
}

// Fields returns the sorted column names the patch touches.
func (p *ObjectPatch) Fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Type != nil, "type")
	add(p.X != nil, "x")
	add(p.Y != nil, "y")
	add(p.Width != nil, "width")
	add(p.Height != nil, "height")
	add(p.Rotation != nil, "rotation")
	add(p.GroupID != nil, FieldGroupID)
	add(p.ZIndex != nil, "z_index")
	add(p.Fill != nil, "fill")
	add(p.Stroke != nil, FieldStroke)
	add(p.StrokeWidth != nil, FieldStrokeWidth)
	add(p.Opacity != nil, "opacity")
	add(p.TypeProperties != nil, "type_properties")
	add(p.StyleProperties != nil, "style_properties")
	add(p.Metadata != nil, "metadata")
	add(p.CreatedBy != nil, FieldCreatedBy)
	add(p.UpdatedAt != nil, "updated_at")
	add(p.LockedBy != nil, FieldLockedBy)
	add(p.LockAcquiredAt != nil, FieldLockAcquiredAt)
	for _, field := range p.Clear {
		if !slices.Contains(fields, field) {
			fields = append(fields, field)
		}
	}
	slices.Sort(fields)
	return fields
}

// IsEmpty reports whether the patch touches nothing.
func (p *ObjectPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// TouchesVisual reports whether applying p changes what a renderer draws.
func (p *ObjectPatch) TouchesVisual() bool {
	return p.X != nil || p.Y != nil || p.Width != nil || p.Height != nil ||
		p.Rotation != nil || p.Fill != nil || p.Opacity != nil
}

// Materialize builds a full object from a create partial. Every unset field
// takes its value from the default table.
func Materialize(p ObjectPatch, id string, now time.Time) *CanvasObject {
	o := &CanvasObject{
		ID:              id,
		Type:            TypeRectangle,
		X:               0,
		Y:               0,
		Width:           100,
		Height:          100,
		Rotation:        0,
		ZIndex:          0,
		Fill:            "#3b82f6",
		Opacity:         1,
		TypeProperties:  map[string]any{},
		StyleProperties: map[string]any{},
		Metadata:        map[string]any{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	p.Apply(o)
	o.UpdatedAt = now
	return o
}

func Float(v float64) *float64 { return &v }

func String(v string) *string { return &v }

func Int(v int) *int { return &v }

func Type(v ObjectType) *ObjectType { return &v }
