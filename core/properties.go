package core

import (
	"maps"

	"github.com/mitchellh/mapstructure"
)

// TypeProps is the typed payload of CanvasObject.TypeProperties. The known
// variants decode into structs; any other type keeps its properties as an
// OpenProps map.
type TypeProps interface {
	Variant() ObjectType
}

type (
	RectangleProps struct {
		CornerRadius float64 `json:"corner_radius" validate:"gte=0"`
	}

	CircleProps struct {
		Radius float64 `json:"radius" validate:"gte=0"`
	}

	TextProps struct {
		Text       string  `json:"text"`
		FontSize   float64 `json:"font_size" validate:"gte=0"`
		FontFamily string  `json:"font_family"`
		Align      string  `json:"align" validate:"omitempty,oneof=left center right"`
	}

	LineProps struct {
		Points     []float64 `json:"points"`
		ArrowStart bool      `json:"arrow_start"`
		ArrowEnd   bool      `json:"arrow_end"`
	}

	// OpenProps carries the properties of a type without a typed variant.
	OpenProps struct {
		Type   ObjectType
		Values map[string]any
	}
)

func (RectangleProps) Variant() ObjectType { return TypeRectangle }
func (CircleProps) Variant() ObjectType    { return TypeCircle }
func (TextProps) Variant() ObjectType      { return TypeText }
func (LineProps) Variant() ObjectType      { return TypeLine }
func (p OpenProps) Variant() ObjectType    { return p.Type }

// DecodeTypeProperties decodes and validates raw type properties for the
// given variant. Unknown keys of a known variant are rejected.
func DecodeTypeProperties(variant ObjectType, raw map[string]any) (TypeProps, error) {
	var props TypeProps
	switch variant {
	case TypeRectangle:
		var p RectangleProps
		if err := decodeProps(raw, &p); err != nil {
			return nil, err
		}
		props = p
	case TypeCircle:
		var p CircleProps
		if err := decodeProps(raw, &p); err != nil {
			return nil, err
		}
		props = p
	case TypeText:
		var p TextProps
		if err := decodeProps(raw, &p); err != nil {
			return nil, err
		}
		props = p
	case TypeLine:
		var p LineProps
		if err := decodeProps(raw, &p); err != nil {
			return nil, err
		}
		if len(p.Points)%2 != 0 {
			return nil, &ValidationError{Field: "type_properties.points", Reason: "points must be x,y pairs"}
		}
		props = p
	case "":
		return nil, &ValidationError{Field: "type", Reason: "type is required"}
	default:
		return OpenProps{Type: variant, Values: maps.Clone(raw)}, nil
	}

	if err := validate.Struct(props); err != nil {
		return nil, toValidationError(err)
	}
	return props, nil
}

func decodeProps(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return &ValidationError{Field: "type_properties", Reason: err.Error(), Err: err}
	}
	return nil
}
