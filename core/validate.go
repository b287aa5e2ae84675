package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"collabcanvas/coords"

	"github.com/go-playground/validator/v10"
)

var (
	validate       = newValidator()
	colorValidator = validator.New()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("paint", validatePaint); err != nil {
		panic(err)
	}
	return v
}

// validatePaint accepts any CSS color the validator knows plus the
// "no paint" spellings the canvas uses.
func validatePaint(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	switch value {
	case "", "transparent", "none":
		return true
	}
	return colorValidator.Var(value, "iscolor") == nil
}

// ValidatePatch checks a create or update partial. Positions must be in
// center space.
func ValidatePatch(p *ObjectPatch) error {
	if err := validate.Struct(p); err != nil {
		return toValidationError(err)
	}
	if p.X != nil {
		if err := coords.ValidateCenter(coords.Point{X: *p.X}); err != nil {
			return &ValidationError{Field: "x", Reason: err.Error(), Err: err}
		}
	}
	if p.Y != nil {
		if err := coords.ValidateCenter(coords.Point{Y: *p.Y}); err != nil {
			return &ValidationError{Field: "y", Reason: err.Error(), Err: err}
		}
	}
	// Without a type in the patch the variant is only known after merging,
	// so the caller validates the merged object instead.
	if p.TypeProperties != nil && p.Type != nil {
		if _, err := DecodeTypeProperties(*p.Type, p.TypeProperties); err != nil {
			return err
		}
	}
	return nil
}

// ValidateObject checks a complete row before it is persisted.
func ValidateObject(o *CanvasObject) error {
	if o == nil {
		return &ValidationError{Reason: "object is required"}
	}
	if strings.TrimSpace(o.ID) == "" {
		return &ValidationError{Field: "id", Reason: "id is required"}
	}
	if err := coords.ValidateCenter(o.Position()); err != nil {
		return &ValidationError{Field: "position", Reason: err.Error(), Err: err}
	}
	patch := ObjectPatch{
		Type:        &o.Type,
		Width:       &o.Width,
		Height:      &o.Height,
		Fill:        &o.Fill,
		Stroke:      o.Stroke,
		StrokeWidth: o.StrokeWidth,
		Opacity:     &o.Opacity,
	}
	if err := validate.Struct(&patch); err != nil {
		return toValidationError(err)
	}
	if _, err := DecodeTypeProperties(o.Type, o.TypeProperties); err != nil {
		return err
	}
	return nil
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("failed %q rule", fe.Tag()),
			Err:    err,
		}
	}
	return &ValidationError{Reason: err.Error(), Err: err}
}
