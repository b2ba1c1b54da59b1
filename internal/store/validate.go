package store

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Zachkp/stats-consult/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their form name rather than the Go field name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("form"), ","); name != "" && name != "-" {
			return name
		}
		return strings.ToLower(f.Name)
	})
	return v
}

// validateStruct runs the validate tags on v and converts failures into a
// validation SiteError keyed by form field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return fmt.Errorf("failed to validate input: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	return errors.NewValidation(fields)
}

func fieldMessage(fe validator.FieldError) string {
	label := strings.ToUpper(fe.Field()[:1]) + strings.ReplaceAll(fe.Field()[1:], "_", " ")
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "max":
		return fmt.Sprintf("%s must be less than %s characters", label, fe.Param())
	case "email":
		return "Invalid email address"
	case "http_url":
		return label + " must be an http(s) URL"
	default:
		return label + " is invalid"
	}
}
