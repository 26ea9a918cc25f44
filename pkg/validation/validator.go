package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate is the global validator instance
var Validate *validator.Validate

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("latitude", validateLatitude)
	_ = Validate.RegisterValidation("longitude", validateLongitude)
	_ = Validate.RegisterValidation("address_type", validateAddressType)
	_ = Validate.RegisterValidation("address_source", validateAddressSource)
}

// ValidationError collects per-field messages
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e.Errors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AddError records a message for field
func (e *ValidationError) AddError(field, message string) {
	if e.Errors == nil {
		e.Errors = make(map[string]string)
	}
	e.Errors[field] = message
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// NewValidationError converts validator output into a ValidationError
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	out := &ValidationError{Errors: make(map[string]string, len(errs))}
	for _, fe := range errs {
		out.AddError(fieldName(fe), describe(fe))
	}
	return out
}

// ValidateStruct validates a struct and returns a ValidationError if validation fails
func ValidateStruct(s interface{}) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return NewValidationError(validationErrors)
	}
	return err
}

// ValidateCoordinates validates latitude and longitude
func ValidateCoordinates(latitude, longitude float64) error {
	if latitude < -90.0 || latitude > 90.0 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", latitude)
	}
	if longitude < -180.0 || longitude > 180.0 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", longitude)
	}
	return nil
}

func validateLatitude(fl validator.FieldLevel) bool {
	latitude := fl.Field().Float()
	return latitude >= -90.0 && latitude <= 90.0
}

func validateLongitude(fl validator.FieldLevel) bool {
	longitude := fl.Field().Float()
	return longitude >= -180.0 && longitude <= 180.0
}

func validateAddressType(fl validator.FieldLevel) bool {
	return oneOf(fl.Field().String(), "source", "destination")
}

func validateAddressSource(fl validator.FieldLevel) bool {
	return oneOf(fl.Field().String(), "user_specified", "my_location", "nearby_place")
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.StructField()
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "latitude":
		return "must be between -90 and 90"
	case "longitude":
		return "must be between -180 and 180"
	case "address_type":
		return "must be source or destination"
	case "address_source":
		return "must be user_specified, my_location or nearby_place"
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
