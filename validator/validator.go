// Package validator checks the request bodies of the API against the rules
// declared in their validate struct tags.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// emailPatternRegex matches the sender patterns of the filter rules: a full
// address, an address with a wildcard local part like *@promo.example.com,
// or a domain, optionally with a wildcard subdomain.
var emailPatternRegex = regexp.MustCompile(`^([^\s@]+@)?(\*\.)?[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+$`)

// ValidationError represents an individual validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a slice of ValidationError.
type ValidationErrors []ValidationError

// Error returns a string representation of the validation errors.
func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return sb.String()
}

// Validator is a wrapper around the go-playground/validator package.
type Validator struct {
	validator *validator.Validate
}

// New creates a new Validator instance. Fields are reported by their JSON
// name.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("emailpattern", validateEmailPattern)
	return &Validator{
		validator: v,
	}
}

// Validate validates a struct using the validator package. Rule violations
// are returned as ValidationErrors, any other failure as is.
func (v *Validator) Validate(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	validationErrors := ValidationErrors{}
	for _, fieldErr := range fieldErrs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fieldErr.Field(),
			Message: getErrorMessage(fieldErr),
		})
	}
	return validationErrors
}

// validateEmailPattern validates a filter rule sender pattern.
func validateEmailPattern(fl validator.FieldLevel) bool {
	// If the field is empty, it's valid (use required tag if it's required)
	if fl.Field().String() == "" {
		return true
	}
	return emailPatternRegex.MatchString(strings.TrimSpace(fl.Field().String()))
}

// getErrorMessage returns the message shown to the user for a validation
// error.
func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "Campo obrigatório"
	case "email":
		return "E-mail inválido"
	case "emailpattern":
		return "Padrão de e-mail inválido"
	case "oneof":
		return fmt.Sprintf("Valor deve ser um de: %s", err.Param())
	case "min", "gte":
		return fmt.Sprintf("Valor mínimo: %s", err.Param())
	case "max", "lte":
		return fmt.Sprintf("Valor máximo: %s", err.Param())
	default:
		return fmt.Sprintf("Valor inválido: %s", err.Tag())
	}
}
