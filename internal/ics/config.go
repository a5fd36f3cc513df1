package ics

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultSmoothing = 0.01
	DefaultOmega     = 0.5

	// MaxSmoothing keeps alpha + alpha complement representable.
	MaxSmoothing = 1e300
)

// Config holds the model hyperparameters.
type Config struct {
	// Smoothing is the Laplace smoothing constant s.
	Smoothing float64 `validate:"gt=0,lte=1e300"`
	// Omega weights legitimate-leaning evidence against fake-leaning evidence.
	Omega float64 `validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{Smoothing: DefaultSmoothing, Omega: DefaultOmega}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	return ValidateStruct(c)
}

// ValidateStruct runs the validate tags of v and converts the first
// violation into a ConfigurationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}

	fe := fieldErrs[0]
	return &ConfigurationError{
		Field:  fe.Field(),
		Value:  fe.Value(),
		Reason: describeTag(fe.Tag(), fe.Param()),
	}
}

func describeTag(tag, param string) string {
	switch tag {
	case "gt":
		return "must be > " + param
	case "gte":
		return "must be >= " + param
	case "lt":
		return "must be < " + param
	case "lte":
		return "must be <= " + param
	case "oneof":
		return "must be one of " + param
	case "required":
		return "is required"
	default:
		return "failed " + tag
	}
}
