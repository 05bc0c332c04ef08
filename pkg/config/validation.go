package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate checks struct tags. Fields are named by their mapstructure key
// so errors read like the config file: "output.format", "walk.max_depth".
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks cfg after ApplyDefaults has run: struct tags first, then
// the rules that involve more than one field.
//
// Log levels are accepted in either case; ApplyDefaults uppercases them.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return describeValidationError(err)
	}
	return validateCrossField(cfg)
}

func validateCrossField(cfg *Config) error {
	// go-diskfs reads partition tables through a local path
	if cfg.Image.Partition > 0 && cfg.Image.Type != "file" {
		return fmt.Errorf("image.partition: partition selection requires image.type file, got %q", cfg.Image.Type)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Textfile == "" && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics: enabled is true but neither textfile nor listen is set")
	}

	return nil
}

// describeValidationError reports every failed field, one per line.
func describeValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s (got %v)", fieldPath(fe), ruleText(fe), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// fieldPath drops the root type name from the namespace.
func fieldPath(fe validator.FieldError) string {
	_, path, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Namespace()
	}
	return path
}

func ruleText(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be at least " + fe.Param()
	case "hostname_port":
		return "must be a host:port address"
	default:
		return fmt.Sprintf("fails the %q rule", fe.Tag())
	}
}
