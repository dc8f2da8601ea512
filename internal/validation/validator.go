package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("validation failed")

// Validator validates structs against their `validate` tags.
// Supported rules: required, email, min=N, max=N (string length) and
// oneof=a b c.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct, got %s", val.Kind())
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%w: %s %s", ErrInvalid, fieldName(fieldType), err)
		}
	}

	return nil
}

// validateField validates a single field. Pointer fields are only checked
// when set, unless they are required.
func (v *Validator) validateField(field reflect.Value, tag string) error {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			if hasRule(tag, "required") {
				return errors.New("is required")
			}
			return nil
		}
		field = field.Elem()
	}

	for _, rule := range strings.Split(tag, ",") {
		name, arg, _ := strings.Cut(rule, "=")

		switch name {
		case "required":
			if field.IsZero() || (field.Kind() == reflect.String && strings.TrimSpace(field.String()) == "") {
				return errors.New("is required")
			}

		case "email":
			if field.Kind() == reflect.String && field.String() != "" {
				local, domain, ok := strings.Cut(field.String(), "@")
				if !ok || local == "" || !strings.Contains(domain, ".") {
					return errors.New("must be a valid email address")
				}
			}

		case "min", "max":
			n, err := strconv.Atoi(arg)
			if err != nil || field.Kind() != reflect.String {
				continue
			}
			length := len([]rune(field.String()))
			if name == "min" && length < n {
				return fmt.Errorf("must be at least %d characters", n)
			}
			if name == "max" && length > n {
				return fmt.Errorf("must be at most %d characters", n)
			}

		case "oneof":
			if field.Kind() != reflect.String {
				continue
			}
			allowed := strings.Fields(arg)
			if !contains(allowed, field.String()) {
				return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
			}
		}
	}

	return nil
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

func hasRule(tag, rule string) bool {
	for _, r := range strings.Split(tag, ",") {
		if r == rule {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
