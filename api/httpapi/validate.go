package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		// report fields by their JSON names
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		validate = v
	})
	return validate
}

func validateStruct(s any) error {
	return requestValidator().Struct(s)
}

// formatValidationError flattens validation errors into a field -> message
// map without leaking Go struct names.
func formatValidationError(err error) map[string]string {
	if err == nil {
		return nil
	}

	errs := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs["error"] = "invalid request format"
		return errs
	}

	for _, e := range validationErrors {
		field := fieldPath(e.Namespace())
		switch e.Tag() {
		case "required":
			errs[field] = "this field is required"
		case "gte":
			errs[field] = fmt.Sprintf("must be >= %s", e.Param())
		case "gt":
			errs[field] = fmt.Sprintf("must be > %s", e.Param())
		default:
			errs[field] = "invalid value"
		}
	}

	return errs
}

// fieldPath drops the root struct name from a validator namespace, so
// "LedgerRequest.events[2].kind" becomes "events[2].kind".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
