package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// lookupFunc resolves a variable name; os.LookupEnv in production.
type lookupFunc func(string) (string, bool)

// loadFromEnv overlays environment variables named by `env` tags onto cfg.
func loadFromEnv(cfg *Config) error {
	return loadFromLookup(cfg, os.LookupEnv)
}

func loadFromLookup(v interface{}, lookup lookupFunc) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("expected pointer, got %s", val.Kind())
	}

	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", val.Kind())
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// nested sections carry their own tags
		if field.Kind() == reflect.Struct {
			if field.CanAddr() {
				if err := loadFromLookup(field.Addr().Interface(), lookup); err != nil {
					return err
				}
			}
			continue
		}

		name := fieldType.Tag.Get("env")
		if name == "" {
			continue
		}

		value, ok := lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}

		if err := setFieldValue(field, fieldType, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("failed to set field %s from env var %s: %w", fieldType.Name, name, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue sets a struct field from an environment variable string
func setFieldValue(field reflect.Value, fieldType reflect.StructField, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field %s is not settable", fieldType.Name)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fieldType.Type == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration value: %s", value)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("integer value out of range: %s", value)
		}
		field.SetInt(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		field.SetFloat(f)

	case reflect.Map:
		if fieldType.Type.Key().Kind() != reflect.String || fieldType.Type.Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported map type: %s -> %s", fieldType.Type.Key().Kind(), fieldType.Type.Elem().Kind())
		}
		// key=value,key2=value2
		m := reflect.MakeMap(fieldType.Type)
		for _, pair := range strings.Split(value, ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) != 2 || kv[0] == "" {
				return fmt.Errorf("invalid map entry format: %s", pair)
			}
			m.SetMapIndex(reflect.ValueOf(kv[0]), reflect.ValueOf(kv[1]))
		}
		field.Set(m)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}
