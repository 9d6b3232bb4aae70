package checkenv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads environment variables into a struct using `env` tags.
// Files named in envFiles (".env" when none are given) are loaded first;
// missing files are skipped and variables already set in the process win.
//
// Tag format:
//
//	`env:"ENV_KEY"`           → required, error if missing
//	`env:"ENV_KEY,default"`   → optional, uses default if missing
//
// Supported types: string, int, bool, float64, time.Duration.
// Supports nested structs.
func Load(cfg interface{}, envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("checkenv: expected a pointer to a struct, got %T", cfg)
	}

	return parseStruct(v.Elem())
}

func parseStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := parseStruct(field); err != nil {
				return err
			}
			continue
		}

		tag := fieldType.Tag.Get("env")
		if tag == "" {
			continue
		}

		key, defaultVal, hasDefault := parseTag(tag)

		rawVal, err := resolveValue(key, defaultVal, hasDefault, fieldType.Name)
		if err != nil {
			return err
		}

		if err := setField(field, fieldType.Name, rawVal); err != nil {
			return err
		}
	}

	return nil
}

// parseTag splits "ENV_KEY,default_value" into its parts.
func parseTag(tag string) (key, defaultVal string, hasDefault bool) {
	parts := strings.SplitN(tag, ",", 2)
	key = strings.TrimSpace(parts[0])

	if len(parts) == 2 {
		return key, strings.TrimSpace(parts[1]), true
	}

	return key, "", false
}

func resolveValue(key, defaultVal string, hasDefault bool, fieldName string) (string, error) {
	if val := os.Getenv(key); val != "" {
		return val, nil
	}

	if hasDefault {
		return defaultVal, nil
	}

	return "", fmt.Errorf("missing required env variable %q (for field %q)", key, fieldName)
}

func setField(field reflect.Value, fieldName, rawVal string) error {
	if field.Type() == durationType {
		if rawVal == "" {
			field.SetInt(0)
			return nil
		}
		d, err := time.ParseDuration(rawVal)
		if err != nil {
			return fmt.Errorf("field %q: cannot parse %q as duration: %w", fieldName, rawVal, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {

	case reflect.String:
		field.SetString(rawVal)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(rawVal, 10, 64)
		if err != nil {
			return fmt.Errorf("field %q: cannot parse %q as int: %w", fieldName, rawVal, err)
		}
		field.SetInt(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(rawVal)
		if err != nil {
			return fmt.Errorf("field %q: cannot parse %q as bool (use true/false/1/0): %w", fieldName, rawVal, err)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(rawVal, 64)
		if err != nil {
			return fmt.Errorf("field %q: cannot parse %q as float: %w", fieldName, rawVal, err)
		}
		field.SetFloat(f)

	default:
		return fmt.Errorf("field %q: unsupported type %s", fieldName, field.Kind())
	}

	return nil
}
