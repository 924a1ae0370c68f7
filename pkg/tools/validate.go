package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nstogner/glow/pkg/model"
)

// ErrInvalidInput is wrapped by every validation failure.
var ErrInvalidInput = errors.New("invalid tool input")

// ValidateInput checks input against an object schema and returns a copy
// with values coerced to their declared types. Properties the schema does not
// declare are dropped; empty strings and nulls count as absent.
func ValidateInput(schema *model.Schema, input map[string]any) (map[string]any, error) {
	return validateObject("", schema, input)
}

func validateObject(path string, schema *model.Schema, input map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	if schema == nil {
		return out, nil
	}
	for name, prop := range schema.Properties {
		v, ok := input[name]
		if !ok || v == nil || v == "" {
			continue
		}
		cv, err := coerce(join(path, name), prop, v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	for _, name := range schema.Required {
		if _, ok := out[name]; !ok {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, join(path, name))
		}
	}
	return out, nil
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func coerce(path string, s *model.Schema, v any) (any, error) {
	switch s.Type {
	case model.TypeString:
		str, err := toString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
		}
		return matchEnum(path, s.Enum, strings.TrimSpace(str))
	case model.TypeNumber:
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
		}
		return f, nil
	case model.TypeInteger:
		f, err := toFloat(v)
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %s: expected integer, got %v", ErrInvalidInput, path, v)
		}
		return int(f), nil
	case model.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "yes", "y", "1":
				return true, nil
			case "false", "no", "n", "0":
				return false, nil
			}
		}
		return nil, fmt.Errorf("%w: %s: expected boolean, got %v", ErrInvalidInput, path, v)
	case model.TypeArray:
		var items []any
		switch a := v.(type) {
		case []any:
			items = a
		case []string:
			for _, x := range a {
				items = append(items, x)
			}
		default:
			// A lone value is accepted as a one-element list.
			items = []any{a}
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			if item == nil || item == "" {
				continue
			}
			if s.Items == nil {
				out = append(out, item)
				continue
			}
			cv, err := coerce(fmt.Sprintf("%s[%d]", path, i), s.Items, item)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	case model.TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: expected object", ErrInvalidInput, path)
		}
		return validateObject(path, s, m)
	default:
		return v, nil
	}
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case json.Number:
		return x.String(), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

// matchEnum returns the canonical enum value equal to s ignoring case.
func matchEnum(path string, enum []string, s string) (string, error) {
	if len(enum) == 0 {
		return s, nil
	}
	for _, e := range enum {
		if strings.EqualFold(e, s) {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %s: %q is not one of %s", ErrInvalidInput, path, s, strings.Join(enum, ", "))
}
