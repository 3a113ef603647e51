package settings

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Coerce converts raw into the representation stored for spec: string, int64, float64, bool or nil.
//
// Empty strings and nil become nil. A nil result for a required field is a type mismatch.
func Coerce(spec FieldSpec, raw any) (any, error) {
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		raw = nil
	}
	if raw == nil {
		if spec.Required {
			return nil, fmt.Errorf("%w: %s is required", ErrTypeMismatch, spec.Key)
		}
		return nil, nil
	}

	v, err := coerce(spec.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, spec.Key, err)
	}
	return v, nil
}

func coerce(t FieldType, raw any) (any, error) {
	switch t {
	case TypeString:
		return toString(raw)
	case TypeInt:
		return toInt(raw)
	case TypeFloat:
		return toFloat(raw)
	case TypeBool:
		return toBool(raw)
	case TypeURL:
		s, err := toString(raw)
		if err != nil {
			return nil, err
		}
		return toURL(s)
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}

func toString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int, int32, int64, float32, float64, json.Number:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("cannot use %T as string", raw)
	}
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case json.Number:
		return toInt(string(v))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", v)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot use %T as int", raw)
	}
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return toFloat(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot use %T as float", raw)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int, int32, int64, float64:
		switch fmt.Sprint(v) {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		return false, fmt.Errorf("%v is not a boolean", v)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "1", "y", "yes", "on":
			return true, nil
		case "false", "f", "0", "n", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("%q is not a boolean", v)
	default:
		return false, fmt.Errorf("cannot use %T as bool", raw)
	}
}

func toURL(s string) (string, error) {
	s = strings.TrimSpace(s)
	if err := validate.Var(s, "url"); err != nil {
		return "", fmt.Errorf("%q is not a valid URL", s)
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q must have a scheme and host", s)
	}
	return strings.TrimSuffix(s, "/"), nil
}
