package settings

import "strings"

// Values is a copy of one group's coerced values.
type Values map[string]any

// String returns the value as a trimmed string, "" when unset.
func (v Values) String(key string) string {
	s, _ := v[key].(string)
	return strings.TrimSpace(s)
}

// Int returns the value and whether it is set.
func (v Values) Int(key string) (int, bool) {
	i, ok := v[key].(int64)
	return int(i), ok
}

// IntOr returns the value or def when unset.
func (v Values) IntOr(key string, def int) int {
	if i, ok := v.Int(key); ok {
		return i
	}
	return def
}

// IntPtr returns a pointer to the value, nil when unset.
func (v Values) IntPtr(key string) *int {
	if i, ok := v.Int(key); ok {
		return &i
	}
	return nil
}

// Float returns the value or def when unset.
func (v Values) Float(key string, def float64) float64 {
	if f, ok := v[key].(float64); ok {
		return f
	}
	return def
}

// Bool returns the value, false when unset.
func (v Values) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}
