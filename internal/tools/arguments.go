// ABOUTME: Typed accessors over decoded tool call arguments
// ABOUTME: Missing or mistyped values fall back to the supplied default

package tools

import "math"

// Arguments are the decoded "arguments" object of a tools/call request.
type Arguments map[string]any

// String returns the string value of key, or def.
func (a Arguments) String(key, def string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the boolean value of key, or def.
func (a Arguments) Bool(key string, def bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return def
}

// Int returns the integral value of key, or def. JSON numbers decode as
// float64, so fractional and out-of-range values are rejected.
func (a Arguments) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		// float64(math.MaxInt) rounds up to 2^63, hence the strict bound.
		if v == math.Trunc(v) && v >= float64(math.MinInt) && v < float64(math.MaxInt) {
			return int(v)
		}
	case int:
		return v
	}
	return def
}

// Has reports whether key is present.
func (a Arguments) Has(key string) bool {
	_, ok := a[key]
	return ok
}
