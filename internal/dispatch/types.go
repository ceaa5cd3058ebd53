package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Request names an action and carries its parameters as decoded JSON values.
type Request struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Result is the success variant of a dispatch. Payload is opaque to the
// dispatcher and is serialized as-is.
type Result struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// Call is what an effect function receives: validated parameters and the
// resolved form of every declared path parameter.
type Call struct {
	Action string
	Params Params
	Paths  map[string]string
}

// Path returns the resolved path for a declared path parameter.
func (c *Call) Path(param string) string {
	return c.Paths[param]
}

// Params is a decoded parameter map with typed accessors.
type Params map[string]any

// String returns the trimmed string value of name, or "".
func (p Params) String(name string) string {
	v, ok := p[name]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Float returns the numeric value of name.
func (p Params) Float(name string) (float64, bool) {
	return toFloat(p[name])
}

// Int returns the integral value of name.
func (p Params) Int(name string) (int, bool) {
	f, ok := toFloat(p[name])
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Has reports whether name is present with a non-nil value.
func (p Params) Has(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// FormatValue renders a scalar parameter value the way it would appear in a
// text cell: integral floats lose their fraction.
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		if f, ok := toFloat(v); ok {
			return FormatValue(f)
		}
		return fmt.Sprint(v)
	}
}
