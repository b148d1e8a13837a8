package train

import (
	"math"
	"strconv"
	"strings"

	"github.com/tabularml/workbench/pkg/common/apperr"
)

type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamSelect ParamType = "select"
)

// ParamSpec declares one tunable hyperparameter: its type, default and,
// depending on the type, numeric bounds or an enumerated choice set.
type ParamSpec struct {
	Type     ParamType   `json:"type"`
	Default  interface{} `json:"default"`
	Min      float64     `json:"min,omitempty"`
	Max      float64     `json:"max,omitempty"`
	Step     float64     `json:"step,omitempty"`
	Choices  []string    `json:"choices,omitempty"`
	Nullable bool        `json:"nullable,omitempty"`
}

// Schema maps parameter names to their specs.
type Schema map[string]ParamSpec

// Params holds validated, typed hyperparameter values. Values are int,
// float64, bool, string or nil (for nullable parameters).
type Params map[string]interface{}

// Resolve validates untrusted overrides against the schema and merges them
// over the declared defaults. Unknown keys are silently ignored; a value of
// the wrong type, an unparseable numeric/bool string or an out-of-choice
// select value fails with InvalidHyperparameter. Numeric values are clamped
// to the declared bounds.
func (s Schema) Resolve(overrides map[string]interface{}) (Params, error) {
	out := make(Params, len(s))
	for name, spec := range s {
		out[name] = spec.Default
	}
	for name, raw := range overrides {
		spec, known := s[name]
		if !known {
			continue
		}
		value, err := spec.coerce(name, raw)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

func (spec ParamSpec) coerce(name string, raw interface{}) (interface{}, error) {
	if raw == nil {
		if spec.Nullable {
			return nil, nil
		}
		return nil, apperr.New(apperr.KindInvalidHyperparameter, "parameter %q may not be null", name)
	}
	switch spec.Type {
	case ParamInt:
		v, err := toInt(raw)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidHyperparameter, "parameter %q: %v", name, err)
		}
		return int(spec.clamp(float64(v))), nil
	case ParamFloat:
		v, err := toFloat(raw)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidHyperparameter, "parameter %q: %v", name, err)
		}
		return spec.clamp(v), nil
	case ParamBool:
		v, err := toBool(raw)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidHyperparameter, "parameter %q: %v", name, err)
		}
		return v, nil
	case ParamSelect:
		str, ok := raw.(string)
		if !ok {
			return nil, apperr.New(apperr.KindInvalidHyperparameter, "parameter %q expects one of %v", name, spec.Choices)
		}
		for _, choice := range spec.Choices {
			if str == choice {
				return str, nil
			}
		}
		return nil, apperr.New(apperr.KindInvalidHyperparameter, "parameter %q: %q is not one of %v", name, str, spec.Choices)
	}
	return nil, apperr.New(apperr.KindInvalidHyperparameter, "parameter %q has unknown type %q", name, spec.Type)
}

func (spec ParamSpec) clamp(v float64) float64 {
	if spec.Max > spec.Min {
		if v < spec.Min {
			v = spec.Min
		}
		if v > spec.Max {
			v = spec.Max
		}
	}
	return v
}

func toInt(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errNotInteger
		}
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errNotInteger
		}
		return parsed, nil
	}
	return 0, errNotInteger
}

func toFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, errNotNumber
		}
		return parsed, nil
	}
	return 0, errNotNumber
}

func toBool(raw interface{}) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, errNotBool
		}
		return parsed, nil
	}
	return false, errNotBool
}

var (
	errNotInteger = errValue("expects an integer")
	errNotNumber  = errValue("expects a number")
	errNotBool    = errValue("expects a boolean")
)

type errValue string

func (e errValue) Error() string { return string(e) }

// Int reads an int parameter, returning fallback when absent or nil.
func (p Params) Int(name string, fallback int) int {
	if v, ok := p[name]; ok && v != nil {
		if i, ok := v.(int); ok {
			return i
		}
	}
	return fallback
}

// Float reads a float parameter, returning fallback when absent or nil.
func (p Params) Float(name string, fallback float64) float64 {
	if v, ok := p[name]; ok && v != nil {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return fallback
}

// Bool reads a bool parameter, returning fallback when absent or nil.
func (p Params) Bool(name string, fallback bool) bool {
	if v, ok := p[name]; ok && v != nil {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// String reads a select parameter, returning fallback when absent or nil.
func (p Params) String(name, fallback string) string {
	if v, ok := p[name]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}
