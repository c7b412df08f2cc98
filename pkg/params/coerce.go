package params

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

var errNotScalar = errors.New("not a scalar")

// Coerce converts value to the param's kind. Strings, which is what the
// command line supplies, are parsed for every kind. nil passes through as
// "no value".
func (p Param) Coerce(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch p.Kind {
	case KindString:
		return toString(value)
	case KindInt:
		return toInt(value)
	case KindFloat:
		return toFloat(value)
	case KindBool:
		return toBool(value)
	case KindStringList:
		return toStringList(value)
	case KindOption:
		s, err := toString(value)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(p.Options, s) {
			return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(p.Options, ", "))
		}
		return s, nil
	case KindAny:
		return normalizeAny(value), nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", p.Kind)
	}
}

// normalizeAny copies a free-form value, turning integral floats into int.
// Saved parameter files write 2.0 as 2, so both must resolve alike.
func normalizeAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeAny(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeAny(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case int64:
		return int(t)
	case float32:
		return normalizeAny(float64(t))
	case float64:
		if n, err := floatToInt(t); err == nil && math.Abs(t) < 1<<53 {
			return n
		}
		return t
	default:
		return v
	}
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	default:
		return "", errNotScalar
	}
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case uint:
		return int(t), nil
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("parsing int: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}

func floatToInt(f float64) (int, error) {
	if math.Trunc(f) != f || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int(f), nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("parsing float: %w", err)
		}
		return f, nil
	default:
		n, err := toInt(v)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		switch t {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "yes", "y", "on", "1":
			return true, nil
		case "false", "f", "no", "n", "off", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%#v is not a boolean", v)
}

func toStringList(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t), nil
	case []any:
		out := make([]string, 0, len(t))
		for i, e := range t {
			s, err := toString(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		out := []string{}
		if strings.TrimSpace(t) == "" {
			return out, nil
		}
		for _, part := range strings.Split(t, ",") {
			out = append(out, strings.TrimSpace(part))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected %T", v)
	}
}
