// Package scale turns monthly climate values into colours, legends and series.
package scale

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const MonthsPerYear = 12

var ErrInvalidMonth = errors.New("month must be between 1 and 12")

// DefaultMonthLabels are the short French month names shown on the slider and chart axis.
var DefaultMonthLabels = MonthLabels{"Jan", "Fév", "Mar", "Avr", "Mai", "Juin", "Juil", "Août", "Sep", "Oct", "Nov", "Déc"}

type MonthLabels [MonthsPerYear]string

// ParseMonthLabels builds labels from exactly twelve non-empty names.
func ParseMonthLabels(labels []string) (MonthLabels, error) {
	var out MonthLabels
	if len(labels) != MonthsPerYear {
		return out, fmt.Errorf("expected %d month labels, got %d", MonthsPerYear, len(labels))
	}
	for i, l := range labels {
		if l == "" {
			return out, fmt.Errorf("month label %d is empty", i+1)
		}
		out[i] = l
	}
	return out, nil
}

// Label returns the label of a 1-based month, or "" when out of range.
func (l MonthLabels) Label(month int) string {
	if !ValidMonth(month) {
		return ""
	}
	return l[month-1]
}

func (l MonthLabels) Slice() []string {
	return l[:]
}

// ValidMonth reports whether month is in 1..12.
func ValidMonth(month int) bool {
	return month >= 1 && month <= MonthsPerYear
}

// Reading is a single monthly value. Valid is false when the month has no usable number.
type Reading struct {
	Value float64
	Valid bool
}

// Present wraps a known value as a valid Reading.
func Present(v float64) Reading {
	if math.IsNaN(v) {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, r.Value, 'f', -1, 64), nil
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Reading{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Present(v)
	return nil
}

// Series holds one reading per month, January at index 0. Gaps stay in place as invalid readings.
type Series [MonthsPerYear]Reading

// Values returns the valid readings in month order.
func (s Series) Values() []float64 {
	out := make([]float64, 0, MonthsPerYear)
	for _, r := range s {
		if r.Valid {
			out = append(out, r.Value)
		}
	}
	return out
}

// FieldNamer maps months to property keys: Prefix followed by the zero-padded month.
type FieldNamer struct {
	Prefix string
}

// Key returns the property key for month, e.g. "temp_07".
func (n FieldNamer) Key(month int) string {
	return fmt.Sprintf("%s%02d", n.Prefix, month)
}

// Extract returns the raw value stored for month. A missing key or a JSON null is absent.
func (n FieldNamer) Extract(props map[string]any, month int) (any, bool) {
	if !ValidMonth(month) || props == nil {
		return nil, false
	}
	v, ok := props[n.Key(month)]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Reading extracts month and converts it to a number. Non-numeric values and NaN are absent.
func (n FieldNamer) Reading(props map[string]any, month int) Reading {
	raw, ok := n.Extract(props, month)
	if !ok {
		return Reading{}
	}
	v, ok := toFloat(raw)
	if !ok {
		return Reading{}
	}
	return Present(v)
}

// Series reads all twelve months of props.
func (n FieldNamer) Series(props map[string]any) Series {
	var s Series
	for m := 1; m <= MonthsPerYear; m++ {
		s[m-1] = n.Reading(props, m)
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
