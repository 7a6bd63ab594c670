package scale

import "math"

// Stats is the value envelope of a whole dataset across every month.
// Count is zero for a dataset without a single numeric value.
type Stats struct {
	Min   float64
	Max   float64
	Count int
}

func (s Stats) Empty() bool {
	return s.Count == 0
}

// Span is Max-Min, or 1 when the range is degenerate.
func (s Stats) Span() float64 {
	if s.Max == s.Min {
		return 1
	}
	return s.Max - s.Min
}

// ComputeStats scans every month of every property bag.
func ComputeStats(namer FieldNamer, bags []map[string]any) Stats {
	st := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, props := range bags {
		for m := 1; m <= MonthsPerYear; m++ {
			r := namer.Reading(props, m)
			if !r.Valid || math.IsInf(r.Value, 0) {
				continue
			}
			st.Min = math.Min(st.Min, r.Value)
			st.Max = math.Max(st.Max, r.Value)
			st.Count++
		}
	}
	if st.Count == 0 {
		return Stats{}
	}
	return st
}
