package scale

import "math"

const DefaultLegendSteps = 5

type LegendEntry struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Legend returns steps+1 evenly spaced entries from st.Min to st.Max inclusive.
// An empty dataset has no legend.
func Legend(st Stats, steps int, m ColorMapper) []LegendEntry {
	if st.Empty() {
		return nil
	}
	if steps < 1 {
		steps = 1
	}
	out := make([]LegendEntry, 0, steps+1)
	span := st.Max - st.Min
	for i := 0; i <= steps; i++ {
		v := st.Min + span*float64(i)/float64(steps)
		if math.IsInf(span, 0) {
			f := float64(i) / float64(steps)
			v = st.Min*(1-f) + st.Max*f
		}
		if i == steps {
			v = st.Max
		}
		out = append(out, LegendEntry{
			Value: v,
			Color: m.Color(Present(v), st.Min, st.Max).Hex(),
		})
	}
	return out
}
