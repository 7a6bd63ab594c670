package scale

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type RGB struct {
	R, G, B uint8
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func ParseHex(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("invalid hex colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func mustHex(s string) RGB {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

type Stop struct {
	At    float64
	Color RGB
}

// Gradient is a piecewise linear colour ramp over [0,1]. Stops are sorted by At.
type Gradient struct {
	Name  string
	Stops []Stop
}

func NewGradient(name string, stops ...Stop) (Gradient, error) {
	if len(stops) < 2 {
		return Gradient{}, fmt.Errorf("gradient %q needs at least two stops", name)
	}
	s := append([]Stop(nil), stops...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].At < s[j].At })
	if s[0].At != 0 || s[len(s)-1].At != 1 {
		return Gradient{}, fmt.Errorf("gradient %q must span 0..1", name)
	}
	return Gradient{Name: name, Stops: s}, nil
}

// At returns the colour at t, clamped to [0,1].
func (g Gradient) At(t float64) RGB {
	if len(g.Stops) == 0 {
		return RGB{}
	}
	t = clamp01(t)
	for i := 1; i < len(g.Stops); i++ {
		hi := g.Stops[i]
		if t > hi.At {
			continue
		}
		lo := g.Stops[i-1]
		w := hi.At - lo.At
		if w <= 0 {
			return hi.Color
		}
		return lerp(lo.Color, hi.Color, (t-lo.At)/w)
	}
	return g.Stops[len(g.Stops)-1].Color
}

func lerp(a, b RGB, t float64) RGB {
	ch := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + t*(float64(y)-float64(x))))
	}
	return RGB{R: ch(a.R, b.R), G: ch(a.G, b.G), B: ch(a.B, b.B)}
}

func clamp01(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

var (
	Blues = Gradient{Name: "blues", Stops: []Stop{
		{0, mustHex("#f7fbff")},
		{1, mustHex("#08306b")},
	}}
	Reds = Gradient{Name: "reds", Stops: []Stop{
		{0, mustHex("#fff5f0")},
		{1, mustHex("#67000d")},
	}}
	Diverging = Gradient{Name: "diverging", Stops: []Stop{
		{0, mustHex("#2166ac")},
		{0.5, mustHex("#f7f7f7")},
		{1, mustHex("#b2182b")},
	}}
)

var gradients = map[string]Gradient{
	Blues.Name:     Blues,
	Reds.Name:      Reds,
	Diverging.Name: Diverging,
}

// GradientByName looks up a built-in gradient, ignoring case and surrounding space.
func GradientByName(name string) (Gradient, bool) {
	g, ok := gradients[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

var DefaultNeutral = RGB{0xcc, 0xcc, 0xcc}

type ColorMapper struct {
	Gradient Gradient
	Neutral  RGB
}

// NewColorMapper returns a mapper over g that paints missing readings DefaultNeutral.
func NewColorMapper(g Gradient) ColorMapper {
	return ColorMapper{Gradient: g, Neutral: DefaultNeutral}
}

// Color maps r onto the gradient with t=(v-min)/(max-min). An equal min and max
// uses a denominator of 1. Absent and NaN readings get the neutral colour.
func (m ColorMapper) Color(r Reading, min, max float64) RGB {
	if !r.Valid || math.IsNaN(r.Value) {
		return m.Neutral
	}
	num, den := r.Value-min, max-min
	if math.IsInf(den, 0) || math.IsInf(num, 0) {
		// halving both terms keeps ranges near ±MaxFloat64 finite
		num, den = r.Value/2-min/2, max/2-min/2
	}
	if den == 0 {
		den = 1
	}
	return m.Gradient.At(num / den)
}

// ColorStats colours r against a dataset range. An empty range is always neutral.
func (m ColorMapper) ColorStats(r Reading, st Stats) RGB {
	if st.Empty() {
		return m.Neutral
	}
	return m.Color(r, st.Min, st.Max)
}
