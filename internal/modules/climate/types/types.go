package types

import (
	"fmt"
	"strings"
	"time"

	"climap-server/internal/modules/climate/scale"
)

// Layer names one of the two map overlays.
type Layer string

const (
	LayerRegions Layer = "regions"
	LayerCities  Layer = "cities"
)

// Layers lists every layer in draw order.
var Layers = []Layer{LayerRegions, LayerCities}

// ParseLayer accepts a layer name in any case.
func ParseLayer(s string) (Layer, bool) {
	switch Layer(strings.ToLower(strings.TrimSpace(s))) {
	case LayerRegions:
		return LayerRegions, true
	case LayerCities:
		return LayerCities, true
	}
	return "", false
}

// Selection is the feature a viewer clicked.
type Selection struct {
	Layer     Layer  `json:"layer"`
	FeatureID string `json:"featureId"`
}

// ViewState is what one viewer currently looks at. A new state shows January with nothing selected.
type ViewState struct {
	Dataset   string     `json:"dataset"`
	Month     int        `json:"month"`
	Selection *Selection `json:"selection"`
}

// NewViewState returns the initial state for dataset.
func NewViewState(dataset string) ViewState {
	return ViewState{Dataset: dataset, Month: 1}
}

// SetMonth moves the slider. Out of range months leave the state untouched.
func (v *ViewState) SetMonth(month int) error {
	if !scale.ValidMonth(month) {
		return fmt.Errorf("%w: got %d", scale.ErrInvalidMonth, month)
	}
	v.Month = month
	return nil
}

// Select replaces any previous selection.
func (v *ViewState) Select(layer Layer, featureID string) {
	v.Selection = &Selection{Layer: layer, FeatureID: featureID}
}

// ClearSelection drops the selection and keeps the month.
func (v *ViewState) ClearSelection() {
	v.Selection = nil
}

// Session is a persisted ViewState.
type Session struct {
	ID string `json:"id"`
	ViewState
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Style is what the map needs to paint one feature.
type Style struct {
	FillColor   string        `json:"fillColor"`
	Color       string        `json:"color"`
	Weight      float64       `json:"weight"`
	FillOpacity float64       `json:"fillOpacity"`
	Value       scale.Reading `json:"value"`
}

// Restyle carries the style of every feature of every layer for one month.
type Restyle struct {
	Dataset string                     `json:"dataset"`
	Month   int                        `json:"month"`
	Label   string                     `json:"label"`
	Layers  map[Layer]map[string]Style `json:"layers"`
}

// SeriesView is the 12-month trend of one feature with a colour per month.
type SeriesView struct {
	Dataset   string       `json:"dataset"`
	Layer     Layer        `json:"layer"`
	FeatureID string       `json:"featureId"`
	Title     string       `json:"title"`
	Unit      string       `json:"unit"`
	Labels    []string     `json:"labels"`
	Values    scale.Series `json:"values"`
	Month     int          `json:"month,omitempty"`
	Colors    [12]string   `json:"colors"`
}

// Bounds is a lon/lat bounding box.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// StatsView is the JSON form of a dataset range.
type StatsView struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
	Empty bool    `json:"empty"`
}

// NewStatsView converts st for the API.
func NewStatsView(st scale.Stats) StatsView {
	return StatsView{Min: st.Min, Max: st.Max, Count: st.Count, Empty: st.Empty()}
}

// DatasetSummary describes a loaded dataset without its features.
type DatasetSummary struct {
	Key      string        `json:"key"`
	Title    string        `json:"title"`
	Unit     string        `json:"unit"`
	Gradient string        `json:"gradient"`
	Stats    StatsView     `json:"stats"`
	Features map[Layer]int `json:"features"`
	Bounds   *Bounds       `json:"bounds,omitempty"`
	LoadedAt time.Time     `json:"loadedAt"`
}

// SessionUpdate is a session state plus what the map or chart must redraw after the transition.
type SessionUpdate struct {
	Session Session     `json:"session"`
	Restyle *Restyle    `json:"restyle,omitempty"`
	Series  *SeriesView `json:"series,omitempty"`
}
