package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
	"strconv"

	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/types"
)

var pagesTmpl *template.Template

var funcs = template.FuncMap{
	"reading": formatReading,
	"number":  formatNumber,
}

// loadTemplatesFromFS loads page and partial templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("climap").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	pagesTmpl = tmpl
	return nil
}

// LoadTemplates loads embedded templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

type HomeData struct {
	Datasets []types.DatasetSummary
}

type MapData struct {
	Dataset types.DatasetSummary
	Months  []string
	Legend  LegendData
}

type LegendData struct {
	Dataset string
	Unit    string
	Entries []scale.LegendEntry
	Neutral string
}

type SeriesRow struct {
	Label   string
	Value   scale.Reading
	Color   string
	Current bool
}

type SeriesData struct {
	Series types.SeriesView
	Rows   []SeriesRow
}

// NewSeriesData lays a series out as one row per month.
func NewSeriesData(sv types.SeriesView) SeriesData {
	rows := make([]SeriesRow, 0, len(sv.Values))
	for i, r := range sv.Values {
		var label string
		if i < len(sv.Labels) {
			label = sv.Labels[i]
		}
		rows = append(rows, SeriesRow{
			Label:   label,
			Value:   r,
			Color:   sv.Colors[i],
			Current: sv.Month == i+1,
		})
	}
	return SeriesData{Series: sv, Rows: rows}
}

func RenderHome(w io.Writer, data *HomeData) error {
	return render(w, "home.html", data)
}

func RenderMap(w io.Writer, data *MapData) error {
	return render(w, "map.html", data)
}

// RenderLegendPartial executes only the legend partial. Use for HTMX fragment refresh.
func RenderLegendPartial(w io.Writer, data *LegendData) error {
	return render(w, "partials/legend.html", data)
}

func RenderSeriesPartial(w io.Writer, data *SeriesData) error {
	return render(w, "partials/series.html", data)
}

func render(w io.Writer, name string, data any) error {
	if pagesTmpl == nil {
		return errors.New("templates not loaded: call views.LoadTemplates during startup")
	}
	return pagesTmpl.ExecuteTemplate(w, name, data)
}

func formatReading(r scale.Reading) string {
	if !r.Valid {
		return "–"
	}
	return formatNumber(r.Value)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
