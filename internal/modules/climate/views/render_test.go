package views

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"

	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/types"
)

func TestLoadTemplates_success(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates() = %v; want nil", err)
	}
	if pagesTmpl == nil {
		t.Fatal("LoadTemplates() left pagesTmpl nil")
	}
	for _, name := range []string{"home.html", "map.html", "partials/legend.html", "partials/series.html"} {
		if pagesTmpl.Lookup(name) == nil {
			t.Errorf("template %q not defined", name)
		}
	}
}

func TestLoadTemplates_failure_sub(t *testing.T) {
	if err := loadTemplatesFromFS(fstest.MapFS{}, "templates"); err == nil {
		t.Fatal("loadTemplatesFromFS(emptyFS) = nil; want error")
	}
}

func TestLoadTemplates_failure_parse(t *testing.T) {
	badFS := fstest.MapFS{
		"templates/home.html": {Data: []byte("{{ .")},
	}
	if err := loadTemplatesFromFS(badFS, "templates"); err == nil {
		t.Fatal("loadTemplatesFromFS(badFS) = nil; want error")
	}
}

func TestRender_notLoaded(t *testing.T) {
	prev := pagesTmpl
	pagesTmpl = nil
	t.Cleanup(func() { pagesTmpl = prev })

	err := RenderHome(&bytes.Buffer{}, &HomeData{})
	if err == nil {
		t.Fatal("RenderHome() = nil; want error when templates not loaded")
	}
	if !strings.Contains(err.Error(), "not loaded") {
		t.Errorf("err = %q; want message containing \"not loaded\"", err.Error())
	}
}

func mustLoad(t *testing.T) {
	t.Helper()
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates() = %v", err)
	}
}

func TestRenderHome(t *testing.T) {
	mustLoad(t)

	var buf bytes.Buffer
	err := RenderHome(&buf, &HomeData{Datasets: []types.DatasetSummary{
		{Key: "precip", Title: "Précipitations", Unit: "mm", Stats: types.StatsView{Min: 0, Max: 120, Count: 3}},
		{Key: "temp", Title: "Température", Unit: "°C", Stats: types.StatsView{Empty: true}},
	}})
	if err != nil {
		t.Fatalf("RenderHome() = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`href="/maps/precip"`, "0.0 à 120.0", "aucune donnée"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderHome_noDatasets(t *testing.T) {
	mustLoad(t)

	var buf bytes.Buffer
	if err := RenderHome(&buf, &HomeData{}); err != nil {
		t.Fatalf("RenderHome() = %v", err)
	}
	if !strings.Contains(buf.String(), "Aucun jeu de données") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRenderMap(t *testing.T) {
	mustLoad(t)

	var buf bytes.Buffer
	err := RenderMap(&buf, &MapData{
		Dataset: types.DatasetSummary{
			Key: "temp", Title: "Température", Unit: "°C",
			Bounds: &types.Bounds{West: -5, South: 41, East: 9.6, North: 51},
		},
		Months: scale.DefaultMonthLabels.Slice(),
		Legend: LegendData{Dataset: "temp", Unit: "°C", Neutral: "#cccccc"},
	})
	if err != nil {
		t.Fatalf("RenderMap() = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`data-dataset="temp"`, "Jan", "fitBounds", `class="legend"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	// session PUTs are serialized and responses for an older slider position are dropped
	for _, want := range []string{"pending.then(fn)", "up.session.month === Number(slider.value)", "if (!current(up)) return;"} {
		if !strings.Contains(out, want) {
			t.Errorf("script missing %q", want)
		}
	}
}

func TestRenderLegendPartial(t *testing.T) {
	mustLoad(t)

	var buf bytes.Buffer
	err := RenderLegendPartial(&buf, &LegendData{
		Dataset: "precip",
		Unit:    "mm",
		Entries: []scale.LegendEntry{{Value: 0, Color: "#f7fbff"}, {Value: 100, Color: "#08306b"}},
		Neutral: "#cccccc",
	})
	if err != nil {
		t.Fatalf("RenderLegendPartial() = %v", err)
	}
	out := buf.String()
	if strings.Count(out, `class="swatch"`) != 3 {
		t.Errorf("want 2 entries plus the neutral swatch, got %q", out)
	}
	for _, want := range []string{"#08306b", "100.0", `hx-get="/partials/precip/legend"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderLegendPartial_empty(t *testing.T) {
	mustLoad(t)

	var buf bytes.Buffer
	if err := RenderLegendPartial(&buf, &LegendData{Dataset: "temp", Neutral: "#cccccc"}); err != nil {
		t.Fatalf("RenderLegendPartial() = %v", err)
	}
	if strings.Contains(buf.String(), "<ul>") {
		t.Error("empty legend must not render entries")
	}
}

func TestNewSeriesData(t *testing.T) {
	sv := types.SeriesView{
		Title:  "Brest",
		Unit:   "mm",
		Labels: scale.DefaultMonthLabels.Slice(),
		Month:  3,
	}
	sv.Values[0] = scale.Present(12.5)
	sv.Colors[0] = "#f7fbff"

	data := NewSeriesData(sv)
	if len(data.Rows) != 12 {
		t.Fatalf("len(Rows) = %d, want 12", len(data.Rows))
	}
	if data.Rows[0].Label != "Jan" || data.Rows[0].Color != "#f7fbff" {
		t.Errorf("Rows[0] = %+v", data.Rows[0])
	}
	if !data.Rows[2].Current || data.Rows[0].Current {
		t.Error("only March should be current")
	}
}

func TestRenderSeriesPartial(t *testing.T) {
	mustLoad(t)

	sv := types.SeriesView{Title: "Brest", Unit: "mm", Labels: scale.DefaultMonthLabels.Slice(), Month: 1}
	sv.Values[0] = scale.Present(12.5)

	var buf bytes.Buffer
	data := NewSeriesData(sv)
	if err := RenderSeriesPartial(&buf, &data); err != nil {
		t.Fatalf("RenderSeriesPartial() = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "12.5") {
		t.Errorf("output missing value: %q", out)
	}
	if strings.Count(out, "<tr") != 12 {
		t.Errorf("want 12 rows")
	}
	if strings.Count(out, "–") != 11 {
		t.Errorf("want 11 gap markers")
	}
	if !strings.Contains(out, `class="current"`) {
		t.Error("current month not highlighted")
	}
}
