package controller

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"climap-server/internal/metrics"
	"climap-server/internal/migrate"
	"climap-server/internal/modules/climate/dataset"
	"climap-server/internal/modules/climate/repository"
	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/service"
	"climap-server/internal/modules/climate/types"
	"climap-server/internal/modules/climate/views"

	"github.com/jonboulle/clockwork"

	_ "github.com/mattn/go-sqlite3"
)

const regionsGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"nom_region":"Bretagne","region_id":"53",
   "precip_01":100,"precip_02":80,"precip_03":null,"precip_07":20},
  "geometry":{"type":"Polygon","coordinates":[[[-5,47],[-1,47],[-1,49],[-5,49],[-5,47]]]}},
 {"type":"Feature","properties":{"nom_region":"Corse","region_id":"94"},
  "geometry":{"type":"Polygon","coordinates":[[[8.5,41.3],[9.6,41.3],[9.6,43],[8.5,43],[8.5,41.3]]]}}
]}`

const citiesGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"nom_ville":"Brest","id_ville":"brest","precip_01":0,"precip_07":40},
  "geometry":{"type":"Point","coordinates":[-4.49,48.39]}}
]}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	if err := views.LoadTemplates(); err != nil {
		t.Fatalf("load templates: %v", err)
	}

	dir := t.TempDir()
	regions := filepath.Join(dir, "regions.geojson")
	cities := filepath.Join(dir, "villes.geojson")
	if err := os.WriteFile(regions, []byte(regionsGeoJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cities, []byte(citiesGeoJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	m := metrics.NewMetricsForTesting()
	catalog, err := dataset.NewCatalog([]dataset.Source{{
		Key:      "precip",
		Title:    "Précipitations",
		Unit:     "mm",
		Prefix:   "precip_",
		Gradient: "blues",
		Files:    map[types.Layer]string{types.LayerRegions: regions, types.LayerCities: cities},
	}}, clock, m)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := catalog.LoadAll(); err != nil {
		t.Fatalf("load datasets: %v", err)
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := service.NewService(catalog, repository.NewRepository(db), scale.DefaultMonthLabels, 5, clock, m)
	mux := http.NewServeMux()
	NewClimateController(svc).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON[T any](t *testing.T, method, url string, body any, out *T) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode json: %v", err)
		}
	}
	return resp
}

func mustGetRaw(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(b)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestMonths(t *testing.T) {
	srv := newTestServer(t)

	var got struct {
		Labels []string `json:"labels"`
	}
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/months", nil, &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(got.Labels) != 12 || got.Labels[0] != "Jan" || got.Labels[11] != "Déc" {
		t.Errorf("labels = %v", got.Labels)
	}
}

func TestDatasetsAndStats(t *testing.T) {
	srv := newTestServer(t)

	var list []types.DatasetSummary
	doJSON(t, http.MethodGet, srv.URL+"/api/datasets", nil, &list)
	if len(list) != 1 || list[0].Key != "precip" {
		t.Fatalf("datasets = %+v", list)
	}
	if list[0].Features[types.LayerRegions] != 2 || list[0].Features[types.LayerCities] != 1 {
		t.Errorf("features = %v", list[0].Features)
	}

	var st types.StatsView
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/datasets/precip/stats", nil, &st)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if st.Min != 0 || st.Max != 100 || st.Count != 5 || st.Empty {
		t.Errorf("stats = %+v", st)
	}

	var eb errorBody
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/datasets/wind/stats", nil, &eb)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown dataset status = %d, want 404", resp.StatusCode)
	}
	if eb.Error != http.StatusText(http.StatusNotFound) {
		t.Errorf("error = %q", eb.Error)
	}
}

func TestLegend(t *testing.T) {
	srv := newTestServer(t)

	var legend []scale.LegendEntry
	doJSON(t, http.MethodGet, srv.URL+"/api/datasets/precip/legend", nil, &legend)
	if len(legend) != 6 {
		t.Fatalf("len(legend) = %d, want 6", len(legend))
	}
	if legend[0].Value != 0 || legend[0].Color != "#f7fbff" {
		t.Errorf("legend[0] = %+v", legend[0])
	}
	if legend[5].Value != 100 || legend[5].Color != "#08306b" {
		t.Errorf("legend[5] = %+v", legend[5])
	}

	legend = nil
	doJSON(t, http.MethodGet, srv.URL+"/api/datasets/precip/legend?steps=2", nil, &legend)
	if len(legend) != 3 {
		t.Errorf("len(legend) = %d, want 3", len(legend))
	}

	for _, q := range []string{"steps=0", "steps=x", "steps=500"} {
		resp := doJSON[errorBody](t, http.MethodGet, srv.URL+"/api/datasets/precip/legend?"+q, nil, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestStyles(t *testing.T) {
	srv := newTestServer(t)

	var r types.Restyle
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/datasets/precip/styles", nil, &r)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if r.Month != 1 || r.Label != "Jan" {
		t.Errorf("month = %d %q, want default January", r.Month, r.Label)
	}
	bretagne := r.Layers[types.LayerRegions]["53"]
	if bretagne.FillColor != "#08306b" || bretagne.Color != "#ffffff" || bretagne.Weight != 1 || bretagne.FillOpacity != 0.8 {
		t.Errorf("bretagne = %+v", bretagne)
	}
	if got := r.Layers[types.LayerRegions]["94"]; got.FillColor != "#cccccc" || got.Value.Valid {
		t.Errorf("corse = %+v, want neutral", got)
	}
	if got := r.Layers[types.LayerCities]["brest"]; got.FillColor != "#f7fbff" || got.FillOpacity != 0.9 {
		t.Errorf("brest = %+v", got)
	}

	r = types.Restyle{}
	doJSON(t, http.MethodGet, srv.URL+"/api/datasets/precip/styles?month=3", nil, &r)
	if got := r.Layers[types.LayerRegions]["53"]; got.FillColor != "#cccccc" {
		t.Errorf("null march value = %+v, want neutral", got)
	}

	for _, q := range []string{"month=0", "month=13", "month=mars"} {
		resp := doJSON[errorBody](t, http.MethodGet, srv.URL+"/api/datasets/precip/styles?"+q, nil, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestLayer(t *testing.T) {
	srv := newTestServer(t)

	resp, body := mustGetRaw(t, srv.URL+"/api/datasets/precip/regions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/geo+json") {
		t.Errorf("Content-Type = %q", ct)
	}
	if body != regionsGeoJSON {
		t.Error("layer body must be passed through unchanged")
	}

	resp, _ = mustGetRaw(t, srv.URL+"/api/datasets/precip/departements")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown layer status = %d, want 400", resp.StatusCode)
	}
}

func TestSeries(t *testing.T) {
	srv := newTestServer(t)

	var sv types.SeriesView
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/datasets/precip/regions/53/series?month=2", nil, &sv)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if sv.Title != "Bretagne" || len(sv.Labels) != 12 || sv.Month != 2 {
		t.Errorf("series = %+v", sv)
	}
	if !sv.Values[0].Valid || sv.Values[0].Value != 100 {
		t.Errorf("values[0] = %+v", sv.Values[0])
	}
	if sv.Values[2].Valid {
		t.Error("null must decode as a gap")
	}

	resp = doJSON[errorBody](t, http.MethodGet, srv.URL+"/api/datasets/precip/regions/99/series", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown feature status = %d, want 404", resp.StatusCode)
	}
}

func TestChart(t *testing.T) {
	srv := newTestServer(t)

	resp, body := mustGetRaw(t, srv.URL+"/api/datasets/precip/cities/brest/chart.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(body, "\x89PNG") {
		t.Error("body is not a PNG")
	}

	resp, _ = mustGetRaw(t, srv.URL+"/api/datasets/precip/regions/94/chart.png")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("feature without data status = %d, want 404", resp.StatusCode)
	}
}

func TestSessionFlow(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/sessions"

	var created types.SessionUpdate
	resp := doJSON(t, http.MethodPost, base, map[string]string{"dataset": "precip"}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	id := created.Session.ID
	if id == "" || created.Session.Month != 1 || created.Restyle == nil {
		t.Fatalf("created = %+v", created)
	}

	var up types.SessionUpdate
	resp = doJSON(t, http.MethodPut, base+"/"+id+"/month", map[string]int{"month": 7}, &up)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("month status = %d", resp.StatusCode)
	}
	if up.Session.Month != 7 || up.Restyle == nil || up.Restyle.Label != "Juil" {
		t.Errorf("month update = %+v", up)
	}

	resp = doJSON[errorBody](t, http.MethodPut, base+"/"+id+"/month", map[string]int{"month": 13}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid month status = %d, want 400", resp.StatusCode)
	}

	up = types.SessionUpdate{}
	resp = doJSON(t, http.MethodPut, base+"/"+id+"/selection",
		map[string]string{"layer": "cities", "featureId": "brest"}, &up)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d", resp.StatusCode)
	}
	if up.Series == nil || up.Series.Title != "Brest" || up.Series.Month != 7 {
		t.Errorf("select update = %+v", up)
	}

	resp = doJSON[errorBody](t, http.MethodPut, base+"/"+id+"/selection",
		map[string]string{"layer": "rivers", "featureId": "loire"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid layer status = %d, want 400", resp.StatusCode)
	}
	resp = doJSON[errorBody](t, http.MethodPut, base+"/"+id+"/selection",
		map[string]string{"layer": "cities", "featureId": "quimper"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown feature status = %d, want 404", resp.StatusCode)
	}

	var sess types.Session
	doJSON(t, http.MethodGet, base+"/"+id, nil, &sess)
	if sess.Month != 7 || sess.Selection == nil || sess.Selection.FeatureID != "brest" {
		t.Errorf("stored session = %+v", sess)
	}

	up = types.SessionUpdate{}
	resp = doJSON(t, http.MethodDelete, base+"/"+id+"/selection", nil, &up)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	if up.Session.Selection != nil {
		t.Errorf("selection = %+v, want nil", up.Session.Selection)
	}
}

func TestSessionErrors(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/sessions"

	tests := []struct {
		name   string
		method string
		url    string
		body   any
		want   int
	}{
		{"missing dataset", http.MethodPost, base, map[string]string{}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base, map[string]string{"dataset": "precip", "x": "y"}, http.StatusBadRequest},
		{"unknown dataset", http.MethodPost, base, map[string]string{"dataset": "wind"}, http.StatusNotFound},
		{"unknown session", http.MethodGet, base + "/nope", nil, http.StatusNotFound},
		{"month on unknown session", http.MethodPut, base + "/nope/month", map[string]int{"month": 2}, http.StatusNotFound},
		{"clear on unknown session", http.MethodDelete, base + "/nope/selection", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON[errorBody](t, tt.method, tt.url, tt.body, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestPages(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path     string
		want     int
		contains string
	}{
		{"/", http.StatusOK, `href="/maps/precip"`},
		{"/maps/precip", http.StatusOK, `data-dataset="precip"`},
		{"/maps/wind", http.StatusNotFound, ""},
		{"/partials/precip/legend", http.StatusOK, "#08306b"},
		{"/partials/precip/series?layer=regions&id=53&month=1", http.StatusOK, "Bretagne"},
		{"/partials/precip/series?layer=regions", http.StatusBadRequest, ""},
		{"/partials/precip/series?layer=lakes&id=1", http.StatusBadRequest, ""},
		{"/nowhere", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := mustGetRaw(t, srv.URL+tt.path)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.contains != "" && !strings.Contains(body, tt.contains) {
				t.Errorf("body missing %q", tt.contains)
			}
			if tt.want == http.StatusOK {
				if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
					t.Errorf("Content-Type = %q", ct)
				}
			}
		})
	}
}
