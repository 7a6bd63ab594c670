package controller

import (
	"context"
	"io"
	"net/http"

	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/types"
)

// ClimateService is what the HTTP layer needs from the climate service.
type ClimateService interface {
	Months() scale.MonthLabels
	Datasets() []types.DatasetSummary
	Dataset(key string) (types.DatasetSummary, error)
	Stats(key string) (types.StatsView, error)
	Legend(key string, steps int) ([]scale.LegendEntry, error)
	RawLayer(key string, layer types.Layer) ([]byte, error)
	Restyle(key string, month int) (types.Restyle, error)
	Series(key string, layer types.Layer, featureID string, month int) (types.SeriesView, error)
	RenderChart(w io.Writer, key string, layer types.Layer, featureID string) error

	CreateSession(ctx context.Context, key string) (types.SessionUpdate, error)
	GetSession(ctx context.Context, id string) (types.Session, error)
	SetMonth(ctx context.Context, id string, month int) (types.SessionUpdate, error)
	Select(ctx context.Context, id string, layer types.Layer, featureID string) (types.SessionUpdate, error)
	ClearSelection(ctx context.Context, id string) (types.SessionUpdate, error)
}

type ClimateController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type climateControllerImpl struct {
	service ClimateService
}

func NewClimateController(service ClimateService) ClimateController {
	return &climateControllerImpl{service: service}
}

func (c *climateControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleHome)
	mux.HandleFunc("GET /maps/{dataset}", c.handleMap)
	mux.HandleFunc("GET /partials/{dataset}/legend", c.handleLegendPartial)
	mux.HandleFunc("GET /partials/{dataset}/series", c.handleSeriesPartial)

	mux.HandleFunc("GET /api/months", c.handleMonths)
	mux.HandleFunc("GET /api/datasets", c.handleDatasets)
	mux.HandleFunc("GET /api/datasets/{dataset}/stats", c.handleStats)
	mux.HandleFunc("GET /api/datasets/{dataset}/legend", c.handleLegend)
	mux.HandleFunc("GET /api/datasets/{dataset}/styles", c.handleStyles)
	mux.HandleFunc("GET /api/datasets/{dataset}/{layer}", c.handleLayer)
	mux.HandleFunc("GET /api/datasets/{dataset}/{layer}/{id}/series", c.handleSeries)
	mux.HandleFunc("GET /api/datasets/{dataset}/{layer}/{id}/chart.png", c.handleChart)

	mux.HandleFunc("POST /api/sessions", c.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", c.handleGetSession)
	mux.HandleFunc("PUT /api/sessions/{id}/month", c.handleSetMonth)
	mux.HandleFunc("PUT /api/sessions/{id}/selection", c.handleSelect)
	mux.HandleFunc("DELETE /api/sessions/{id}/selection", c.handleClearSelection)
}
