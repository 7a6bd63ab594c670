package climate

import (
	"database/sql"
	"log/slog"
	"net/http"

	"climap-server/internal/config"
	"climap-server/internal/metrics"
	"climap-server/internal/modules/climate/controller"
	"climap-server/internal/modules/climate/dataset"
	"climap-server/internal/modules/climate/repository"
	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/service"
	"climap-server/internal/modules/climate/types"
	"climap-server/internal/mqtt"

	"github.com/jonboulle/clockwork"
)

// Sources turns the configured datasets into catalog sources.
func Sources(cfg config.Config) []dataset.Source {
	out := make([]dataset.Source, 0, len(cfg.Datasets))
	for _, d := range cfg.Datasets {
		out = append(out, dataset.Source{
			Key:      d.Key,
			Title:    d.Title,
			Unit:     d.Unit,
			Prefix:   d.FieldPrefix,
			Gradient: d.Gradient,
			Files: map[types.Layer]string{
				types.LayerRegions: d.RegionsFile,
				types.LayerCities:  d.CitiesFile,
			},
		})
	}
	return out
}

// RegisterFeature wires the climate module onto mux and, when subscriber is not nil,
// onto MQTT reload commands. The returned service drives the scheduled jobs.
func RegisterFeature(
	mux *http.ServeMux,
	db *sql.DB,
	catalog *dataset.Catalog,
	cfg config.Config,
	subscriber mqtt.MQTTSubscriber,
	clock clockwork.Clock,
	m *metrics.Metrics,
) (*service.Service, error) {
	labels, err := scale.ParseMonthLabels(cfg.MonthLabels)
	if err != nil {
		return nil, err
	}
	climateRepository := repository.NewRepository(db)
	climateService := service.NewService(catalog, climateRepository, labels, cfg.LegendSteps, clock, m)
	climateController := controller.NewClimateController(climateService)
	climateController.RegisterRoutes(mux)

	if subscriber != nil {
		registerMQTTHandler(subscriber, climateService, slog.Default())
	}
	return climateService, nil
}
