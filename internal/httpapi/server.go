package httpapi

import (
	"net/http"
	"time"

	"climap-server/internal/config"
	"climap-server/internal/metrics"
)

func NewServer(cfg config.Config, mux *http.ServeMux, m *metrics.Metrics) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           RequestLogger(mux, m),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
