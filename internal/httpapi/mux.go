package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux registers the infrastructure routes. Feature modules add their own on top.
func NewMux(db *sql.DB, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	mux.Handle("GET /metrics", promhttp.Handler())

	if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	} else if staticDir != "" {
		slog.Warn("static dir not found, /static/ disabled", "dir", staticDir)
	}
	return mux
}
