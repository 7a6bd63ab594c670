package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"climap-server/internal/config"
	"climap-server/internal/db"
	"climap-server/internal/httpapi"
	"climap-server/internal/metrics"
	"climap-server/internal/migrate"
	"climap-server/internal/modules/climate"
	"climap-server/internal/modules/climate/dataset"
	climateviews "climap-server/internal/modules/climate/views"
	"climap-server/internal/mqtt"
	"climap-server/internal/scheduler"

	"github.com/jonboulle/clockwork"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"dataDir", cfg.DataDir,
		"datasets", len(cfg.Datasets),
		"legendSteps", cfg.LegendSteps,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"reloadInterval", cfg.ReloadInterval,
		"sessionMaxAge", cfg.SessionMaxAge,
	)
	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}
	slog.Info("database ready")

	m := metrics.NewMetrics()
	clock := clockwork.NewRealClock()

	catalog, err := dataset.NewCatalog(climate.Sources(cfg), clock, m)
	if err != nil {
		return err
	}
	if err := catalog.LoadAll(); err != nil {
		return err
	}

	if err := climateviews.LoadTemplates(); err != nil {
		return err
	}

	// Set the MQTT handler before Connect so the OnConnect subscription can deliver
	// queued messages straight away.
	var (
		subscriber    *mqtt.Subscriber
		reloadTrigger mqtt.MQTTSubscriber
	)
	if cfg.MQTTEnabled {
		subscriber, err = mqtt.NewSubscriber(cfg, slog.Default(), m)
		if err != nil {
			return err
		}
		reloadTrigger = subscriber
	}

	mux := httpapi.NewMux(dbConn, cfg.StaticDir)
	climateService, err := climate.RegisterFeature(mux, dbConn, catalog, cfg, reloadTrigger, clock, m)
	if err != nil {
		return err
	}

	if subscriber != nil {
		// Short timeout so a broker outage does not block startup.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	sched := scheduler.New(climate.Jobs(cfg, climateService)...)
	if _, err := sched.Start(); err != nil {
		return err
	}

	srv := httpapi.NewServer(cfg, mux, m)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		sched.Stop()
		if subscriber != nil {
			subscriber.Disconnect()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("scheduler stopping")
	sched.Stop()

	if subscriber != nil {
		slog.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
