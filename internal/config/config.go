package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultMonthLabels = "Jan,Fév,Mar,Avr,Mai,Juin,Juil,Août,Sep,Oct,Nov,Déc"

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	DataDir     string
	MonthLabels []string
	LegendSteps int
	Datasets    []DatasetConfig

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	SQLiteLogSQL          bool

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// ReloadInterval is how often data files are checked for changes. Zero disables polling.
	ReloadInterval time.Duration
	SessionMaxAge  time.Duration
}

// DatasetConfig names the files and month fields of one climate variable.
type DatasetConfig struct {
	Key         string
	Title       string
	Unit        string
	FieldPrefix string
	Gradient    string
	RegionsFile string
	CitiesFile  string
}

// LoadDotEnv loads variables from the given .env files. Missing files are skipped
// and variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir, err := filepath.Abs(env("STATIC_DIR", "static"))
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", os.Getenv("STATIC_DIR"), err)
	}

	dataDir := env("DATA_DIR", filepath.Join("data", "vector"))

	labels := splitList(env("MONTH_LABELS", defaultMonthLabels))
	if len(labels) != 12 {
		return Config{}, fmt.Errorf("invalid MONTH_LABELS: expected 12 comma-separated labels, got %d", len(labels))
	}

	legendSteps, err := envInt("LEGEND_STEPS", 5)
	if err != nil {
		return Config{}, err
	}
	if legendSteps < 1 {
		return Config{}, fmt.Errorf("invalid LEGEND_STEPS %d: must be at least 1", legendSteps)
	}

	precip := DatasetConfig{
		Key:         "precip",
		Title:       "Précipitations",
		Unit:        "mm",
		FieldPrefix: env("PRECIP_FIELD_PREFIX", "precip_"),
		Gradient:    env("PRECIP_GRADIENT", "blues"),
		RegionsFile: dataPath(dataDir, env("PRECIP_REGIONS_FILE", "regions_precip_2024.geojson")),
		CitiesFile:  dataPath(dataDir, env("PRECIP_CITIES_FILE", "villes_precip_2024.geojson")),
	}
	temp := DatasetConfig{
		Key:         "temp",
		Title:       "Température",
		Unit:        "°C",
		FieldPrefix: env("TEMP_FIELD_PREFIX", "temp_"),
		Gradient:    env("TEMP_GRADIENT", "diverging"),
		RegionsFile: dataPath(dataDir, env("TEMP_REGIONS_FILE", "regions_temp_2024.geojson")),
		CitiesFile:  dataPath(dataDir, env("TEMP_CITIES_FILE", "villes_temp_2024.geojson")),
	}

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}
	logSQL, err := envBool("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	mqttEnabled, err := envBool("MQTT_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort < 1 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d", mqttPort)
	}

	reloadInterval, err := envDuration("RELOAD_INTERVAL", 0)
	if err != nil {
		return Config{}, err
	}
	sessionMaxAge, err := envDuration("SESSION_MAX_AGE", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		HTTPAddr:              env("HTTP_ADDR", ":8080"),
		StaticDir:             staticDir,
		DataDir:               dataDir,
		MonthLabels:           labels,
		LegendSteps:           legendSteps,
		Datasets:              []DatasetConfig{precip, temp},
		SQLiteDriver:          env("DB_DRIVER", "sqlite3"),
		SQLiteDSN:             env("DB_DSN", ""),
		SQLitePath:            env("SQLITE_PATH", filepath.Join("data", "sqlite", "climap.db")),
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		SQLiteLogSQL:          logSQL,
		MQTTEnabled:           mqttEnabled,
		MQTTBroker:            env("MQTT_BROKER", "localhost"),
		MQTTPort:              mqttPort,
		MQTTClientID:          env("MQTT_CLIENT_ID", "climap-server"),
		MQTTTopic:             env("MQTT_TOPIC", "climap/datasets/reload"),
		ReloadInterval:        reloadInterval,
		SessionMaxAge:         sessionMaxAge,
	}, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, s)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dataPath(dir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
