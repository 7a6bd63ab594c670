package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"climap-server/internal/modules/climate/dataset"
	"climap-server/internal/modules/climate/repository"
	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/service"
	"climap-server/internal/modules/climate/types"
	"climap-server/internal/utils"

	"github.com/go-playground/validator/v10"
)

const (
	maxBodyBytes   = 1 << 16
	maxLegendSteps = 50
)

var validate = validator.New()

type createSessionRequest struct {
	Dataset string `json:"dataset" validate:"required,max=32"`
}

type monthRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
}

type selectionRequest struct {
	Layer     string `json:"layer" validate:"required,oneof=regions cities"`
	FeatureID string `json:"featureId" validate:"required,max=128"`
}

// decodeBody reads a JSON body into v and validates it.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

func parseLayer(r *http.Request) (types.Layer, error) {
	s := r.PathValue("layer")
	if s == "" {
		s = r.URL.Query().Get("layer")
	}
	layer, ok := types.ParseLayer(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", dataset.ErrUnknownLayer, s)
	}
	return layer, nil
}

// parseMonth returns def when the query has no month.
func parseMonth(r *http.Request, def int) (int, error) {
	s := r.URL.Query().Get("month")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'month' (expected integer)")
	}
	if !scale.ValidMonth(n) {
		return 0, fmt.Errorf("%w: got %d", scale.ErrInvalidMonth, n)
	}
	return n, nil
}

// parseSteps returns 0, meaning the configured default, when the query has no steps.
func parseSteps(r *http.Request) (int, error) {
	s := r.URL.Query().Get("steps")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'steps' (expected integer)")
	}
	if n < 1 {
		return 0, errors.New("'steps' must be > 0")
	}
	if n > maxLegendSteps {
		return 0, fmt.Errorf("'steps' must be <= %d", maxLegendSteps)
	}
	return n, nil
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, scale.ErrInvalidMonth),
		errors.Is(err, dataset.ErrUnknownLayer):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrUnknownDataset),
		errors.Is(err, dataset.ErrFeatureNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, service.ErrNoData):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", "error", err)
		utils.WriteError(w, status, op+" failed")
		return
	}
	utils.WriteError(w, status, err.Error())
}
