package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"climap-server/internal/metrics"
	"climap-server/internal/modules/climate/dataset"
	"climap-server/internal/modules/climate/repository"
	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/types"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var ErrNoData = errors.New("no data for feature")

// Stroke policy per layer. Only the fill follows the data.
var strokes = map[types.Layer]types.Style{
	types.LayerRegions: {Color: "#ffffff", Weight: 1, FillOpacity: 0.8},
	types.LayerCities:  {Color: "#333333", Weight: 1, FillOpacity: 0.9},
}

type Service struct {
	catalog     *dataset.Catalog
	repository  repository.SessionRepository
	labels      scale.MonthLabels
	legendSteps int
	clock       clockwork.Clock
	metrics     *metrics.Metrics
}

func NewService(
	catalog *dataset.Catalog,
	repo repository.SessionRepository,
	labels scale.MonthLabels,
	legendSteps int,
	clock clockwork.Clock,
	m *metrics.Metrics,
) *Service {
	if legendSteps < 1 {
		legendSteps = scale.DefaultLegendSteps
	}
	return &Service{
		catalog:     catalog,
		repository:  repo,
		labels:      labels,
		legendSteps: legendSteps,
		clock:       clock,
		metrics:     m,
	}
}

func (s *Service) Months() scale.MonthLabels {
	return s.labels
}

func (s *Service) Datasets() []types.DatasetSummary {
	var out []types.DatasetSummary
	for _, d := range s.catalog.List() {
		out = append(out, d.Summary())
	}
	return out
}

func (s *Service) Dataset(key string) (types.DatasetSummary, error) {
	d, err := s.catalog.Get(key)
	if err != nil {
		return types.DatasetSummary{}, err
	}
	return d.Summary(), nil
}

func (s *Service) Stats(key string) (types.StatsView, error) {
	d, err := s.catalog.Get(key)
	if err != nil {
		return types.StatsView{}, err
	}
	return types.NewStatsView(d.Stats), nil
}

// Legend uses the configured step count when steps is zero.
func (s *Service) Legend(key string, steps int) ([]scale.LegendEntry, error) {
	d, err := s.catalog.Get(key)
	if err != nil {
		return nil, err
	}
	if steps == 0 {
		steps = s.legendSteps
	}
	return scale.Legend(d.Stats, steps, d.Mapper), nil
}

func (s *Service) RawLayer(key string, layer types.Layer) ([]byte, error) {
	d, err := s.catalog.Get(key)
	if err != nil {
		return nil, err
	}
	l, err := d.Layer(layer)
	if err != nil {
		return nil, err
	}
	return l.Raw, nil
}

// Restyle colours every feature of every layer for month with the dataset's load-time range.
func (s *Service) Restyle(key string, month int) (types.Restyle, error) {
	if !scale.ValidMonth(month) {
		return types.Restyle{}, fmt.Errorf("%w: got %d", scale.ErrInvalidMonth, month)
	}
	d, err := s.catalog.Get(key)
	if err != nil {
		return types.Restyle{}, err
	}
	return restyle(d, month, s.labels.Label(month)), nil
}

func restyle(d *dataset.Dataset, month int, label string) types.Restyle {
	out := types.Restyle{
		Dataset: d.Key,
		Month:   month,
		Label:   label,
		Layers:  make(map[types.Layer]map[string]types.Style, len(d.Layers)),
	}
	for name, l := range d.Layers {
		styles := make(map[string]types.Style, len(l.Features))
		for _, f := range l.Features {
			r := d.Namer.Reading(f.Properties, month)
			st := strokes[name]
			st.FillColor = d.Mapper.ColorStats(r, d.Stats).Hex()
			st.Value = r
			styles[f.ID] = st
		}
		out.Layers[name] = styles
	}
	return out
}

// Series builds the 12-month trend of one feature. month marks the current slider position, 0 for none.
func (s *Service) Series(key string, layer types.Layer, featureID string, month int) (types.SeriesView, error) {
	d, err := s.catalog.Get(key)
	if err != nil {
		return types.SeriesView{}, err
	}
	f, err := d.Feature(layer, featureID)
	if err != nil {
		return types.SeriesView{}, err
	}
	return s.seriesView(d, f, month), nil
}

func (s *Service) seriesView(d *dataset.Dataset, f dataset.Feature, month int) types.SeriesView {
	v := types.SeriesView{
		Dataset:   d.Key,
		Layer:     f.Layer,
		FeatureID: f.ID,
		Title:     f.Name,
		Unit:      d.Unit,
		Labels:    s.labels.Slice(),
		Values:    d.Namer.Series(f.Properties),
	}
	if scale.ValidMonth(month) {
		v.Month = month
	}
	for i, r := range v.Values {
		v.Colors[i] = d.Mapper.ColorStats(r, d.Stats).Hex()
	}
	return v
}

// CreateSession starts a viewer on January with nothing selected and returns the first restyle.
func (s *Service) CreateSession(ctx context.Context, key string) (types.SessionUpdate, error) {
	d, err := s.catalog.Get(key)
	if err != nil {
		return types.SessionUpdate{}, err
	}
	now := s.clock.Now().UTC()
	sess := types.Session{
		ID:        uuid.NewString(),
		ViewState: types.NewViewState(key),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.CreateSession(ctx, sess); err != nil {
		return types.SessionUpdate{}, err
	}
	s.metrics.SessionTransitions.WithLabelValues("create").Inc()
	slog.Debug("session created", "session", sess.ID, "dataset", key)

	r := restyle(d, sess.Month, s.labels.Label(sess.Month))
	return types.SessionUpdate{Session: sess, Restyle: &r}, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (types.Session, error) {
	return s.repository.GetSession(ctx, id)
}

// SetMonth moves a session's slider. An invalid month leaves the stored state unchanged.
// Only the month column is written; the returned state is re-read so it carries any
// selection made concurrently.
func (s *Service) SetMonth(ctx context.Context, id string, month int) (types.SessionUpdate, error) {
	sess, d, err := s.load(ctx, id)
	if err != nil {
		return types.SessionUpdate{}, err
	}
	if err := sess.SetMonth(month); err != nil {
		return types.SessionUpdate{}, err
	}
	sess, err = s.commit(ctx, id, "month", func(at time.Time) error {
		return s.repository.UpdateMonth(ctx, id, month, at)
	})
	if err != nil {
		return types.SessionUpdate{}, err
	}

	r := restyle(d, sess.Month, s.labels.Label(sess.Month))
	out := types.SessionUpdate{Session: sess, Restyle: &r}
	if sess.Selection != nil {
		if f, err := d.Feature(sess.Selection.Layer, sess.Selection.FeatureID); err == nil {
			sv := s.seriesView(d, f, sess.Month)
			out.Series = &sv
		}
	}
	return out, nil
}

// Select points a session at one feature and returns its series for the chart.
func (s *Service) Select(ctx context.Context, id string, layer types.Layer, featureID string) (types.SessionUpdate, error) {
	sess, d, err := s.load(ctx, id)
	if err != nil {
		return types.SessionUpdate{}, err
	}
	f, err := d.Feature(layer, featureID)
	if err != nil {
		return types.SessionUpdate{}, err
	}
	sess.Select(layer, f.ID)
	sel := sess.Selection
	sess, err = s.commit(ctx, id, "select", func(at time.Time) error {
		return s.repository.UpdateSelection(ctx, id, sel, at)
	})
	if err != nil {
		return types.SessionUpdate{}, err
	}
	sv := s.seriesView(d, f, sess.Month)
	return types.SessionUpdate{Session: sess, Series: &sv}, nil
}

func (s *Service) ClearSelection(ctx context.Context, id string) (types.SessionUpdate, error) {
	sess, err := s.commit(ctx, id, "clear", func(at time.Time) error {
		return s.repository.UpdateSelection(ctx, id, nil, at)
	})
	if err != nil {
		return types.SessionUpdate{}, err
	}
	return types.SessionUpdate{Session: sess}, nil
}

// PruneSessions deletes sessions untouched for longer than maxAge.
func (s *Service) PruneSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.repository.DeleteSessionsBefore(ctx, s.clock.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("stale sessions pruned", "count", n, "max_age", maxAge.String())
	}
	return n, nil
}

// Reload reloads one dataset, or all of them when key is empty.
func (s *Service) Reload(key string) error {
	if key == "" {
		return s.catalog.LoadAll()
	}
	return s.catalog.Reload(key)
}

func (s *Service) ReloadChanged() ([]string, error) {
	return s.catalog.ReloadChanged()
}

func (s *Service) load(ctx context.Context, id string) (types.Session, *dataset.Dataset, error) {
	sess, err := s.repository.GetSession(ctx, id)
	if err != nil {
		return types.Session{}, nil, err
	}
	d, err := s.catalog.Get(sess.Dataset)
	if err != nil {
		return types.Session{}, nil, err
	}
	return sess, d, nil
}

// commit runs one column-scoped write and returns the session as stored afterwards.
func (s *Service) commit(ctx context.Context, id, kind string, write func(time.Time) error) (types.Session, error) {
	if err := write(s.clock.Now().UTC()); err != nil {
		return types.Session{}, err
	}
	s.metrics.SessionTransitions.WithLabelValues(kind).Inc()
	return s.repository.GetSession(ctx, id)
}
