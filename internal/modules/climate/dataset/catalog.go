package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"climap-server/internal/metrics"
	"climap-server/internal/modules/climate/scale"

	"github.com/jonboulle/clockwork"
)

// Catalog holds the loaded datasets. Readers get a dataset pointer that stays
// consistent for the whole request; reloads swap the pointer.
type Catalog struct {
	mu       sync.RWMutex
	sources  map[string]Source
	order    []string
	datasets map[string]*Dataset

	reloadMu sync.Mutex
	clock    clockwork.Clock
	metrics  *metrics.Metrics
}

func NewCatalog(sources []Source, clock clockwork.Clock, m *metrics.Metrics) (*Catalog, error) {
	c := &Catalog{
		sources:  make(map[string]Source, len(sources)),
		datasets: make(map[string]*Dataset, len(sources)),
		clock:    clock,
		metrics:  m,
	}
	for _, s := range sources {
		if s.Key == "" {
			return nil, errors.New("dataset key is required")
		}
		if _, dup := c.sources[s.Key]; dup {
			return nil, fmt.Errorf("duplicate dataset %q", s.Key)
		}
		if _, ok := scale.GradientByName(s.Gradient); !ok {
			return nil, fmt.Errorf("dataset %s: unknown gradient %q", s.Key, s.Gradient)
		}
		c.sources[s.Key] = s
		c.order = append(c.order, s.Key)
	}
	return c, nil
}

// LoadAll loads every dataset. A failing dataset does not stop the others; the
// failures are joined into the returned error.
func (c *Catalog) LoadAll() error {
	var errs []error
	for _, key := range c.order {
		if err := c.Reload(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload loads one dataset from disk. On error the previous version stays in place.
func (c *Catalog) Reload(key string) error {
	src, ok := c.sources[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, key)
	}
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	d, err := Load(src, c.clock.Now())
	if err != nil {
		c.metrics.DatasetLoads.WithLabelValues(key, "error").Inc()
		return err
	}
	c.mu.Lock()
	c.datasets[key] = d
	c.mu.Unlock()

	c.metrics.DatasetLoads.WithLabelValues(key, "ok").Inc()
	c.metrics.DatasetSamples.WithLabelValues(key).Set(float64(d.Stats.Count))
	for name, l := range d.Layers {
		c.metrics.DatasetFeatures.WithLabelValues(key, string(name)).Set(float64(len(l.Features)))
	}
	slog.Info("dataset loaded",
		"dataset", key,
		"samples", d.Stats.Count,
		"min", d.Stats.Min,
		"max", d.Stats.Max,
	)
	return nil
}

// ReloadChanged reloads the datasets whose files changed on disk since the last load.
func (c *Catalog) ReloadChanged() ([]string, error) {
	var reloaded []string
	var errs []error
	for _, key := range c.order {
		d, err := c.Get(key)
		if err != nil || !changed(d) {
			continue
		}
		if err := c.Reload(key); err != nil {
			errs = append(errs, err)
			continue
		}
		reloaded = append(reloaded, key)
	}
	return reloaded, errors.Join(errs...)
}

func changed(d *Dataset) bool {
	for _, l := range d.Layers {
		info, err := os.Stat(l.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if !l.ModTime.IsZero() {
				return true
			}
		case err != nil:
			continue
		case !info.ModTime().Equal(l.ModTime):
			return true
		}
	}
	return false
}

func (c *Catalog) Get(key string) (*Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.datasets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, key)
	}
	return d, nil
}

// List returns the loaded datasets in configuration order.
func (c *Catalog) List() []*Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Dataset, 0, len(c.order))
	for _, key := range c.order {
		if d, ok := c.datasets[key]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (c *Catalog) Keys() []string {
	return append([]string(nil), c.order...)
}
