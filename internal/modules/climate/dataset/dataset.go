package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/types"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrUnknownDataset  = errors.New("unknown dataset")
	ErrUnknownLayer    = errors.New("unknown layer")
	ErrFeatureNotFound = errors.New("feature not found")
)

var emptyCollection = []byte(`{"type":"FeatureCollection","features":[]}`)

var (
	idKeys   = []string{"region_id", "id_region", "id_ville", "id"}
	nameKeys = []string{"nom_region", "nom_ville", "name", "NAME_1"}
)

// Source describes where a dataset lives and how its months are named.
type Source struct {
	Key      string
	Title    string
	Unit     string
	Prefix   string
	Gradient string
	Files    map[types.Layer]string
}

type Feature struct {
	ID         string
	Name       string
	Layer      types.Layer
	Properties map[string]any
	Geometry   orb.Geometry
}

type Layer struct {
	Name     types.Layer
	Path     string
	ModTime  time.Time
	Raw      []byte
	Features []Feature
	Bound    orb.Bound
	HasBound bool

	byID map[string]int
}

func (l *Layer) Feature(id string) (Feature, bool) {
	i, ok := l.byID[id]
	if !ok {
		return Feature{}, false
	}
	return l.Features[i], true
}

// Dataset is immutable once loaded; reloading builds a new one.
type Dataset struct {
	Key      string
	Title    string
	Unit     string
	Namer    scale.FieldNamer
	Mapper   scale.ColorMapper
	Layers   map[types.Layer]*Layer
	Stats    scale.Stats
	LoadedAt time.Time
}

func (d *Dataset) Layer(name types.Layer) (*Layer, error) {
	l, ok := d.Layers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayer, name)
	}
	return l, nil
}

func (d *Dataset) Feature(layer types.Layer, id string) (Feature, error) {
	l, err := d.Layer(layer)
	if err != nil {
		return Feature{}, err
	}
	f, ok := l.Feature(id)
	if !ok {
		return Feature{}, fmt.Errorf("%w: %s/%s", ErrFeatureNotFound, layer, id)
	}
	return f, nil
}

// Bounds is the union of every layer's bounding box.
func (d *Dataset) Bounds() (orb.Bound, bool) {
	var out orb.Bound
	found := false
	for _, name := range types.Layers {
		l, ok := d.Layers[name]
		if !ok || !l.HasBound {
			continue
		}
		if !found {
			out, found = l.Bound, true
			continue
		}
		out = out.Union(l.Bound)
	}
	return out, found
}

func (d *Dataset) Summary() types.DatasetSummary {
	s := types.DatasetSummary{
		Key:      d.Key,
		Title:    d.Title,
		Unit:     d.Unit,
		Gradient: d.Mapper.Gradient.Name,
		Stats:    types.NewStatsView(d.Stats),
		Features: make(map[types.Layer]int, len(d.Layers)),
		LoadedAt: d.LoadedAt,
	}
	for name, l := range d.Layers {
		s.Features[name] = len(l.Features)
	}
	if b, ok := d.Bounds(); ok {
		s.Bounds = &types.Bounds{West: b.Min.Lon(), South: b.Min.Lat(), East: b.Max.Lon(), North: b.Max.Lat()}
	}
	return s
}

// Load reads every layer of src and computes the dataset range once.
// A missing file is served as an empty collection.
func Load(src Source, now time.Time) (*Dataset, error) {
	g, ok := scale.GradientByName(src.Gradient)
	if !ok {
		return nil, fmt.Errorf("dataset %s: unknown gradient %q", src.Key, src.Gradient)
	}
	d := &Dataset{
		Key:      src.Key,
		Title:    src.Title,
		Unit:     src.Unit,
		Namer:    scale.FieldNamer{Prefix: src.Prefix},
		Mapper:   scale.NewColorMapper(g),
		Layers:   make(map[types.Layer]*Layer, len(src.Files)),
		LoadedAt: now,
	}
	var bags []map[string]any
	for _, name := range types.Layers {
		path, ok := src.Files[name]
		if !ok {
			continue
		}
		l, err := loadLayer(name, path)
		if err != nil {
			return nil, fmt.Errorf("load %s %s: %w", src.Key, name, err)
		}
		d.Layers[name] = l
		for _, f := range l.Features {
			bags = append(bags, f.Properties)
		}
	}
	d.Stats = scale.ComputeStats(d.Namer, bags)
	return d, nil
}

func loadLayer(name types.Layer, path string) (*Layer, error) {
	l := &Layer{Name: name, Path: path, byID: map[string]int{}}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("dataset file missing, serving empty collection", "layer", name, "path", path)
		l.Raw = emptyCollection
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	l.ModTime = info.ModTime()
	l.Raw = data
	l.Features = make([]Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		f := Feature{
			ID:         featureID(gf, i),
			Layer:      name,
			Properties: map[string]any(gf.Properties),
			Geometry:   gf.Geometry,
		}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
		f.Name = featureName(f.Properties, f.ID)
		if _, dup := l.byID[f.ID]; dup {
			slog.Warn("duplicate feature id, keeping first", "layer", name, "id", f.ID, "path", path)
		} else {
			l.byID[f.ID] = len(l.Features)
		}
		if f.Geometry != nil {
			b := f.Geometry.Bound()
			if !l.HasBound {
				l.Bound, l.HasBound = b, true
			} else {
				l.Bound = l.Bound.Union(b)
			}
		}
		l.Features = append(l.Features, f)
	}
	return l, nil
}

func featureID(f *geojson.Feature, index int) string {
	for _, k := range idKeys {
		if s := stringify(f.Properties[k]); s != "" {
			return s
		}
	}
	if s := stringify(f.ID); s != "" {
		return s
	}
	return strconv.Itoa(index)
}

func featureName(props map[string]any, fallback string) string {
	for _, k := range nameKeys {
		if s, ok := props[k].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}
