// Package source builds the configured feed adapters.
//
// Every known adapter is enabled by default. A YAML sources file can override
// endpoints, supply credentials or disable adapters:
//
//	sources:
//	  firms-hotspots:
//	    map_key: abc123
//	    area: "68,6,97,37"
//	  nws-droughts:
//	    enabled: false
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/eonet"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/feed"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/firms"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/nws"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/openweather"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/usgs"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/volcano"
	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/grid"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"
)

// Settings holds the per-adapter overrides. Fields an adapter does not use
// are ignored.
type Settings struct {
	Enabled *bool    `yaml:"enabled"`
	URL     string   `yaml:"url"`
	APIKey  string   `yaml:"api_key"`
	MapKey  string   `yaml:"map_key"`
	Events  []string `yaml:"events"`
	Sensor  string   `yaml:"sensor"`
	Area    string   `yaml:"area"`
	Days    int      `yaml:"days"`
}

func (s Settings) enabled() bool { return s.Enabled == nil || *s.Enabled }

// File is the decoded sources file.
type File struct {
	Sources map[string]Settings `yaml:"sources"`
}

// Load reads the sources file at path and applies the credential overrides
// OPENWEATHER_API_KEY and FIRMS_MAP_KEY. An empty path yields only the
// environment overrides.
func Load(path string) (File, error) {
	var f File
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("read sources file: %w", err)
		}
		if err := yaml.Unmarshal(b, &f); err != nil {
			return File{}, fmt.Errorf("parse sources file %s: %w", path, err)
		}
	}
	if f.Sources == nil {
		f.Sources = make(map[string]Settings)
	}
	for name := range registry {
		s := f.Sources[name]
		switch {
		case strings.HasPrefix(name, "openweather-"):
			s.APIKey = sharedcfg.EnvOrDefault("OPENWEATHER_API_KEY", s.APIKey)
		case name == firms.Name:
			s.MapKey = sharedcfg.EnvOrDefault("FIRMS_MAP_KEY", s.MapKey)
		default:
			continue
		}
		f.Sources[name] = s
	}
	return f, nil
}

// Deps are the shared collaborators handed to every constructor.
type Deps struct {
	Client  *feed.Client
	Lattice grid.Lattice
	Sampler *grid.Sampler
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Constructor creates one adapter from its settings.
type Constructor func(s Settings, d Deps) (collector.Adapter, error)

var registry = map[string]Constructor{
	usgs.EarthquakesName: func(s Settings, d Deps) (collector.Adapter, error) {
		return usgs.NewEarthquakes(d.Client, s.URL), nil
	},
	usgs.TsunamisName: func(s Settings, d Deps) (collector.Adapter, error) {
		return usgs.NewTsunamis(d.Client, s.URL), nil
	},
	eonet.Name: func(s Settings, d Deps) (collector.Adapter, error) {
		return eonet.New(d.Client, s.URL, d.Logger), nil
	},
	firms.Name: func(s Settings, d Deps) (collector.Adapter, error) {
		return firms.New(d.Client, firms.Config{BaseURL: s.URL, MapKey: s.MapKey, Sensor: s.Sensor, Area: s.Area, Days: s.Days})
	},
	"nws-floods":   nwsConstructor(nws.Floods),
	"nws-storms":   nwsConstructor(nws.Storms),
	"nws-droughts": nwsConstructor(nws.Droughts),
	volcano.Name: func(s Settings, d Deps) (collector.Adapter, error) {
		return volcano.New(d.Client, s.URL), nil
	},
	"openweather-conditions": openweatherConstructor(openweather.Conditions),
	"openweather-floods":     openweatherConstructor(openweather.Floods),
	"openweather-cyclones":   openweatherConstructor(openweather.Cyclones),
}

func nwsConstructor(kind func() nws.Kind) Constructor {
	return func(s Settings, d Deps) (collector.Adapter, error) {
		return nws.New(d.Client, s.URL, kind(), s.Events), nil
	}
}

func openweatherConstructor(kind func() openweather.Kind) Constructor {
	return func(s Settings, d Deps) (collector.Adapter, error) {
		return openweather.New(d.Client, openweather.Config{URL: s.URL, APIKey: s.APIKey}, kind(), d.Lattice, d.Sampler, d.Metrics)
	}
}

// Names returns every known adapter name in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build constructs every enabled adapter. An adapter whose settings are
// incomplete is logged and left out; any other constructor error is
// returned.
func Build(f File, d Deps) ([]collector.Adapter, error) {
	for name := range f.Sources {
		if _, ok := registry[name]; !ok {
			d.Logger.Warn("unknown source in sources file", "source", name)
		}
	}

	var adapters []collector.Adapter
	for _, name := range Names() {
		s := f.Sources[name]
		if !s.enabled() {
			d.Logger.Info("source disabled", "source", name)
			continue
		}
		a, err := registry[name](s, d)
		if err != nil {
			var cfgErr *domain.ConfigurationError
			if errors.As(err, &cfgErr) {
				d.Logger.Warn("source disabled", "source", name, "error", err)
				continue
			}
			return nil, fmt.Errorf("build source %s: %w", name, err)
		}
		adapters = append(adapters, a)
	}
	if len(adapters) == 0 {
		return nil, errors.New("no sources enabled")
	}
	return adapters, nil
}
