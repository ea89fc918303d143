// Package openweather samples the OpenWeather current-weather API over a
// lattice and reports cells whose readings cross a hazard trigger.
package openweather

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/grid"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
)

const DefaultURL = "https://api.openweathermap.org/data/2.5/weather"

// Trigger thresholds in metric units (°C, m/s, %).
const (
	stormWind         = 20.0
	heatTemperature   = 40.0
	floodHumidity     = 85.0
	cycloneWind       = 30.0
	cycloneWindPerCat = 20.0
)

// Getter is the subset of feed.Client the adapter uses.
type Getter interface {
	GetJSON(ctx context.Context, source, rawURL string, query url.Values, dest any) error
}

// Observation is the subset of a current-weather response the detectors read.
type Observation struct {
	Name    string      `json:"name"`
	Dt      int64       `json:"dt"`
	Weather []Condition `json:"weather"`
	Main    struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain map[string]float64 `json:"rain"` // "1h", "3h" in mm; absent when dry
}

// Condition is one entry of the response's weather list.
type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

func (o Observation) rain(window string) float64 { return o.Rain[window] }

func (o Observation) condition() (main, description string) {
	if len(o.Weather) == 0 {
		return "", ""
	}
	return o.Weather[0].Main, o.Weather[0].Description
}

func (o Observation) observedAt() time.Time {
	if o.Dt <= 0 {
		return time.Time{}
	}
	return time.Unix(o.Dt, 0).UTC()
}

// Detector turns one cell's observation into a draft when its trigger fires.
type Detector func(cell grid.Cell, obs Observation) (domain.Draft, bool)

// Kind names an adapter and its detector.
type Kind struct {
	Name   string
	Detect Detector
}

// Conditions reports generic severe weather: strong wind, extreme heat, and
// tornado, hurricane or flood conditions.
func Conditions() Kind {
	return Kind{Name: "openweather-conditions", Detect: detectConditions}
}

// Floods reports cells with rain or near-saturated air.
func Floods() Kind {
	return Kind{Name: "openweather-floods", Detect: detectFlood}
}

// Cyclones reports cells with cyclonic wind speeds.
func Cyclones() Kind {
	return Kind{Name: "openweather-cyclones", Detect: detectCyclone}
}

func conditionType(obs Observation) (domain.Type, bool) {
	main, _ := obs.condition()
	main = strings.ToLower(main)
	switch {
	case obs.Wind.Speed > stormWind:
		return domain.TypeSevereStorm, true
	case obs.Main.Temp > heatTemperature:
		return domain.TypeExtremeWeather, true
	case strings.Contains(main, "tornado"):
		return domain.TypeTornado, true
	case strings.Contains(main, "hurricane"):
		return domain.TypeHurricane, true
	case strings.Contains(main, "flood"):
		return domain.TypeFlood, true
	}
	return "", false
}

func detectConditions(cell grid.Cell, obs Observation) (domain.Draft, bool) {
	typ, ok := conditionType(obs)
	if !ok {
		return domain.Draft{}, false
	}
	_, description := obs.condition()
	rain := obs.rain("1h")

	var payload domain.Payload
	switch typ.Category() {
	case domain.CategoryCyclone:
		payload = cyclonePayload(cell, obs)
	case domain.CategoryFlood:
		payload = floodPayload(obs)
	default:
		payload = domain.WeatherPayload{
			Temperature: obs.Main.Temp,
			Humidity:    obs.Main.Humidity,
			WindSpeed:   obs.Wind.Speed,
			Rain:        rain,
		}
	}

	return domain.Draft{
		Source:      domain.SourceMeteorological,
		Category:    string(typ),
		Coordinates: []float64{cell.Lon, cell.Lat},
		Address:     obs.Name,
		Title:       alertTitle(typ),
		Description: description,
		ReportedAt:  obs.observedAt(),
		Reading: domain.Reading{Metrics: map[string]float64{
			domain.MetricTemperature: obs.Main.Temp,
			domain.MetricWindSpeed:   obs.Wind.Speed,
			domain.MetricRain:        rain,
		}},
		Severity: domain.WeatherSeverity(obs.Main.Temp, obs.Wind.Speed, rain),
		Payload:  payload,
	}, true
}

func detectFlood(cell grid.Cell, obs Observation) (domain.Draft, bool) {
	if obs.Rain == nil && obs.Main.Humidity <= floodHumidity {
		return domain.Draft{}, false
	}
	return domain.Draft{
		Source:      domain.SourceMeteorological,
		Category:    string(domain.TypeFlood),
		Coordinates: []float64{cell.Lon, cell.Lat},
		Address:     obs.Name,
		Title:       "Flood Alert",
		Description: "Heavy rainfall and flooding conditions detected",
		ReportedAt:  obs.observedAt(),
		Reading: domain.Reading{Metrics: map[string]float64{
			domain.MetricWaterLevel: obs.rain("1h"),
			domain.MetricRainfall:   obs.rain("3h"),
		}},
		Payload: floodPayload(obs),
	}, true
}

func detectCyclone(cell grid.Cell, obs Observation) (domain.Draft, bool) {
	if obs.Wind.Speed <= cycloneWind {
		return domain.Draft{}, false
	}
	metrics := map[string]float64{domain.MetricWindSpeed: obs.Wind.Speed}
	if obs.Main.Pressure > 0 {
		metrics[domain.MetricPressure] = obs.Main.Pressure
	}
	return domain.Draft{
		Source:      domain.SourceMeteorological,
		Category:    string(domain.TypeCyclone),
		Coordinates: []float64{cell.Lon, cell.Lat},
		Address:     obs.Name,
		Title:       "Cyclone Alert",
		Description: "High wind speeds indicating cyclonic conditions",
		ReportedAt:  obs.observedAt(),
		Reading:     domain.Reading{Metrics: metrics},
		Payload:     cyclonePayload(cell, obs),
	}, true
}

func floodPayload(obs Observation) domain.FloodPayload {
	return domain.FloodPayload{
		WaterLevel:       obs.rain("1h"),
		Rainfall:         obs.rain("3h"),
		EvacuationStatus: "monitoring",
	}
}

func cyclonePayload(cell grid.Cell, obs Observation) domain.CyclonePayload {
	return domain.CyclonePayload{
		StormCategory: int(math.Ceil(obs.Wind.Speed / cycloneWindPerCat)),
		WindSpeed:     obs.Wind.Speed,
		Pressure:      obs.Main.Pressure,
		PredictedPath: [][2]float64{{cell.Lon, cell.Lat}},
	}
}

func alertTitle(t domain.Type) string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + " Alert"
}

// Config locates the API.
type Config struct {
	URL    string
	APIKey string
}

// Adapter samples one Kind over a lattice.
type Adapter struct {
	client  Getter
	url     string
	apiKey  string
	kind    Kind
	lattice grid.Lattice
	sampler *grid.Sampler
	metrics *observability.Metrics
}

// New creates a grid adapter. A missing API key is a configuration error.
func New(client Getter, cfg Config, kind Kind, lattice grid.Lattice, sampler *grid.Sampler, metrics *observability.Metrics) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Component: kind.Name, Err: errors.New("OpenWeather API key is not set")}
	}
	if err := lattice.Validate(); err != nil {
		return nil, &domain.ConfigurationError{Component: kind.Name, Err: err}
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Adapter{
		client:  client,
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		kind:    kind,
		lattice: lattice,
		sampler: sampler,
		metrics: metrics,
	}, nil
}

func (a *Adapter) Name() string { return a.kind.Name }

// Spread is the lattice step, so a hazard seen from adjacent cells is one
// event.
func (a *Adapter) Spread() float64 { return a.lattice.Step }

func (a *Adapter) Fetch(ctx context.Context) (collector.Batch, error) {
	var (
		mu    sync.Mutex
		batch collector.Batch
	)
	_, err := a.sampler.Sample(ctx, a.lattice, func(ctx context.Context, cell grid.Cell) error {
		query := url.Values{
			"lat":   {strconv.FormatFloat(cell.Lat, 'f', -1, 64)},
			"lon":   {strconv.FormatFloat(cell.Lon, 'f', -1, 64)},
			"appid": {a.apiKey},
			"units": {"metric"},
		}
		var obs Observation
		if err := a.client.GetJSON(ctx, a.kind.Name, a.url, query, &obs); err != nil {
			a.metrics.GridCells.WithLabelValues(a.kind.Name, "failed").Inc()
			return err
		}
		a.metrics.GridCells.WithLabelValues(a.kind.Name, "ok").Inc()

		if d, ok := a.kind.Detect(cell, obs); ok {
			d.Ref = strconv.Itoa(cell.Row) + ":" + strconv.Itoa(cell.Col)
			mu.Lock()
			batch.Drafts = append(batch.Drafts, d)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return collector.Batch{}, err
	}
	return batch, nil
}
