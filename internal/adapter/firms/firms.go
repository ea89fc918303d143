// Package firms adapts NASA FIRMS active-fire hotspot CSV downloads.
package firms

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

const (
	Name           = "firms-hotspots"
	DefaultBaseURL = "https://firms.modaps.eosdis.nasa.gov/api/area/csv"
)

// Getter is the subset of feed.Client the adapter uses.
type Getter interface {
	Get(ctx context.Context, source, rawURL string, query url.Values) ([]byte, error)
}

// Config selects the FIRMS product and area.
type Config struct {
	BaseURL string
	MapKey  string
	Sensor  string // e.g. VIIRS_SNPP_NRT, MODIS_NRT
	Area    string // "world" or "west,south,east,north"
	Days    int    // 1..10
}

// Adapter reads hotspot detections.
type Adapter struct {
	client Getter
	url    string
}

// New creates the FIRMS adapter. A missing map key is a configuration error.
func New(client Getter, cfg Config) (*Adapter, error) {
	if cfg.MapKey == "" {
		return nil, &domain.ConfigurationError{Component: Name, Err: errors.New("FIRMS map key is not set")}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Sensor == "" {
		cfg.Sensor = "VIIRS_SNPP_NRT"
	}
	if cfg.Area == "" {
		cfg.Area = "world"
	}
	if cfg.Days < 1 {
		cfg.Days = 1
	}
	u := fmt.Sprintf("%s/%s/%s/%s/%d", strings.TrimSuffix(cfg.BaseURL, "/"),
		url.PathEscape(cfg.MapKey), url.PathEscape(cfg.Sensor), url.PathEscape(cfg.Area), cfg.Days)
	return &Adapter{client: client, url: u}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Fetch(ctx context.Context) (collector.Batch, error) {
	body, err := a.client.Get(ctx, Name, a.url, nil)
	if err != nil {
		return collector.Batch{}, err
	}
	return parse(body)
}

// brightnessColumns lists the brightness column of each product, VIIRS first.
var brightnessColumns = []string{"bright_ti4", "brightness"}

func parse(body []byte) (collector.Batch, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return collector.Batch{}, domain.Malformed(Name, "", fmt.Errorf("read csv header: %w", err))
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	latIdx, okLat := cols["latitude"]
	lonIdx, okLon := cols["longitude"]
	if !okLat || !okLon {
		return collector.Batch{}, domain.Malformed(Name, "", errors.New("csv header lacks latitude/longitude"))
	}
	brightIdx := -1
	for _, c := range brightnessColumns {
		if i, ok := cols[c]; ok {
			brightIdx = i
			break
		}
	}

	var batch collector.Batch
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		ref := strconv.Itoa(line)
		if err != nil {
			batch.Drop(Name, ref, err)
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		lat, err1 := field(rec, latIdx)
		lon, err2 := field(rec, lonIdx)
		if err := errors.Join(err1, err2); err != nil {
			batch.Drop(Name, ref, err)
			continue
		}

		d := domain.Draft{
			Source:      domain.SourceSatelliteHotspot,
			Ref:         ref,
			Category:    string(domain.TypeWildfire),
			Coordinates: []float64{lon, lat},
			Title:       "Active Wildfire Detected",
			ReportedAt:  acquired(rec, cols),
		}
		if brightIdx >= 0 {
			if b, err := field(rec, brightIdx); err == nil {
				d.Reading = domain.Reading{Metrics: map[string]float64{domain.MetricBrightness: b}}
				d.Payload = domain.WildfirePayload{Brightness: b}
				d.Description = fmt.Sprintf("Fire detected with brightness: %g", b)
			}
		}
		batch.Drafts = append(batch.Drafts, d)
	}
	return batch, nil
}

func field(rec []string, i int) (float64, error) {
	if i >= len(rec) {
		return 0, fmt.Errorf("missing column %d", i)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		return 0, fmt.Errorf("column %d: %w", i, err)
	}
	return v, nil
}

// acquired combines acq_date (YYYY-MM-DD) and acq_time (HHMM, UTC). A
// missing or unparsable value yields the zero time, deferring to collection
// time.
func acquired(rec []string, cols map[string]int) time.Time {
	di, ok := cols["acq_date"]
	if !ok || di >= len(rec) {
		return time.Time{}
	}
	hhmm := "0000"
	if ti, ok := cols["acq_time"]; ok && ti < len(rec) {
		if t := strings.TrimSpace(rec[ti]); len(t) <= 4 {
			hhmm = strings.Repeat("0", 4-len(t)) + t
		}
	}
	ts, err := time.Parse("2006-01-02 1504", strings.TrimSpace(rec[di])+" "+hhmm)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
