package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/disaster-alert-service/internal/dedup"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/grid"
)

// Store backends.
const (
	StoreMemory     = "memory"
	StoreClickHouse = "clickhouse"
)

// Alert publishers.
const (
	PublisherHub   = "hub"
	PublisherKafka = "kafka"
	PublisherSQS   = "sqs"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Collection.
	CollectInterval    time.Duration
	SourcesFile        string
	Lattice            grid.Lattice
	FetchConcurrency   int
	FetchRatePerSecond float64
	FetchTimeout       time.Duration
	Dedup              dedup.Config

	// Storage.
	StoreBackend string
	ClickHouse   ClickHouseConfig

	// Alerting.
	SubscribersFile   string
	AlertInterval     time.Duration
	AlertActiveWindow time.Duration
	AlertMinSeverity  domain.Severity
	AlertConcurrency  int
	ScopeCountry      string
	Scope             domain.Scope
	AlertPublishers   []string

	KafkaBrokers    []string
	KafkaAlertTopic string

	SQSQueueURL string
	SQSRegion   string
	SQSEndpoint string

	// Mapbox reverse geocoding.
	MapboxToken     string
	MapboxURL       string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// ClickHouseConfig holds connection settings for the ClickHouse store.
type ClickHouseConfig struct {
	Addr        []string
	Database    string
	Username    string
	Password    string
	UseTLS      bool
	DialTimeout time.Duration
}

// HasPublisher reports whether name is among the configured alert publishers.
func (c *Config) HasPublisher(name string) bool {
	for _, p := range c.AlertPublishers {
		if p == name {
			return true
		}
	}
	return false
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CollectInterval: p.duration("COLLECT_INTERVAL", 15*time.Minute),
		SourcesFile:     os.Getenv("SOURCES_FILE"),
		Lattice: grid.Lattice{
			MinLat: p.float("GRID_MIN_LAT", grid.DefaultLattice().MinLat),
			MaxLat: p.float("GRID_MAX_LAT", grid.DefaultLattice().MaxLat),
			MinLon: p.float("GRID_MIN_LON", grid.DefaultLattice().MinLon),
			MaxLon: p.float("GRID_MAX_LON", grid.DefaultLattice().MaxLon),
			Step:   p.float("GRID_STEP", grid.DefaultLattice().Step),
		},
		FetchConcurrency:   p.positiveInt("FETCH_CONCURRENCY", 8),
		FetchRatePerSecond: p.float("FETCH_RATE_PER_SECOND", 10),
		FetchTimeout:       p.duration("FETCH_TIMEOUT", 15*time.Second),

		StoreBackend: strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", StoreMemory)),
		ClickHouse: ClickHouseConfig{
			Addr:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("CLICKHOUSE_ADDR", "localhost:9000")),
			Database:    sharedcfg.EnvOrDefault("CLICKHOUSE_DATABASE", "default"),
			Username:    sharedcfg.EnvOrDefault("CLICKHOUSE_USERNAME", "default"),
			Password:    os.Getenv("CLICKHOUSE_PASSWORD"),
			UseTLS:      p.bool("CLICKHOUSE_TLS", false),
			DialTimeout: p.duration("CLICKHOUSE_DIAL_TIMEOUT", 5*time.Second),
		},

		SubscribersFile:   os.Getenv("SUBSCRIBERS_FILE"),
		AlertInterval:     p.duration("ALERT_INTERVAL", 5*time.Minute),
		AlertActiveWindow: p.duration("ALERT_ACTIVE_WINDOW", 24*time.Hour),
		AlertConcurrency:  p.positiveInt("ALERT_CONCURRENCY", 8),
		ScopeCountry:      sharedcfg.EnvOrDefault("SCOPE_COUNTRY", "India"),
		AlertPublishers:   parseList(sharedcfg.EnvOrDefault("ALERT_PUBLISHERS", PublisherHub)),

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "region-alerts"),

		SQSQueueURL: os.Getenv("SQS_QUEUE_URL"),
		SQSRegion:   sharedcfg.EnvOrDefault("SQS_REGION", "ap-south-1"),
		SQSEndpoint: os.Getenv("SQS_ENDPOINT"),

		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxURL:       os.Getenv("MAPBOX_URL"),
		MapboxTimeout:   p.duration("MAPBOX_TIMEOUT", 5*time.Second),
		MapboxCacheSize: p.positiveInt("MAPBOX_CACHE_SIZE", 1000),
	}
	cfg.MapboxEnabled = p.bool("MAPBOX_ENABLED", cfg.MapboxToken != "")

	cfg.Dedup = dedup.Config{
		Precision: p.nonNegativeInt("DEDUP_PRECISION", dedup.DefaultConfig().Precision),
		Bucket:    p.duration("DEDUP_BUCKET", cfg.CollectInterval),
		Policy:    dedup.DefaultConfig().Policy,
	}
	if s := os.Getenv("DEDUP_POLICY"); s != "" {
		policy, err := dedup.ParsePolicy(s)
		p.check(err)
		cfg.Dedup.Policy = policy
	}

	cfg.AlertMinSeverity = domain.SeverityHigh
	if s := os.Getenv("ALERT_MIN_SEVERITY"); s != "" {
		sev, err := domain.ParseSeverity(s)
		p.check(err)
		cfg.AlertMinSeverity = sev
	}

	scope, err := parseScope(cfg.ScopeCountry)
	p.check(err)
	cfg.Scope = scope

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.Lattice.Validate(); err != nil {
		return fmt.Errorf("invalid GRID_*: %w", err)
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreClickHouse:
		if len(c.ClickHouse.Addr) == 0 {
			return errors.New("CLICKHOUSE_ADDR is required")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if len(c.AlertPublishers) == 0 {
		return errors.New("ALERT_PUBLISHERS is required")
	}
	for _, name := range c.AlertPublishers {
		switch name {
		case PublisherHub:
		case PublisherKafka:
			if len(c.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is required")
			}
			if c.KafkaAlertTopic == "" {
				return errors.New("KAFKA_ALERT_TOPIC is required")
			}
		case PublisherSQS:
			if c.SQSQueueURL == "" {
				return errors.New("SQS_QUEUE_URL is required when ALERT_PUBLISHERS includes sqs")
			}
		default:
			return fmt.Errorf("unknown alert publisher %q", name)
		}
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

// parseScope builds the alert scope: an address substring (SCOPE_ADDRESS,
// defaulting to the country) or a bounding box (SCOPE_BBOX as
// "minLon,minLat,maxLon,maxLat"; India's box by default when the country is
// India). "none" disables either part; with both disabled every event is in
// scope.
func parseScope(country string) (domain.Scope, error) {
	var parts domain.AnyScope

	address := sharedcfg.EnvOrDefault("SCOPE_ADDRESS", country)
	if address != "" && !strings.EqualFold(address, "none") {
		parts = append(parts, domain.AddressScope{Substring: address})
	}

	bbox := os.Getenv("SCOPE_BBOX")
	switch {
	case bbox == "" && strings.EqualFold(country, "India"):
		parts = append(parts, domain.BoxScope(domain.IndiaBounds))
	case bbox == "" || strings.EqualFold(bbox, "none"):
	default:
		box, err := parseBBox(bbox)
		if err != nil {
			return nil, err
		}
		parts = append(parts, domain.BoxScope(box))
	}

	if len(parts) == 0 {
		return domain.Everywhere, nil
	}
	return parts, nil
}

func parseBBox(s string) (domain.BoundingBox, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return domain.BoundingBox{}, fmt.Errorf("invalid SCOPE_BBOX %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("invalid SCOPE_BBOX %q: %w", s, err)
		}
		v[i] = n
	}
	box := domain.BoundingBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if box.MinLon > box.MaxLon || box.MinLat > box.MaxLat {
		return domain.BoundingBox{}, fmt.Errorf("invalid SCOPE_BBOX %q: min exceeds max", s)
	}
	return box, nil
}

func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parser reads typed variables and keeps the first error.
type parser struct {
	err error
}

func (p *parser) check(err error) {
	if p.err == nil && err != nil {
		p.err = err
	}
}

func (p *parser) duration(name string, def time.Duration) time.Duration {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.check(fmt.Errorf("invalid %s %q: must be a positive duration", name, s))
		return def
	}
	return d
}

func (p *parser) float(name string, def float64) float64 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.check(fmt.Errorf("invalid %s %q: %w", name, s, err))
		return def
	}
	return f
}

func (p *parser) int(name string, def, floor int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < floor {
		p.check(fmt.Errorf("invalid %s %q: must be an integer >= %d", name, s, floor))
		return def
	}
	return n
}

func (p *parser) positiveInt(name string, def int) int { return p.int(name, def, 1) }

func (p *parser) nonNegativeInt(name string, def int) int { return p.int(name, def, 0) }

func (p *parser) bool(name string, def bool) bool {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.check(fmt.Errorf("invalid %s %q: %w", name, s, err))
		return def
	}
	return b
}
