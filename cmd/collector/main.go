// Command collector runs the disaster event collector, the regional alert
// matcher and the read-only event API.
//
// With -once it runs a single collection and alert cycle, prints the reports
// as JSON and exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/feed"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/disaster-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/mapbox"
	sqsadapter "github.com/couchcryptid/disaster-alert-service/internal/adapter/sqs"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/subscribers"
	"github.com/couchcryptid/disaster-alert-service/internal/alert"
	"github.com/couchcryptid/disaster-alert-service/internal/collector"
	"github.com/couchcryptid/disaster-alert-service/internal/config"
	"github.com/couchcryptid/disaster-alert-service/internal/dedup"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/grid"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/query"
	"github.com/couchcryptid/disaster-alert-service/internal/source"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/couchcryptid/disaster-alert-service/internal/store/clickhouse"
	"github.com/couchcryptid/disaster-alert-service/internal/store/memory"
)

func main() {
	once := flag.Bool("once", false, "run one collection and alert cycle, print the reports and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, *once, logger); err != nil {
		logger.Error("collector exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, once bool, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := openStore(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "event store", events.Close)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxURL, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	sources, err := source.Load(cfg.SourcesFile)
	if err != nil {
		return err
	}
	adapters, err := source.Build(sources, source.Deps{
		Client: feed.NewClient(feed.Config{
			Timeout:       cfg.FetchTimeout,
			Concurrency:   cfg.FetchConcurrency,
			RatePerSecond: cfg.FetchRatePerSecond,
			UserAgent:     feed.DefaultConfig().UserAgent,
		}, metrics, logger),
		Lattice: cfg.Lattice,
		Sampler: grid.NewSampler(cfg.FetchConcurrency, logger),
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	scheduler := collector.New(adapters, dedup.NewGate(events, cfg.Dedup), collector.Options{
		Interval: cfg.CollectInterval,
		Clock:    clock,
		Geocoder: geocoder,
	}, metrics, logger)

	publisher, closePublishers, err := buildPublishers(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closePublishers()

	var matcher *alert.Matcher
	if cfg.SubscribersFile != "" {
		matcher = alert.NewMatcher(events, subscribers.NewFile(cfg.SubscribersFile), publisher, alert.Config{
			Interval:     cfg.AlertInterval,
			ActiveWindow: cfg.AlertActiveWindow,
			MinSeverity:  cfg.AlertMinSeverity,
			Country:      cfg.ScopeCountry,
			Scope:        cfg.Scope,
			Concurrency:  cfg.AlertConcurrency,
			Clock:        clock,
		}, metrics, logger)
	} else {
		logger.Info("alert matcher disabled: SUBSCRIBERS_FILE not set")
	}

	if once {
		return runOnce(ctx, scheduler, matcher)
	}

	ready := httpadapter.AllReady{storeReadiness{events}, scheduler}
	if matcher != nil {
		ready = append(ready, matcher)
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, query.New(events, cfg.Scope), logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	if matcher != nil {
		g.Go(func() error { return matcher.Run(gctx) })
	}

	<-gctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (store.Store, error) {
	activity := store.Activity{Window: cfg.AlertActiveWindow, Clock: clock}
	if cfg.StoreBackend != config.StoreClickHouse {
		logger.Info("using in-memory event store")
		return memory.New(activity), nil
	}

	conn, err := clickhouse.Connect(ctx, clickhouse.Config{
		Addr:        cfg.ClickHouse.Addr,
		Database:    cfg.ClickHouse.Database,
		Username:    cfg.ClickHouse.Username,
		Password:    cfg.ClickHouse.Password,
		UseTLS:      cfg.ClickHouse.UseTLS,
		DialTimeout: cfg.ClickHouse.DialTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	s := clickhouse.New(conn, activity, logger)
	if err := s.InitSchema(ctx); err != nil {
		closeQuietly(logger, "clickhouse", s.Close)
		return nil, err
	}
	return s, nil
}

// buildPublishers assembles the configured alert transports. The returned
// func closes the ones that hold connections.
func buildPublishers(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (alert.Publisher, func(), error) {
	var (
		fanout  alert.Fanout
		closers []func() error
	)
	for _, name := range cfg.AlertPublishers {
		switch name {
		case config.PublisherHub:
			hub := alert.NewHub(metrics.AlertHubDropped)
			messages, unsubscribe := hub.Subscribe(alert.AllRegions, 64)
			go logRegionAlerts(messages, logger)
			closers = append(closers, func() error { unsubscribe(); return nil })
			fanout = append(fanout, hub)
		case config.PublisherKafka:
			p := kafkaadapter.NewPublisher(cfg, logger)
			closers = append(closers, p.Close)
			fanout = append(fanout, p)
		case config.PublisherSQS:
			p, err := sqsadapter.NewPublisher(ctx, sqsadapter.Config{
				QueueURL: cfg.SQSQueueURL,
				Region:   cfg.SQSRegion,
				Endpoint: cfg.SQSEndpoint,
			}, logger)
			if err != nil {
				return nil, nil, err
			}
			fanout = append(fanout, p)
		}
		logger.Info("alert publisher enabled", "publisher", name)
	}
	closeAll := func() {
		for _, c := range closers {
			closeQuietly(logger, "alert publisher", c)
		}
	}
	if len(fanout) == 1 {
		return fanout[0], closeAll, nil
	}
	return fanout, closeAll, nil
}

func logRegionAlerts(messages <-chan alert.Message, logger *slog.Logger) {
	for msg := range messages {
		for _, s := range msg.Summaries {
			logger.Info("region alert",
				"region_key", msg.RegionKey,
				"event_id", s.ID,
				"type", s.Type,
				"severity", s.Severity.String(),
				"area", s.Location.Area,
			)
		}
	}
}

type adapterSummary struct {
	Adapter  string `json:"adapter"`
	Fetched  int    `json:"fetched"`
	Dropped  int    `json:"dropped"`
	Inserted int    `json:"inserted"`
	Merged   int    `json:"merged"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

func runOnce(ctx context.Context, scheduler *collector.Scheduler, matcher *alert.Matcher) error {
	report, err := scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}

	out := struct {
		Adapters []adapterSummary `json:"adapters"`
		Alert    *alert.Report    `json:"alert,omitempty"`
	}{}
	for _, a := range report.Adapters {
		sum := adapterSummary{
			Adapter:  a.Adapter,
			Fetched:  a.Fetched,
			Dropped:  a.Dropped,
			Inserted: a.Inserted,
			Merged:   a.Merged,
			Skipped:  a.Skipped,
			Failed:   a.Failed,
			Duration: a.Duration.String(),
		}
		if a.Err != nil {
			sum.Error = a.Err.Error()
		}
		out.Adapters = append(out.Adapters, sum)
	}

	if matcher != nil {
		alerts, err := matcher.RunOnce(ctx)
		if err != nil {
			return err
		}
		out.Alert = &alerts
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if n := len(report.Adapters); n > 0 && len(report.Failed()) == n {
		return errors.New("every adapter failed")
	}
	return nil
}

type storeReadiness struct {
	store.Store
}

func (s storeReadiness) CheckReadiness(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	return nil
}

func closeQuietly(logger *slog.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error("close error", "component", what, "error", err)
	}
}
