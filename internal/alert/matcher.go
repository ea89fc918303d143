package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/periodic"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Config controls a Matcher.
type Config struct {
	Interval     time.Duration   // default 5m
	ActiveWindow time.Duration   // default 24h
	MinSeverity  domain.Severity // default HIGH
	Country      string          // region key and summary country, default "India"
	Scope        domain.Scope    // default domain.DefaultScope()
	Concurrency  int             // subscribers matched at once, default 8
	Matcher      RegionMatcher   // default AddressContainsRegion
	Clock        clockwork.Clock
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.ActiveWindow <= 0 {
		c.ActiveWindow = 24 * time.Hour
	}
	if !c.MinSeverity.Valid() {
		c.MinSeverity = domain.SeverityHigh
	}
	if c.Country == "" {
		c.Country = "India"
	}
	if c.Scope == nil {
		c.Scope = domain.DefaultScope()
	}
	if c.Concurrency < 1 {
		c.Concurrency = 8
	}
	if c.Matcher == nil {
		c.Matcher = AddressContainsRegion
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Report summarizes one matching cycle.
type Report struct {
	Candidates  int `json:"candidates"`  // active in-scope events
	Subscribers int `json:"subscribers"` // alert-enabled subscribers considered
	Published   int `json:"published"`
	Failed      int `json:"failed"`
}

// Matcher periodically joins active events to subscribers.
type Matcher struct {
	events      store.Reader
	subscribers SubscriberSource
	publisher   Publisher
	cfg         Config
	loop        *periodic.Loop
	metrics     *observability.Metrics
	logger      *slog.Logger
	ready       atomic.Bool
}

// NewMatcher creates a Matcher.
func NewMatcher(events store.Reader, subscribers SubscriberSource, publisher Publisher, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Matcher {
	cfg = cfg.withDefaults()
	return &Matcher{
		events:      events,
		subscribers: subscribers,
		publisher:   publisher,
		cfg:         cfg,
		loop:        periodic.New("alert-matcher", cfg.Interval, cfg.Clock, logger),
		metrics:     metrics,
		logger:      logger,
	}
}

// CheckReadiness returns nil once a cycle has completed.
func (m *Matcher) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("alert matcher has not completed a cycle yet")
	}
	return nil
}

// Run matches immediately and then on every interval until ctx is cancelled.
func (m *Matcher) Run(ctx context.Context) error {
	m.loop.Run(ctx, func(ctx context.Context) {
		if _, err := m.cycle(ctx); err != nil {
			m.logger.Error("alert cycle skipped", "error", err)
		}
	}, func() {
		m.metrics.AlertCycles.WithLabelValues("overlap_skipped").Inc()
	})
	return nil
}

// RunOnce runs one cycle synchronously. A failed event or subscriber load
// is returned as *domain.AlertMatchError; periodic.ErrBusy means a cycle was
// already running.
func (m *Matcher) RunOnce(ctx context.Context) (Report, error) {
	var (
		report Report
		err    error
	)
	if busy := m.loop.TryRun(ctx, func(ctx context.Context) { report, err = m.cycle(ctx) }); busy != nil {
		return Report{}, busy
	}
	return report, err
}

func (m *Matcher) cycle(ctx context.Context) (Report, error) {
	start := m.cfg.Clock.Now()
	defer func() { m.metrics.AlertCycleDuration.Observe(m.cfg.Clock.Since(start).Seconds()) }()

	candidates, err := m.candidates(ctx, start)
	if err != nil {
		m.metrics.AlertCycles.WithLabelValues("failed").Inc()
		return Report{}, &domain.AlertMatchError{Stage: "load events", Err: err}
	}
	m.metrics.AlertCandidates.Set(float64(len(candidates)))

	all, err := m.subscribers.Subscribers(ctx)
	if err != nil {
		m.metrics.AlertCycles.WithLabelValues("failed").Inc()
		return Report{}, &domain.AlertMatchError{Stage: "load subscribers", Err: err}
	}
	subs := make([]Subscriber, 0, len(all))
	for _, s := range all {
		if s.AlertsEnabled {
			subs = append(subs, s)
		}
	}

	report := Report{Candidates: len(candidates), Subscribers: len(subs)}
	if len(candidates) > 0 {
		var published, failed atomic.Int64
		g := new(errgroup.Group)
		g.SetLimit(m.cfg.Concurrency)
		for _, s := range subs {
			g.Go(func() error {
				ok, err := m.notify(ctx, s, candidates)
				switch {
				case err != nil:
					failed.Add(1)
					m.metrics.AlertSubscriberFailures.Inc()
					m.logger.Warn("alert publish failed", "subscriber", s.ID, "region", s.Region, "error", err)
				case ok:
					published.Add(1)
					m.metrics.AlertsPublished.Inc()
				}
				return nil
			})
		}
		_ = g.Wait()
		report.Published = int(published.Load())
		report.Failed = int(failed.Load())
	}

	m.metrics.AlertCycles.WithLabelValues("completed").Inc()
	m.ready.Store(true)
	m.logger.Info("alert cycle complete",
		"candidates", report.Candidates,
		"subscribers", report.Subscribers,
		"published", report.Published,
		"failed", report.Failed,
	)
	return report, nil
}

// candidates loads active events at or above the minimum severity and keeps
// those inside the scope.
func (m *Matcher) candidates(ctx context.Context, now time.Time) ([]domain.Event, error) {
	events, err := m.events.Query(ctx, store.Filter{
		MinSeverity:  m.cfg.MinSeverity,
		UpdatedSince: now.Add(-m.cfg.ActiveWindow),
	})
	if err != nil {
		return nil, err
	}
	out := events[:0:0]
	for _, e := range events {
		if e.ActiveAt(now, m.cfg.ActiveWindow) && m.cfg.Scope.Contains(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// notify publishes the events matching s. It reports whether anything was
// published.
func (m *Matcher) notify(ctx context.Context, s Subscriber, candidates []domain.Event) (bool, error) {
	if s.Region == "" {
		return false, nil
	}
	var summaries []Summary
	for _, e := range candidates {
		if m.cfg.Matcher.Match(e, s) {
			summaries = append(summaries, Summarize(e, s, m.cfg.Country))
		}
	}
	if len(summaries) == 0 {
		return false, nil
	}
	if err := m.publisher.Publish(ctx, RegionKey(m.cfg.Country, s.Region), summaries); err != nil {
		return false, err
	}
	return true, nil
}
