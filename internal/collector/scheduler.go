package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/dedup"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/periodic"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Admitter is the dedup gate. spread is the adapter's lattice step, zero for
// point feeds.
type Admitter interface {
	AdmitWithin(ctx context.Context, e domain.Event, spread float64) (dedup.Outcome, domain.Event, error)
}

// AdapterReport summarizes one adapter's part of a cycle.
type AdapterReport struct {
	Adapter  string
	Fetched  int // drafts plus dropped records
	Dropped  int // malformed records, from the adapter or the normalizer
	Inserted int
	Merged   int
	Skipped  int
	Failed   int // records the store rejected
	Duration time.Duration
	Err      error // whole-adapter failure
}

// Report summarizes one collection cycle.
type Report struct {
	Started  time.Time
	Duration time.Duration
	Adapters []AdapterReport
}

// Failed returns the adapters whose fetch failed.
func (r Report) Failed() []AdapterReport {
	var out []AdapterReport
	for _, a := range r.Adapters {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Inserted is the number of new events stored during the cycle.
func (r Report) Inserted() int {
	n := 0
	for _, a := range r.Adapters {
		n += a.Inserted
	}
	return n
}

// Options are the optional collaborators of a Scheduler.
type Options struct {
	Interval time.Duration // default 15m
	Clock    clockwork.Clock
	Geocoder domain.Geocoder // nil disables address enrichment
}

// Scheduler periodically runs every adapter and ingests what they return.
type Scheduler struct {
	adapters   []Adapter
	normalizer *domain.Normalizer
	gate       Admitter
	geocoder   domain.Geocoder
	clock      clockwork.Clock
	loop       *periodic.Loop
	metrics    *observability.Metrics
	logger     *slog.Logger
	ready      atomic.Bool
}

// New creates a Scheduler.
func New(adapters []Adapter, gate Admitter, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		adapters:   adapters,
		normalizer: domain.NewNormalizer(opts.Clock),
		gate:       gate,
		geocoder:   opts.Geocoder,
		clock:      opts.Clock,
		loop:       periodic.New("collector", opts.Interval, opts.Clock, logger),
		metrics:    metrics,
		logger:     logger,
	}
}

// CheckReadiness returns nil once the first cycle has completed.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("collector has not completed a cycle yet")
	}
	return nil
}

// Run collects immediately and then on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("collector started", "adapters", len(s.adapters))
	s.loop.Run(ctx, func(ctx context.Context) { s.cycle(ctx) }, func() {
		s.metrics.CollectorCycles.WithLabelValues("overlap_skipped").Inc()
	})
	return nil
}

// RunOnce runs a single cycle synchronously. It returns periodic.ErrBusy if
// a cycle is already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	err := s.loop.TryRun(ctx, func(ctx context.Context) { report = s.cycle(ctx) })
	return report, err
}

func (s *Scheduler) cycle(ctx context.Context) Report {
	s.metrics.CollectorRunning.Set(1)
	defer s.metrics.CollectorRunning.Set(0)

	report := Report{Started: s.clock.Now(), Adapters: make([]AdapterReport, len(s.adapters))}

	// Adapters are isolated from each other; nothing they return aborts the group.
	var g errgroup.Group
	for i, a := range s.adapters {
		g.Go(func() error {
			report.Adapters[i] = s.collect(ctx, a)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = s.clock.Since(report.Started)
	for _, ar := range report.Adapters {
		s.logSummary(ar)
	}
	s.logger.Info("collection cycle complete",
		"adapters", len(report.Adapters),
		"failed_adapters", len(report.Failed()),
		"inserted", report.Inserted(),
		"duration", report.Duration,
	)
	s.metrics.CollectorCycles.WithLabelValues("completed").Inc()
	s.metrics.CollectorCycleDuration.Observe(report.Duration.Seconds())
	s.ready.Store(true)
	return report
}

// collect fetches one adapter and pushes each draft through the normalizer,
// address enrichment and the dedup gate.
func (s *Scheduler) collect(ctx context.Context, a Adapter) AdapterReport {
	name := a.Name()
	start := s.clock.Now()
	r := AdapterReport{Adapter: name}
	defer func() {
		r.Duration = s.clock.Since(start)
		s.metrics.AdapterDuration.WithLabelValues(name).Observe(r.Duration.Seconds())
		s.record(r)
	}()

	batch, err := a.Fetch(ctx)
	if err != nil {
		r.Err = err
		s.metrics.AdapterFailures.WithLabelValues(name, failureKind(err)).Inc()
		return r
	}

	spread := spreadOf(a)
	r.Fetched = len(batch.Drafts) + len(batch.Dropped)
	for _, dropErr := range batch.Dropped {
		r.Dropped++
		s.logger.Warn("record dropped", "adapter", name, "error", dropErr)
	}

	for _, d := range batch.Drafts {
		if ctx.Err() != nil {
			break
		}
		e, err := s.normalizer.Normalize(d)
		if err != nil {
			r.Dropped++
			s.logger.Warn("record dropped", "adapter", name, "error", err)
			continue
		}
		e = domain.EnrichAddress(ctx, e, s.geocoder, s.logger)

		outcome, _, err := s.gate.AdmitWithin(ctx, e, spread)
		if err != nil {
			r.Failed++
			s.logger.Error("store event failed", "adapter", name, "type", e.Type, "error", err)
			continue
		}
		switch outcome {
		case dedup.Inserted:
			r.Inserted++
		case dedup.Merged:
			r.Merged++
		case dedup.Skipped:
			r.Skipped++
		}
	}
	return r
}

func (s *Scheduler) record(r AdapterReport) {
	for outcome, n := range map[string]int{
		"fetched":  r.Fetched,
		"dropped":  r.Dropped,
		"inserted": r.Inserted,
		"merged":   r.Merged,
		"skipped":  r.Skipped,
		"failed":   r.Failed,
	} {
		if n > 0 {
			s.metrics.AdapterRecords.WithLabelValues(r.Adapter, outcome).Add(float64(n))
		}
	}
}

func (s *Scheduler) logSummary(r AdapterReport) {
	attrs := []any{
		"adapter", r.Adapter,
		"fetched", r.Fetched,
		"dropped", r.Dropped,
		"inserted", r.Inserted,
		"merged", r.Merged,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"duration", r.Duration,
	}
	if r.Err != nil {
		s.logger.Warn("adapter failed", append(attrs, "error", r.Err)...)
		return
	}
	s.logger.Info("adapter complete", attrs...)
}

func failureKind(err error) string {
	var transient *domain.TransientSourceError
	var malformed *domain.MalformedPayloadError
	switch {
	case errors.As(err, &transient):
		return "transient"
	case errors.As(err, &malformed):
		return "malformed"
	}
	return "other"
}
