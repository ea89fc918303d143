// Command validate checks the collector's deployment files before rollout:
// the sources file decodes, names known adapters and leaves at least one
// adapter buildable with the credentials in the environment, and the
// subscribers file has unique ids and a region for every enabled subscriber.
//
// Usage:
//
//	go run ./cmd/validate -sources deploy/sources.yaml -subscribers deploy/subscribers.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/feed"
	"github.com/couchcryptid/disaster-alert-service/internal/adapter/subscribers"
	"github.com/couchcryptid/disaster-alert-service/internal/alert"
	"github.com/couchcryptid/disaster-alert-service/internal/grid"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/source"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	sourcesPath := flag.String("sources", "", "path to the sources YAML file (empty uses built-in defaults)")
	subscribersPath := flag.String("subscribers", "", "path to the subscribers YAML file")
	flag.Parse()

	os.Exit(run(os.Stdout, *sourcesPath, *subscribersPath))
}

func run(w io.Writer, sourcesPath, subscribersPath string) int {
	fmt.Fprintln(w, "=== Collector Deployment Validation ===")
	fmt.Fprintln(w)

	phases := []*phase{validateSources(sourcesPath)}
	if subscribersPath != "" {
		phases = append(phases, validateSubscribers(subscribersPath))
	}

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
		for _, n := range p.notes {
			fmt.Fprintf(w, "      %s\n", n)
		}
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  %d. %s\n", i+1, e)
		}
	}

	fmt.Fprintln(w)
	if !allPassed {
		fmt.Fprintln(w, "RESULT: FAIL")
		return 1
	}
	fmt.Fprintln(w, "RESULT: PASS")
	return 0
}

func validateSources(path string) *phase {
	p := &phase{name: "Sources file"}

	f, err := source.Load(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	known := source.Names()
	for name := range f.Sources {
		if !slices.Contains(known, name) {
			p.errorf("unknown source %q (known: %s)", name, strings.Join(known, ", "))
		}
	}

	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapters, err := source.Build(f, source.Deps{
		Client:  feed.NewClient(feed.DefaultConfig(), metrics, logger),
		Lattice: grid.DefaultLattice(),
		Sampler: grid.NewSampler(1, logger),
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	p.notef("%d of %d adapters enabled: %s", len(adapters), len(known), strings.Join(names, ", "))
	return p
}

func validateSubscribers(path string) *phase {
	p := &phase{name: "Subscribers file"}

	subs, err := subscribers.NewFile(path).Subscribers(context.Background())
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	seen := make(map[string]bool, len(subs))
	regions := make(map[string]bool)
	enabled := 0
	for _, s := range subs {
		if seen[s.ID] {
			p.errorf("duplicate subscriber id %q", s.ID)
		}
		seen[s.ID] = true
		if !s.AlertsEnabled {
			continue
		}
		enabled++
		if strings.TrimSpace(s.Region) == "" {
			p.errorf("subscriber %q has alerts enabled but no region", s.ID)
			continue
		}
		regions[alert.RegionKey("", s.Region)] = true
	}
	p.notef("%d subscribers, %d with alerts enabled, %d distinct regions", len(subs), enabled, len(regions))
	return p
}
