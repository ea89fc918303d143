// Package dedup suppresses repeated observations of the same physical event.
//
// Two observations collide when they share a type, coordinates rounded to
// Precision decimal places and a Timestamp bucket of width Bucket. Feeds that
// stamp events at collection time would otherwise produce a fresh key on
// every poll, so the bucket is normally the collection interval.
//
// Lattice feeds see one physical event from several neighbouring cells, so
// AdmitWithin also folds an observation into a stored event of the same type
// and bucket that lies within a spread of degrees on both axes.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/google/uuid"
)

// Policy decides what happens to a duplicate.
type Policy string

const (
	// PolicyMerge refreshes LastUpdated of the stored event.
	PolicyMerge Policy = "merge"
	// PolicySkip leaves the stored event untouched.
	PolicySkip Policy = "skip"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyMerge, PolicySkip:
		return p, nil
	}
	return "", fmt.Errorf("unknown dedup policy %q", s)
}

// Outcome reports what Admit did with a candidate.
type Outcome int

const (
	Inserted Outcome = iota
	Merged
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Config controls key derivation and duplicate handling.
type Config struct {
	Precision int           // decimal places kept from each coordinate
	Bucket    time.Duration // Timestamp bucket width; zero keys on the exact timestamp
	Policy    Policy
}

// DefaultConfig rounds to two decimals (~1 km) and buckets by the default
// 15 minute collection interval.
func DefaultConfig() Config {
	return Config{Precision: 2, Bucket: 15 * time.Minute, Policy: PolicyMerge}
}

// Key derives the dedup key for an observation. The result is the type
// followed by the first 8 bytes of a SHA-256 over the rounded fields.
func Key(t domain.Type, p domain.GeoPoint, ts time.Time, precision int, bucket time.Duration) string {
	start := bucketStart(ts, bucket)
	input := fmt.Sprintf("%s|%s|%s|%s", t,
		roundCoord(p.Lon, precision), roundCoord(p.Lat, precision), start.Format(time.RFC3339Nano))
	hash := sha256.Sum256([]byte(input))
	return string(t) + "-" + hex.EncodeToString(hash[:8])
}

func bucketStart(ts time.Time, bucket time.Duration) time.Time {
	start := ts.UTC()
	if bucket > 0 {
		start = start.Truncate(bucket)
	}
	return start
}

func roundCoord(v float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	scale := math.Pow10(precision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', precision, 64)
}

const (
	lockStripes = 64
	spreadSlack = 1e-9
)

// Store is the backend a Gate writes through. Query finds neighbours for
// AdmitWithin.
type Store interface {
	store.Writer
	Query(ctx context.Context, f store.Filter) ([]domain.Event, error)
}

// Gate admits normalized events into the store at most once per dedup key.
// Concurrent Admit calls for the same key serialize on a striped lock, and
// the store's InsertIfAbsent closes the remaining window across processes.
type Gate struct {
	store Store
	cfg   Config
	locks [lockStripes]sync.Mutex
}

// NewGate creates a Gate writing to s.
func NewGate(s Store, cfg Config) *Gate {
	if cfg.Policy == "" {
		cfg.Policy = PolicyMerge
	}
	return &Gate{store: s, cfg: cfg}
}

func (g *Gate) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck // fnv never fails
	return &g.locks[h.Sum32()%lockStripes]
}

// Admit stamps e with its dedup key and stores it unless a colliding event
// exists, in which case the configured policy applies. The returned event is
// the stored version. Store failures are returned as *domain.PersistenceError.
func (g *Gate) Admit(ctx context.Context, e domain.Event) (Outcome, domain.Event, error) {
	key := Key(e.Type, e.Location, e.Timestamp, g.cfg.Precision, g.cfg.Bucket)
	e.DedupKey = key

	mu := g.lockFor(key)
	mu.Lock()
	defer mu.Unlock()
	return g.admitLocked(ctx, e)
}

// AdmitWithin is Admit for observations sampled on a lattice of step spread
// degrees. A stored event of the same type and bucket within spread of e on
// both axes is treated as a duplicate; the nearest one wins. Calls for one
// type and bucket serialize so adjacent cells cannot both insert. A spread of
// zero or less is plain Admit.
func (g *Gate) AdmitWithin(ctx context.Context, e domain.Event, spread float64) (Outcome, domain.Event, error) {
	if !(spread > 0) {
		return g.Admit(ctx, e)
	}
	e.DedupKey = Key(e.Type, e.Location, e.Timestamp, g.cfg.Precision, g.cfg.Bucket)
	start := bucketStart(e.Timestamp, g.cfg.Bucket)

	mu := g.lockFor(string(e.Type) + "|" + start.Format(time.RFC3339Nano))
	mu.Lock()
	defer mu.Unlock()

	neighbour, found, err := g.nearest(ctx, e, start, spread)
	if err != nil {
		return Skipped, domain.Event{}, &domain.PersistenceError{Op: "find", Key: e.DedupKey, Err: err}
	}
	if found {
		return g.duplicate(ctx, neighbour, e)
	}
	return g.admitLocked(ctx, e)
}

// nearest returns the stored event of e's type in the bucket starting at
// start that lies closest to e within spread degrees on both axes.
func (g *Gate) nearest(ctx context.Context, e domain.Event, start time.Time, spread float64) (domain.Event, bool, error) {
	until := start
	if g.cfg.Bucket > 0 {
		until = start.Add(g.cfg.Bucket - time.Nanosecond)
	}
	candidates, err := g.store.Query(ctx, store.Filter{Types: []domain.Type{e.Type}, Since: start, Until: until})
	if err != nil {
		return domain.Event{}, false, err
	}

	var (
		best  domain.Event
		found bool
		gap   = spread + spreadSlack
	)
	for _, c := range candidates {
		if d := cellGap(c.Location, e.Location); d <= gap {
			best, found, gap = c, true, d
		}
	}
	return best, found, nil
}

// cellGap is the larger of the latitude and longitude separations in
// degrees, with longitude measured the short way round the antimeridian.
func cellGap(a, b domain.GeoPoint) float64 {
	dlon := math.Mod(math.Abs(a.Lon-b.Lon), 360)
	dlon = math.Min(dlon, 360-dlon)
	return math.Max(dlon, math.Abs(a.Lat-b.Lat))
}

func (g *Gate) admitLocked(ctx context.Context, e domain.Event) (Outcome, domain.Event, error) {
	key := e.DedupKey
	existing, err := g.store.FindByDedupKey(ctx, key)
	switch {
	case err == nil:
		return g.duplicate(ctx, existing, e)
	case !errors.Is(err, store.ErrNotFound):
		return Skipped, domain.Event{}, &domain.PersistenceError{Op: "find", Key: key, Err: err}
	}

	e.ID = uuid.NewString()
	inserted, existing, err := g.store.InsertIfAbsent(ctx, e)
	if err != nil {
		return Skipped, domain.Event{}, &domain.PersistenceError{Op: "insert", Key: key, Err: err}
	}
	if !inserted {
		return g.duplicate(ctx, existing, e)
	}
	return Inserted, existing, nil
}

func (g *Gate) duplicate(ctx context.Context, existing, candidate domain.Event) (Outcome, domain.Event, error) {
	if g.cfg.Policy == PolicySkip {
		return Skipped, existing, nil
	}
	updated, err := g.store.Touch(ctx, existing.DedupKey, candidate.LastUpdated)
	if err != nil {
		return Skipped, existing, &domain.PersistenceError{Op: "touch", Key: existing.DedupKey, Err: err}
	}
	return Merged, updated, nil
}
