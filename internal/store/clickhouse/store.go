package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
)

const columns = "dedup_key, id, type, source, severity, lon, lat, address, title, description, timestamp, last_updated, payload"

// Store implements store.Store on ClickHouse.
//
// ClickHouse has no unique constraint, so InsertIfAbsent checks then inserts.
// Within one process the dedup gate's per-key lock serializes that sequence;
// across processes the ReplacingMergeTree collapses rows sharing a dedup key.
type Store struct {
	conn     driver.Conn
	activity store.Activity
	logger   *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection.
func New(conn driver.Conn, activity store.Activity, logger *slog.Logger) *Store {
	return &Store{conn: conn, activity: activity, logger: logger}
}

// InitSchema creates the events table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	s.logger.Info("clickhouse schema initialized")
	return nil
}

func (s *Store) FindByDedupKey(ctx context.Context, key string) (domain.Event, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT "+columns+" FROM events FINAL WHERE dedup_key = ? LIMIT 1", key)
	if err != nil {
		return domain.Event{}, fmt.Errorf("find %s: %w", key, err)
	}
	events, err := s.scanEvents(rows)
	if err != nil {
		return domain.Event{}, err
	}
	if len(events) == 0 {
		return domain.Event{}, store.ErrNotFound
	}
	return events[0], nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, e domain.Event) (bool, domain.Event, error) {
	if e.DedupKey == "" {
		return false, domain.Event{}, fmt.Errorf("insert %s event: empty dedup key", e.Type)
	}
	existing, err := s.FindByDedupKey(ctx, e.DedupKey)
	switch {
	case err == nil:
		return false, existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, domain.Event{}, err
	}
	if err := s.insert(ctx, e); err != nil {
		return false, domain.Event{}, err
	}
	return true, s.activity.Mark(e), nil
}

func (s *Store) Touch(ctx context.Context, key string, at time.Time) (domain.Event, error) {
	e, err := s.FindByDedupKey(ctx, key)
	if err != nil {
		return domain.Event{}, err
	}
	if !at.After(e.LastUpdated) {
		return e, nil
	}
	e.LastUpdated = at
	if err := s.insert(ctx, e); err != nil {
		return domain.Event{}, err
	}
	return s.activity.Mark(e), nil
}

func (s *Store) insert(ctx context.Context, e domain.Event) error {
	payload, err := domain.MarshalPayload(e.Payload)
	if err != nil {
		return err
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO events ("+columns+")")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	if err := batch.Append(
		e.DedupKey,
		e.ID,
		string(e.Type),
		string(e.Source),
		uint8(e.Severity),
		e.Location.Lon,
		e.Location.Lat,
		e.Location.Address,
		e.Title,
		e.Description,
		e.Timestamp,
		e.LastUpdated,
		string(payload),
	); err != nil {
		return fmt.Errorf("append event %s: %w", e.DedupKey, err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send insert: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, f store.Filter) ([]domain.Event, error) {
	where, args := whereClause(f)
	q := "SELECT " + columns + " FROM events FINAL" + where + " ORDER BY timestamp DESC, id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return s.scanEvents(rows)
}

func (s *Store) Near(ctx context.Context, center domain.GeoPoint, radiusMeters float64, f store.Filter) ([]store.Hit, error) {
	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("near: %w", err)
	}
	if radiusMeters < 0 {
		return nil, fmt.Errorf("near: negative radius %v", radiusMeters)
	}

	box := domain.BoxAround(center, radiusMeters)
	where, args := whereClause(f)
	where = appendCondition(where, "lon BETWEEN ? AND ? AND lat BETWEEN ? AND ? AND distance <= ?")
	args = append(args, box.MinLon, box.MaxLon, box.MinLat, box.MaxLat, radiusMeters)

	// Positional arguments bind in textual order: the distance origin comes first.
	q := "SELECT " + columns + ", toFloat64(greatCircleDistance(lon, lat, ?, ?)) AS distance FROM events FINAL" +
		where + " ORDER BY distance, timestamp DESC"
	args = append([]any{center.Lon, center.Lat}, args...)
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("near query: %w", err)
	}
	defer s.closeRows(rows)

	var hits []store.Hit
	for rows.Next() {
		var (
			r        row
			distance float64
		)
		if err := rows.Scan(append(r.targets(), &distance)...); err != nil {
			return nil, fmt.Errorf("scan near row: %w", err)
		}
		e, err := r.event()
		if err != nil {
			return nil, err
		}
		hits = append(hits, store.Hit{Event: s.activity.Mark(e), DistanceMeters: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate near rows: %w", err)
	}
	return hits, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *Store) Close() error {
	s.logger.Info("closing clickhouse connection")
	return s.conn.Close()
}

// CheckReadiness reports whether ClickHouse answers a ping.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.Ping(ctx)
}

type row struct {
	dedupKey, id, typ, source string
	severity                  uint8
	lon, lat                  float64
	address, title, desc      string
	timestamp, lastUpdated    time.Time
	payload                   string
}

func (r *row) targets() []any {
	return []any{
		&r.dedupKey, &r.id, &r.typ, &r.source, &r.severity, &r.lon, &r.lat,
		&r.address, &r.title, &r.desc, &r.timestamp, &r.lastUpdated, &r.payload,
	}
}

func (r *row) event() (domain.Event, error) {
	payload, err := domain.UnmarshalPayload([]byte(r.payload))
	if err != nil {
		return domain.Event{}, fmt.Errorf("decode payload of %s: %w", r.dedupKey, err)
	}
	return domain.Event{
		ID:          r.id,
		DedupKey:    r.dedupKey,
		Type:        domain.Type(r.typ),
		Source:      domain.Source(r.source),
		Severity:    domain.Severity(r.severity),
		Location:    domain.GeoPoint{Lon: r.lon, Lat: r.lat, Address: r.address},
		Title:       r.title,
		Description: r.desc,
		Timestamp:   r.timestamp.UTC(),
		LastUpdated: r.lastUpdated.UTC(),
		Payload:     payload,
	}, nil
}

func (s *Store) scanEvents(rows driver.Rows) ([]domain.Event, error) {
	defer s.closeRows(rows)

	var events []domain.Event
	for rows.Next() {
		var r row
		if err := rows.Scan(r.targets()...); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e, err := r.event()
		if err != nil {
			return nil, err
		}
		events = append(events, s.activity.Mark(e))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func (s *Store) closeRows(rows driver.Rows) {
	if err := rows.Close(); err != nil {
		s.logger.Error("failed to close rows", "error", err)
	}
}

// whereClause renders f as a WHERE clause with positional arguments.
func whereClause(f store.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Types) > 0 {
		conds = append(conds, "type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if len(f.Severities) > 0 {
		conds = append(conds, "severity IN ("+placeholders(len(f.Severities))+")")
		for _, s := range f.Severities {
			args = append(args, uint8(s))
		}
	}
	if f.MinSeverity != 0 {
		conds = append(conds, "severity >= ?")
		args = append(args, uint8(f.MinSeverity))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.Until)
	}
	if !f.UpdatedSince.IsZero() {
		conds = append(conds, "last_updated >= ?")
		args = append(args, f.UpdatedSince)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func appendCondition(where, cond string) string {
	if where == "" {
		return " WHERE " + cond
	}
	return where + " AND " + cond
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
