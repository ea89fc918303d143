// Package clickhouse persists events in a ClickHouse ReplacingMergeTree table
// keyed by dedup key, with skipping indexes for time, (type, severity) and
// location.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config holds connection settings.
type Config struct {
	Addr        []string
	Database    string
	Username    string
	Password    string
	UseTLS      bool
	DialTimeout time.Duration
}

// Connect opens a ClickHouse connection and verifies it with a ping.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (driver.Conn, error) {
	logger.Info("connecting to clickhouse",
		"addr", cfg.Addr,
		"database", cfg.Database,
		"tls", cfg.UseTLS,
	)

	var tlsConfig *tls.Config
	if cfg.UseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		TLS:              tlsConfig,
		DialTimeout:      dialTimeout,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	logger.Info("clickhouse connection established")
	return conn, nil
}

// schema is versioned by last_updated so a Touch is an insert of a newer row
// and FINAL reads see one row per dedup key.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	dedup_key    String,
	id           String,
	type         LowCardinality(String),
	source       LowCardinality(String),
	severity     UInt8,
	lon          Float64,
	lat          Float64,
	address      String,
	title        String,
	description  String,
	timestamp    DateTime64(3, 'UTC'),
	last_updated DateTime64(3, 'UTC'),
	payload      String,
	INDEX idx_timestamp timestamp TYPE minmax GRANULARITY 4,
	INDEX idx_type_severity (type, severity) TYPE set(128) GRANULARITY 4,
	INDEX idx_location (lon, lat) TYPE minmax GRANULARITY 4
) ENGINE = ReplacingMergeTree(last_updated)
ORDER BY dedup_key
PARTITION BY toYYYYMM(timestamp)
`
