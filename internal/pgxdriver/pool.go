// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pgxdriver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/observability"
)

const (
	defaultMaxConns          = 25
	defaultMaxConnIdleTime   = 5 * time.Minute
	defaultMaxConnLifetime   = 1 * time.Hour
	defaultHealthCheckPeriod = 30 * time.Second
)

// NewPool creates a pgxpool.Pool holding between minConns and maxConns
// connections. If dsn.URL is set, it takes precedence over the individual
// connection fields.
func NewPool(ctx context.Context, minConns, maxConns int, dsn config.DSN, tracer observability.Tracer) (*pgxpool.Pool, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}

	ctx, span := tracer.StartSpan(ctx, "pgxdriver.new_pool")
	defer tracer.EndSpan(span)

	connString := buildDSN(dsn)
	if connString == "" {
		return nil, fmt.Errorf("postgres configuration requires either url or host+database")
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}

	applyPoolConfig(poolCfg, minConns, maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	span.SetAttribute("pool.max_conns", poolCfg.MaxConns)
	span.SetAttribute("pool.min_conns", poolCfg.MinConns)

	return pool, nil
}

// buildDSN constructs a PostgreSQL connection string from the DSN fields.
// Values are single-quoted per libpq keyword/value format to handle special
// characters (spaces, @, =, etc.) safely. See:
// https://www.postgresql.org/docs/current/libpq-connect.html#LIBPQ-CONNSTRING
func buildDSN(dsn config.DSN) string {
	if dsn.URL != "" {
		return dsn.URL
	}
	if dsn.Host == "" || dsn.Database == "" {
		return ""
	}
	return KeywordDSN(dsn)
}

// KeywordDSN renders dsn in libpq keyword/value form. lib/pq accepts the
// same format.
func KeywordDSN(dsn config.DSN) string {
	port := dsn.Port
	if port == 0 {
		port = 5432
	}

	sslMode := dsn.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	s := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		dsnQuoteValue(dsn.Host), port, dsnQuoteValue(dsn.Database), dsnQuoteValue(sslMode))

	if dsn.User != "" {
		s += fmt.Sprintf(" user=%s", dsnQuoteValue(dsn.User))
	}
	if dsn.Password != "" {
		s += fmt.Sprintf(" password=%s", dsnQuoteValue(dsn.Password))
	}

	return s
}

// dsnQuoteValue quotes a value for use in a libpq keyword/value connection string.
// Within quoted values, single quotes and backslashes are escaped with a
// backslash. All values are quoted, empty ones included.
func dsnQuoteValue(val string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val)
	return "'" + escaped + "'"
}

// applyPoolConfig maps the handler's connection counts to pgxpool.Config.
// A non-positive maxConns falls back to the pgxpool default of this package;
// minConns is clamped to [0, MaxConns].
func applyPoolConfig(poolCfg *pgxpool.Config, minConns, maxConns int) {
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	} else {
		poolCfg.MaxConns = defaultMaxConns
	}

	switch {
	case minConns < 0:
		poolCfg.MinConns = 0
	case int32(minConns) > poolCfg.MaxConns:
		poolCfg.MinConns = poolCfg.MaxConns
	default:
		poolCfg.MinConns = int32(minConns)
	}

	poolCfg.MaxConnIdleTime = defaultMaxConnIdleTime
	poolCfg.MaxConnLifetime = defaultMaxConnLifetime
	poolCfg.HealthCheckPeriod = defaultHealthCheckPeriod
}
