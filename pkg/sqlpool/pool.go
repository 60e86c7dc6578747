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
// Package sqlpool adapts a database/sql connection pool to the datastore Pool
// and Session interfaces for the postgres (lib/pq), mysql and sqlite drivers.
package sqlpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres
	"go.uber.org/zap"

	"github.com/teradata-labs/datastore/internal/log"
	"github.com/teradata-labs/datastore/internal/pgxdriver"
	"github.com/teradata-labs/datastore/internal/sqlitedriver"
	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/datastore"
	"github.com/teradata-labs/datastore/pkg/observability"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

const (
	defaultMySQLPort = 3306
	connMaxIdleTime  = 5 * time.Minute
	connMaxLifetime  = 1 * time.Hour
)

// Opener returns the datastore.OpenFunc for driver.
func Opener(driver string, tracer observability.Tracer) (datastore.OpenFunc, error) {
	switch driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database/sql driver: %s (supported: postgres, mysql, sqlite)", driver)
	}
	return func(ctx context.Context, minConns, maxConns int, dsn config.DSN) (datastore.Pool, error) {
		return Open(ctx, driver, minConns, maxConns, dsn, tracer)
	}, nil
}

// Open opens a database/sql pool for driver, limits it to maxConns open
// connections and warms minConns of them.
func Open(ctx context.Context, driver string, minConns, maxConns int, dsn config.DSN, tracer observability.Tracer) (*Pool, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}

	ctx, span := tracer.StartSpan(ctx, "sqlpool.open",
		observability.WithAttribute("db.system", driver))
	defer tracer.EndSpan(span)

	driverName, source, err := dataSource(driver, dsn)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	db, err := sql.Open(driverName, source)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := warm(ctx, db, minConns); err != nil {
		_ = db.Close()
		span.RecordError(err)
		return nil, err
	}

	span.SetAttribute("pool.max_conns", maxConns)
	span.SetAttribute("pool.min_conns", minConns)
	if driver == DriverSQLite {
		span.SetAttribute("sqlite.encryption_supported", sqlitedriver.EncryptionSupported)
	}
	log.Debug("database/sql pool opened",
		zap.String("driver", driver),
		zap.Int("min_connections", minConns),
		zap.Int("max_connections", maxConns))

	return &Pool{db: db, driver: driver}, nil
}

// warm opens n connections so that they sit idle in the pool.
func warm(ctx context.Context, db *sql.DB, n int) error {
	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		c, err := db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to open minimum connections: %w", err)
		}
		conns = append(conns, c)
	}
	return nil
}

// dataSource maps driver and dsn to a registered database/sql driver name and
// its data source string. A non-empty dsn.URL is passed through unchanged.
func dataSource(driver string, dsn config.DSN) (string, string, error) {
	switch driver {
	case DriverPostgres:
		if dsn.URL != "" {
			return "postgres", dsn.URL, nil
		}
		if dsn.Host == "" || dsn.Database == "" {
			return "", "", fmt.Errorf("postgres configuration requires either url or host+database")
		}
		return "postgres", pgxdriver.KeywordDSN(dsn), nil

	case DriverMySQL:
		if dsn.URL != "" {
			return "mysql", dsn.URL, nil
		}
		if dsn.Host == "" || dsn.Database == "" {
			return "", "", fmt.Errorf("mysql configuration requires either url or host+database")
		}
		port := dsn.Port
		if port == 0 {
			port = defaultMySQLPort
		}
		cfg := mysql.NewConfig()
		cfg.User = dsn.User
		cfg.Passwd = dsn.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(dsn.Host, strconv.Itoa(port))
		cfg.DBName = dsn.Database
		cfg.ParseTime = true
		return "mysql", cfg.FormatDSN(), nil

	case DriverSQLite:
		if dsn.URL != "" {
			return sqlitedriver.DriverName, dsn.URL, nil
		}
		path := dsn.Database
		if path == "" {
			return "", "", fmt.Errorf("sqlite configuration requires a database path")
		}
		if sqlitedriver.IsMemory(path) {
			// Every connection of the pool must see the same in-memory database.
			path = "file:datastore-" + uuid.NewString() + "?mode=memory&cache=shared"
		}
		return sqlitedriver.DriverName, sqlitedriver.FileDSN(path), nil

	default:
		return "", "", fmt.Errorf("unsupported database/sql driver: %s", driver)
	}
}

// Pool adapts *sql.DB to datastore.Pool.
type Pool struct {
	db     *sql.DB
	driver string
}

// DB returns the underlying database handle.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Get checks a dedicated connection out of the pool.
func (p *Pool) Get(ctx context.Context) (datastore.Session, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// Put rolls back an open transaction and returns the connection to the pool.
func (p *Pool) Put(ctx context.Context, s datastore.Session) error {
	sess, ok := s.(*Session)
	if !ok {
		return fmt.Errorf("sqlpool: cannot put session of type %T", s)
	}
	if sess.conn == nil {
		return fmt.Errorf("sqlpool: session already released")
	}

	rollbackErr := sess.Rollback(ctx)
	closeErr := sess.conn.Close()
	sess.conn = nil
	return errors.Join(rollbackErr, closeErr)
}

// CloseAll closes the database handle and all of its connections.
func (p *Pool) CloseAll() {
	if err := p.db.Close(); err != nil {
		log.Warn("failed to close database/sql pool", zap.String("driver", p.driver), zap.Error(err))
	}
}
