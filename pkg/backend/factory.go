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
// Package backend selects the pool adapter named by database.driver and
// composes it with the connection handler.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/datastore/internal/pgxdriver"
	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/datastore"
	"github.com/teradata-labs/datastore/pkg/observability"
	"github.com/teradata-labs/datastore/pkg/sqlpool"
)

// DriverPgx is the native PostgreSQL driver and the default.
const DriverPgx = "pgx"

// Drivers lists the supported values of database.driver.
func Drivers() []string {
	return []string{DriverPgx, sqlpool.DriverPostgres, sqlpool.DriverMySQL, sqlpool.DriverSQLite}
}

// NewOpenFunc returns the pool opener for driver. An empty driver defaults to
// pgx.
func NewOpenFunc(driver string, tracer observability.Tracer) (datastore.OpenFunc, error) {
	switch driver {
	case "", DriverPgx:
		return pgxdriver.Opener(tracer), nil

	case sqlpool.DriverPostgres, sqlpool.DriverMySQL, sqlpool.DriverSQLite:
		return sqlpool.Opener(driver, tracer)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: %v)", driver, Drivers())
	}
}

// NewHandler creates a connection handler for cfg. A nil tracer or logger
// falls back to the handler defaults.
func NewHandler(ctx context.Context, cfg config.Database, tracer observability.Tracer, logger *zap.Logger) (*datastore.Handler, error) {
	open, err := NewOpenFunc(cfg.Driver, tracer)
	if err != nil {
		return nil, err
	}
	return datastore.NewHandler(ctx, cfg, open,
		datastore.WithTracer(tracer),
		datastore.WithLogger(logger))
}
