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
package sqlpool

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/datastore/internal/sqlitedriver"
	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/datastore"
	"github.com/teradata-labs/datastore/pkg/observability"
)

func sqliteConfig(path string, maxConns int) config.Database {
	return config.Database{
		Driver:         DriverSQLite,
		MinConnections: 1,
		MaxConnections: maxConns,
		DSN:            config.DSN{Database: path},
	}
}

func newSQLiteHandler(t *testing.T, maxConns int) *datastore.Handler {
	t.Helper()
	open, err := Opener(DriverSQLite, observability.NewNoOpTracer())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "datastore.db")
	h, err := datastore.NewHandler(context.Background(), sqliteConfig(path, maxConns), open,
		datastore.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(h.Shutdown)

	require.NoError(t, h.Execute(context.Background(),
		"CREATE TABLE models (id INTEGER PRIMARY KEY, fqid TEXT NOT NULL, data TEXT, raw BLOB)", nil))
	return h
}

func TestOpener_UnsupportedDriver(t *testing.T) {
	_, err := Opener("oracle", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestDataSource(t *testing.T) {
	t.Run("postgres keyword form", func(t *testing.T) {
		name, source, err := dataSource(DriverPostgres, config.DSN{
			Host: "db", Port: 5433, Database: "openslides", User: "openslides", Password: "pw", SSLMode: "disable",
		})
		require.NoError(t, err)
		assert.Equal(t, "postgres", name)
		assert.Contains(t, source, "host='db'")
		assert.Contains(t, source, "port=5433")
		assert.Contains(t, source, "password='pw'")
	})

	t.Run("mysql", func(t *testing.T) {
		name, source, err := dataSource(DriverMySQL, config.DSN{
			Host: "db", Database: "openslides", User: "u", Password: "p",
		})
		require.NoError(t, err)
		assert.Equal(t, "mysql", name)
		assert.Contains(t, source, "u:p@tcp(db:3306)/openslides")
		assert.Contains(t, source, "parseTime=true")
	})

	t.Run("url passes through", func(t *testing.T) {
		for _, driver := range []string{DriverPostgres, DriverMySQL, DriverSQLite} {
			_, source, err := dataSource(driver, config.DSN{URL: "verbatim"})
			require.NoError(t, err)
			assert.Equal(t, "verbatim", source, driver)
		}
	})

	t.Run("sqlite file", func(t *testing.T) {
		name, source, err := dataSource(DriverSQLite, config.DSN{Database: "/tmp/x.db"})
		require.NoError(t, err)
		assert.Equal(t, sqlitedriver.DriverName, name)
		assert.Contains(t, source, "file:/tmp/x.db?")
	})

	t.Run("sqlite memory is shared", func(t *testing.T) {
		_, source, err := dataSource(DriverSQLite, config.DSN{Database: ":memory:"})
		require.NoError(t, err)
		assert.Contains(t, source, "mode=memory&cache=shared")
	})

	t.Run("incomplete", func(t *testing.T) {
		_, _, err := dataSource(DriverPostgres, config.DSN{Host: "db"})
		assert.Error(t, err)
		_, _, err = dataSource(DriverMySQL, config.DSN{Database: "x"})
		assert.Error(t, err)
		_, _, err = dataSource(DriverSQLite, config.DSN{})
		assert.Error(t, err)
		_, _, err = dataSource("oracle", config.DSN{})
		assert.Error(t, err)
	})
}

func TestOpen_WarmsMinimumConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warm.db")
	p, err := Open(context.Background(), DriverSQLite, 2, 4, config.DSN{Database: path}, nil)
	require.NoError(t, err)
	defer p.CloseAll()

	stats := p.DB().Stats()
	assert.Equal(t, 4, stats.MaxOpenConnections)
	assert.Equal(t, 2, stats.Idle)
}

func TestSQLite_ScopeCommitAndRollback(t *testing.T) {
	h := newSQLiteHandler(t, 2)
	ctx := datastore.WithExecutionContext(context.Background())

	err := h.GetConnectionContext().Run(ctx, func(ctx context.Context, conn *datastore.Conn) error {
		return conn.Exec(ctx, "INSERT INTO models (id, fqid) VALUES (?, ?)", 1, "motion/1")
	})
	require.NoError(t, err)

	err = h.GetConnectionContext().Run(ctx, func(ctx context.Context, conn *datastore.Conn) error {
		require.NoError(t, conn.Exec(ctx, "INSERT INTO models (id, fqid) VALUES (?, ?)", 2, "motion/2"))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	ids, err := h.QueryListOfSingleValues(ctx, "SELECT id FROM models ORDER BY id", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1)}, ids)
}

func TestSQLite_PutRollsBackUnfinishedTransaction(t *testing.T) {
	h := newSQLiteHandler(t, 1)
	ctx := datastore.WithExecutionContext(context.Background())

	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Exec(ctx, "INSERT INTO models (id, fqid) VALUES (1, 'user/1')"))
	assert.True(t, conn.Session().InTransaction())
	require.NoError(t, h.PutConnection(ctx, conn))

	count, err := h.QuerySingleValue(ctx, "SELECT count(*) FROM models", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSQLite_ValuesAndJSON(t *testing.T) {
	h := newSQLiteHandler(t, 1)
	ctx := context.Background()

	payload, err := h.ToJSON(map[string]any{"title": "Änderung", "weight": 2})
	require.NoError(t, err)
	require.NoError(t, h.Execute(ctx, "INSERT INTO models (id, fqid, data, raw) VALUES (?, ?, ?, ?)",
		[]any{1, "motion/1", payload, []byte{0x01, 0x02}}))

	rows, err := h.Query(ctx, "SELECT fqid, data, raw FROM models WHERE id = ?", []any{1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "motion/1", rows[0][0])
	assert.Equal(t, `{"title": "\u00c4nderung", "weight": 2}`, rows[0][1])
	assert.Equal(t, []byte{0x01, 0x02}, rows[0][2])

	missing, err := h.QuerySingleValue(ctx, "SELECT fqid FROM models WHERE id = ?", []any{42})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_ConcurrentContexts(t *testing.T) {
	h := newSQLiteHandler(t, 3)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, h.Execute(context.Background(),
				"INSERT INTO models (id, fqid) VALUES (?, ?)", []any{id, "topic/x"}))
		}(i + 1)
	}
	wg.Wait()

	count, err := h.QuerySingleValue(context.Background(), "SELECT count(*) FROM models", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
	assert.Equal(t, 3, h.Stats().AvailableSlots)
}

func TestPool_PutErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "put.db")
	p, err := Open(context.Background(), DriverSQLite, 0, 1, config.DSN{Database: path}, nil)
	require.NoError(t, err)
	defer p.CloseAll()

	ctx := context.Background()
	s, err := p.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Put(ctx, s))
	assert.Error(t, p.Put(ctx, s), "double put")

	var foreign datastore.Session = &foreignSession{}
	assert.Error(t, p.Put(ctx, foreign))
}

type foreignSession struct{ datastore.Session }
