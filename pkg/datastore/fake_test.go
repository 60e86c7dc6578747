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
package datastore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/observability"
)

// fakeSession is an in-memory Session that records what it was asked to do.
type fakeSession struct {
	id int

	mu        sync.Mutex
	inTx      bool
	begins    int
	commits   int
	rollbacks int
	execs     []string
	queries   []string
	queryArgs [][]any
	results   map[string][]Row
	execErr   error
	queryErr  error
	commitErr error
}

func (s *fakeSession) Exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, query)
	return s.execErr
}

func (s *fakeSession) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.queryArgs = append(s.queryArgs, args)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return &fakeRows{rows: s.results[query]}, nil
}

func (s *fakeSession) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inTx {
		return errors.New("transaction already open")
	}
	s.inTx = true
	s.begins++
	return nil
}

func (s *fakeSession) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTx = false
	s.commits++
	return s.commitErr
}

func (s *fakeSession) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTx = false
	s.rollbacks++
	return nil
}

func (s *fakeSession) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx
}

func (s *fakeSession) counts() (begins, commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins, s.commits, s.rollbacks
}

type fakeRows struct {
	rows []Row
	idx  int
	cur  Row
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.cur = r.rows[r.idx]
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.cur, nil }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

// fakePool reuses released sessions LIFO, like the native pools.
type fakePool struct {
	mu       sync.Mutex
	idle     []*fakeSession
	created  []*fakeSession
	gets     int
	puts     int
	closeAll int
	getErr   error
	putErr   error
	results  map[string][]Row
	minConns int
	maxConns int
}

func (p *fakePool) Get(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.getErr != nil {
		return nil, p.getErr
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return s, nil
	}
	s := &fakeSession{id: len(p.created) + 1, results: p.results}
	p.created = append(p.created, s)
	return s, nil
}

func (p *fakePool) Put(ctx context.Context, s Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.puts++
	fs := s.(*fakeSession)
	if fs.InTransaction() {
		_ = fs.Rollback(ctx)
	}
	if p.putErr != nil {
		return p.putErr
	}
	p.idle = append(p.idle, fs)
	return nil
}

func (p *fakePool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeAll++
}

func (p *fakePool) stats() (gets, puts, closeAll int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets, p.puts, p.closeAll
}

func (p *fakePool) open() OpenFunc {
	return func(ctx context.Context, minConns, maxConns int, dsn config.DSN) (Pool, error) {
		p.minConns, p.maxConns = minConns, maxConns
		return p, nil
	}
}

func testDatabaseConfig(maxConns int) config.Database {
	return config.Database{
		Driver:         "fake",
		MinConnections: 0,
		MaxConnections: maxConns,
	}
}

func newTestHandler(t *testing.T, maxConns int) (*Handler, *fakePool, *observability.MockTracer) {
	t.Helper()
	pool := &fakePool{results: map[string][]Row{}}
	tracer := observability.NewMockTracer()
	h, err := NewHandler(context.Background(), testDatabaseConfig(maxConns), pool.open(),
		WithLogger(zap.NewNop()), WithTracer(tracer))
	require.NoError(t, err)
	t.Cleanup(h.Shutdown)
	return h, pool, tracer
}

func sessionOf(t *testing.T, conn *Conn) *fakeSession {
	t.Helper()
	fs, ok := conn.Session().(*fakeSession)
	require.True(t, ok)
	return fs
}
