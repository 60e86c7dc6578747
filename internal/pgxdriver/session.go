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
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/datastore"
	"github.com/teradata-labs/datastore/pkg/observability"
)

// ErrPoolClosed is returned by Get once CloseAll has run.
var ErrPoolClosed = errors.New("pgxdriver: pool is closed")

// Opener returns the datastore.OpenFunc for the pgx driver.
func Opener(tracer observability.Tracer) datastore.OpenFunc {
	return func(ctx context.Context, minConns, maxConns int, dsn config.DSN) (datastore.Pool, error) {
		pool, err := NewPool(ctx, minConns, maxConns, dsn, tracer)
		if err != nil {
			return nil, err
		}
		return NewPoolAdapter(pool), nil
	}
}

// Pool adapts a pgxpool.Pool to datastore.Pool. It tracks checked-out
// sessions so CloseAll can close them instead of waiting for their release.
type Pool struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	held   map[*Session]struct{}
	closed bool
}

// NewPoolAdapter wraps an existing pgxpool.Pool.
func NewPoolAdapter(pool *pgxpool.Pool) *Pool {
	return &Pool{pool: pool, held: make(map[*Session]struct{})}
}

// Get acquires a connection from the pgxpool.
func (p *Pool) Get(ctx context.Context) (datastore.Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	sess := &Session{conn: conn, raw: conn.Conn()}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Release()
		return nil, ErrPoolClosed
	}
	p.held[sess] = struct{}{}
	p.mu.Unlock()
	return sess, nil
}

// Put rolls back an open transaction and releases the connection. pgxpool
// destroys connections that are not idle on release, so a failed rollback
// never puts a broken connection back into rotation. Putting a session that
// CloseAll already closed does nothing.
func (p *Pool) Put(ctx context.Context, s datastore.Session) error {
	sess, ok := s.(*Session)
	if !ok {
		return fmt.Errorf("pgxdriver: cannot put session of type %T", s)
	}

	p.mu.Lock()
	_, held := p.held[sess]
	delete(p.held, sess)
	closed := p.closed
	p.mu.Unlock()
	if !held {
		if closed {
			return nil
		}
		return fmt.Errorf("pgxdriver: session already released")
	}

	var err error
	if sess.tx != nil {
		err = sess.Rollback(ctx)
	}
	sess.conn.Release()
	return err
}

// CloseAll closes the pgxpool. Sessions still checked out are taken out of
// the pool and their network connection is closed, so statements in flight
// on them fail and the pool does not wait for their release.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	p.closed = true
	held := make([]*Session, 0, len(p.held))
	for sess := range p.held {
		held = append(held, sess)
	}
	clear(p.held)
	p.mu.Unlock()

	for _, sess := range held {
		raw := sess.conn.Hijack()
		_ = raw.PgConn().Conn().Close()
	}
	p.pool.Close()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// querier is the statement surface shared by *pgxpool.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Session is one pgxpool connection. Statements go through the open
// transaction, if any. raw stays usable (and fails cleanly) after CloseAll
// has hijacked conn.
type Session struct {
	conn *pgxpool.Conn
	raw  *pgx.Conn
	tx   pgx.Tx
}

func (s *Session) querier() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.raw
}

func (s *Session) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.querier().Exec(ctx, query, args...)
	return err
}

// Query returns the pgx rows directly; pgx.Rows satisfies datastore.Rows.
func (s *Session) Query(ctx context.Context, query string, args ...any) (datastore.Rows, error) {
	rows, err := s.querier().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("pgxdriver: transaction already open")
	}
	tx, err := s.raw.Begin(ctx)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit(ctx)
}

func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Rollback(ctx)
}

func (s *Session) InTransaction() bool {
	return s.tx != nil
}
