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
	"database/sql"
	"errors"
	"strings"

	"github.com/teradata-labs/datastore/pkg/datastore"
)

// Session is one dedicated database/sql connection. Statements go through the
// open transaction, if any.
type Session struct {
	conn *sql.Conn
	tx   *sql.Tx
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Session) target() execQuerier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

func (s *Session) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.target().ExecContext(ctx, query, args...)
	return err
}

func (s *Session) Query(ctx context.Context, query string, args ...any) (datastore.Rows, error) {
	rows, err := s.target().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newRows(rows)
}

// Begin opens a transaction. Its lifetime is bound to Commit and Rollback,
// not to ctx.
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("sqlpool: transaction already open")
	}
	tx, err := s.conn.BeginTx(context.WithoutCancel(ctx), nil)
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
	return tx.Commit()
}

func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *Session) InTransaction() bool {
	return s.tx != nil
}

// Rows adapts *sql.Rows to datastore.Rows. Text columns reported as []byte
// by the driver are returned as strings; binary columns stay []byte.
type Rows struct {
	rows   *sql.Rows
	binary []bool
	dest   []any
	err    error
}

func newRows(rows *sql.Rows) (*Rows, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	binary := make([]bool, len(types))
	for i, ct := range types {
		binary[i] = isBinaryType(ct.DatabaseTypeName())
	}
	return &Rows{rows: rows, binary: binary, dest: make([]any, len(types))}, nil
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY") || name == "BYTEA"
}

func (r *Rows) Next() bool {
	return r.rows.Next()
}

func (r *Rows) Values() ([]any, error) {
	values := make([]any, len(r.dest))
	for i := range values {
		r.dest[i] = &values[i]
	}
	if err := r.rows.Scan(r.dest...); err != nil {
		return nil, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok && !r.binary[i] {
			values[i] = string(b)
		}
	}
	return values, nil
}

func (r *Rows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *Rows) Close() {
	r.err = r.rows.Close()
}
