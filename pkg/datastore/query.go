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

	"github.com/jackc/pgx/v5"

	"github.com/teradata-labs/datastore/pkg/observability"
)

// withConnection runs fn on the connection held by the execution context of
// ctx. When none is held, fn runs inside a one-shot ConnectionContext, binding
// a fresh execution context if ctx has none; that scope commits on success.
func (h *Handler) withConnection(ctx context.Context, fn func(context.Context, *Conn) error) error {
	if conn, held := h.CurrentConnection(ctx); held {
		return fn(ctx, conn)
	}
	ctx, _ = ensureExecutionContext(ctx)
	return h.GetConnectionContext().Run(ctx, fn)
}

func (h *Handler) startQuerySpan(ctx context.Context, name, stmt string) (context.Context, *observability.Span) {
	return h.tracer.StartSpan(ctx, name,
		observability.WithSpanKind("db"),
		observability.WithAttribute(observability.AttrStatement, stmt))
}

// Execute runs a statement and discards its result. It does not commit;
// the open transaction of a held connection stays open.
//
// sqlParams are identifiers substituted into {} placeholders (see Compose).
func (h *Handler) Execute(ctx context.Context, query string, args []any, sqlParams ...pgx.Identifier) error {
	stmt, err := Compose(query, sqlParams...)
	if err != nil {
		return err
	}

	ctx, span := h.startQuerySpan(ctx, "datastore.execute", stmt)
	defer h.tracer.EndSpan(span)

	err = h.withConnection(ctx, func(ctx context.Context, conn *Conn) error {
		return conn.Exec(ctx, stmt, args...)
	})
	span.RecordError(err)
	return err
}

// Query runs a statement and returns all rows.
func (h *Handler) Query(ctx context.Context, query string, args []any, sqlParams ...pgx.Identifier) ([]Row, error) {
	stmt, err := Compose(query, sqlParams...)
	if err != nil {
		return nil, err
	}

	ctx, span := h.startQuerySpan(ctx, "datastore.query", stmt)
	defer h.tracer.EndSpan(span)

	var rows []Row
	err = h.withConnection(ctx, func(ctx context.Context, conn *Conn) error {
		var qerr error
		rows, qerr = conn.Query(ctx, stmt, args...)
		return qerr
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute(observability.AttrRowCount, len(rows))
	return rows, nil
}

// QuerySingleValue returns the first column of the first row, or nil when the
// statement returned no rows. Further columns and rows are ignored.
func (h *Handler) QuerySingleValue(ctx context.Context, query string, args []any, sqlParams ...pgx.Identifier) (any, error) {
	stmt, err := Compose(query, sqlParams...)
	if err != nil {
		return nil, err
	}

	ctx, span := h.startQuerySpan(ctx, "datastore.query_single_value", stmt)
	defer h.tracer.EndSpan(span)

	var row Row
	err = h.withConnection(ctx, func(ctx context.Context, conn *Conn) error {
		var qerr error
		row, qerr = conn.QueryRow(ctx, stmt, args...)
		return qerr
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(row) == 0 {
		return nil, nil
	}
	return row[0], nil
}

// QueryListOfSingleValues runs Query and returns the first column of every
// row. sqlParams are passed to Query unchanged.
func (h *Handler) QueryListOfSingleValues(ctx context.Context, query string, args []any, sqlParams ...pgx.Identifier) ([]any, error) {
	rows, err := h.Query(ctx, query, args, sqlParams...)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			values = append(values, nil)
			continue
		}
		values = append(values, row[0])
	}
	return values, nil
}

// ToJSON wraps value for binding to a JSON column. See NewJSON.
func (h *Handler) ToJSON(value any) (JSON, error) {
	return NewJSON(value)
}
