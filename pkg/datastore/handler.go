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
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teradata-labs/datastore/internal/log"
	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/observability"
)

// ErrHandlerClosed is wrapped in the DatabaseError returned by GetConnection
// after Shutdown.
var ErrHandlerClosed = errors.New("connection handler is shut down")

// Handler hands out pooled connections, at most one per execution context,
// and never more than the configured maximum at once.
//
// Thread-safe: All methods can be called concurrently from distinct
// execution contexts.
type Handler struct {
	pool   Pool
	gate   *gate
	store  *affinityStore
	logger *zap.Logger
	tracer observability.Tracer

	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger. Defaults to the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTracer sets the handler tracer. Defaults to a no-op tracer.
func WithTracer(t observability.Tracer) Option {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

// Stats is a snapshot of handler state.
type Stats struct {
	MaxConnections  int
	AvailableSlots  int
	HeldConnections int
}

// NewHandler opens the native pool through open and sizes the capacity gate
// to cfg.MaxConnections. Driver failures are returned as *DatabaseError.
func NewHandler(ctx context.Context, cfg config.Database, open OpenFunc, opts ...Option) (*Handler, error) {
	h := &Handler{
		store:  newAffinityStore(),
		logger: log.Logger(),
		tracer: observability.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(h)
	}

	ctx, span := h.tracer.StartSpan(ctx, "datastore.new_handler")
	defer h.tracer.EndSpan(span)

	if open == nil {
		return nil, fmt.Errorf("no pool opener given")
	}
	if err := cfg.Validate(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	g, err := newGate(cfg.MaxConnections)
	if err != nil {
		return nil, err
	}
	h.gate = g

	dsn := cfg.DSN
	if dsn.Password, err = dsn.ResolvePassword(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to resolve database password: %w", err)
	}

	pool, err := open(ctx, cfg.MinConnections, cfg.MaxConnections, dsn)
	if err != nil {
		span.RecordError(err)
		return nil, databaseError("open pool", err)
	}
	h.pool = pool

	span.SetAttribute("pool.max_conns", cfg.MaxConnections)
	span.SetAttribute("pool.min_conns", cfg.MinConnections)
	h.logger.Info("connection handler started",
		zap.String("driver", cfg.Driver),
		zap.String("host", dsn.Host),
		zap.String("database", dsn.Database),
		zap.Int("min_connections", cfg.MinConnections),
		zap.Int("max_connections", cfg.MaxConnections))

	return h, nil
}

// GetConnection acquires a connection for the execution context of ctx.
//
// If the execution context already holds a connection, a ProgrammerError is
// returned. Otherwise the call blocks until the capacity gate has a free slot;
// there is no timeout, only cancellation of ctx ends the wait (ctx.Err() is
// returned unchanged). The connection is returned with autocommit off.
func (h *Handler) GetConnection(ctx context.Context) (*Conn, error) {
	id, ok := ExecutionContextID(ctx)
	if !ok {
		return nil, programmerError("GetConnection requires an execution context (see WithExecutionContext)")
	}

	ctx, span := h.tracer.StartSpan(ctx, "datastore.get_connection",
		observability.WithAttribute(observability.AttrExecutionID, id))
	defer h.tracer.EndSpan(span)

	if _, held := h.store.current(id); held {
		err := programmerError("execution context %s already holds a connection; release it before acquiring another", id)
		span.RecordError(err)
		h.logger.Error("nested connection acquisition", zap.String("execution_id", id))
		return nil, err
	}
	if h.closed.Load() {
		return nil, databaseError("get connection", ErrHandlerClosed)
	}

	if err := h.gate.Acquire(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if h.closed.Load() {
		h.gate.Release()
		return nil, databaseError("get connection", ErrHandlerClosed)
	}

	session, err := h.pool.Get(ctx)
	if err != nil {
		h.gate.Release()
		span.RecordError(err)
		h.logger.Warn("failed to get connection from pool", zap.Error(err))
		return nil, databaseError("get connection", err)
	}

	conn := newConn(session)
	conn.autocommit = false

	if err := h.store.bind(id, conn); err != nil {
		// Same execution context used from two goroutines at once.
		_ = h.pool.Put(context.WithoutCancel(ctx), session)
		h.gate.Release()
		span.RecordError(err)
		return nil, err
	}
	if h.closed.Load() {
		// Shutdown ran while this call was acquiring; the drain may have
		// missed the binding.
		if h.store.unbind(id, conn) == nil {
			_ = h.pool.Put(context.WithoutCancel(ctx), session)
			h.gate.Release()
		}
		return nil, databaseError("get connection", ErrHandlerClosed)
	}

	h.recordGate()
	h.logger.Debug("connection acquired",
		zap.String("execution_id", id),
		zap.Int("available_slots", h.gate.Available()))
	return conn, nil
}

// PutConnection releases conn, which must be the connection held by the
// execution context of ctx; anything else is a ProgrammerError and leaves the
// gate untouched. The capacity slot is freed even if returning the session
// to the native pool fails. Putting a connection that Shutdown already
// closed does nothing.
func (h *Handler) PutConnection(ctx context.Context, conn *Conn) error {
	id, ok := ExecutionContextID(ctx)
	if !ok {
		return programmerError("PutConnection requires an execution context (see WithExecutionContext)")
	}

	ctx, span := h.tracer.StartSpan(ctx, "datastore.put_connection",
		observability.WithAttribute(observability.AttrExecutionID, id))
	defer h.tracer.EndSpan(span)

	if err := h.store.unbind(id, conn); err != nil {
		if conn != nil && conn.closed.Load() {
			return nil
		}
		span.RecordError(err)
		h.logger.Error("invalid connection release", zap.String("execution_id", id), zap.Error(err))
		return err
	}

	defer func() {
		h.gate.Release()
		h.recordGate()
	}()

	if err := h.pool.Put(context.WithoutCancel(ctx), conn.session); err != nil {
		span.RecordError(err)
		h.logger.Warn("failed to return connection to pool", zap.String("execution_id", id), zap.Error(err))
		return databaseError("put connection", err)
	}

	h.logger.Debug("connection released", zap.String("execution_id", id))
	return nil
}

// CurrentConnection returns the connection held by the execution context of
// ctx, if any.
func (h *Handler) CurrentConnection(ctx context.Context) (*Conn, bool) {
	id, ok := ExecutionContextID(ctx)
	if !ok {
		return nil, false
	}
	return h.store.current(id)
}

// GetConnectionContext returns a scoped acquisition bound to h.
func (h *Handler) GetConnectionContext() *ConnectionContext {
	return &ConnectionContext{handler: h}
}

// Stats returns a snapshot of the gate and affinity store.
func (h *Handler) Stats() Stats {
	return Stats{
		MaxConnections:  h.gate.Size(),
		AvailableSlots:  h.gate.Available(),
		HeldConnections: h.store.len(),
	}
}

// Shutdown closes all physical connections, including those still held.
// Held connections are taken from their execution contexts: statements on
// them fail with ErrHandlerClosed and putting them back does nothing. Callers
// blocked on the capacity gate return ErrHandlerClosed. The pool is closed
// once; later calls do nothing.
func (h *Handler) Shutdown() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		held := 0
		h.store.drain(func(id string, conn *Conn) {
			conn.closed.Store(true)
			held++
		})
		for i := 0; i < held; i++ {
			h.gate.Release()
		}
		h.pool.CloseAll()
		if err := h.tracer.Flush(context.Background()); err != nil {
			h.logger.Warn("failed to flush tracer", zap.Error(err))
		}
		h.logger.Info("connection handler shut down", zap.Int("held_connections", held))
	})
}

func (h *Handler) recordGate() {
	h.tracer.RecordMetric("datastore.gate.available", float64(h.gate.Available()), nil)
}
