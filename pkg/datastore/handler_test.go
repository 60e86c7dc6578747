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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/observability"
)

func TestNewHandler_OpenError(t *testing.T) {
	driverErr := errors.New("connection refused")
	open := func(ctx context.Context, minConns, maxConns int, dsn config.DSN) (Pool, error) {
		return nil, driverErr
	}

	_, err := NewHandler(context.Background(), testDatabaseConfig(2), open, WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, driverErr)
	assert.NotErrorIs(t, err, ErrProgrammer)

	var dbErr *DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "open pool", dbErr.Op)
}

func TestNewHandler_InvalidConfig(t *testing.T) {
	pool := &fakePool{}
	_, err := NewHandler(context.Background(), testDatabaseConfig(0), pool.open(), WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_connections")

	_, err = NewHandler(context.Background(), testDatabaseConfig(1), nil)
	require.Error(t, err)
}

func TestNewHandler_ForwardsPoolSizes(t *testing.T) {
	pool := &fakePool{}
	cfg := testDatabaseConfig(4)
	cfg.MinConnections = 2
	h, err := NewHandler(context.Background(), cfg, pool.open(), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer h.Shutdown()

	assert.Equal(t, 2, pool.minConns)
	assert.Equal(t, 4, pool.maxConns)
	assert.Equal(t, Stats{MaxConnections: 4, AvailableSlots: 4}, h.Stats())
}

func TestGetConnection(t *testing.T) {
	h, pool, tracer := newTestHandler(t, 2)
	ctx := WithExecutionContext(context.Background())

	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)
	require.NotNil(t, conn)

	assert.False(t, conn.Autocommit(), "pooled connections default to autocommit; the handler must turn it off")
	gets, _, _ := pool.stats()
	assert.Equal(t, 1, gets)
	assert.Equal(t, 1, h.Stats().AvailableSlots)
	assert.Equal(t, 1, h.Stats().HeldConnections)

	current, ok := h.CurrentConnection(ctx)
	require.True(t, ok)
	assert.Same(t, conn, current)

	span := tracer.GetSpanByName("datastore.get_connection")
	require.NotNil(t, span)
	id, _ := ExecutionContextID(ctx)
	assert.Equal(t, id, span.Attributes["datastore.execution_id"])
	assert.NotEmpty(t, tracer.GetMetrics("datastore.gate.available"))

	require.NoError(t, h.PutConnection(ctx, conn))
}

func TestGetConnection_RequiresExecutionContext(t *testing.T) {
	h, pool, _ := newTestHandler(t, 1)

	_, err := h.GetConnection(context.Background())
	assert.ErrorIs(t, err, ErrProgrammer)
	gets, _, _ := pool.stats()
	assert.Zero(t, gets)
}

func TestGetConnection_TwiceInSameContext(t *testing.T) {
	h, pool, _ := newTestHandler(t, 2)
	ctx := WithExecutionContext(context.Background())

	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)

	_, err = h.GetConnection(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProgrammer)
	assert.NotErrorIs(t, err, ErrDatabase)

	gets, _, _ := pool.stats()
	assert.Equal(t, 1, gets, "the second call must not reach the pool")
	assert.Equal(t, 1, h.Stats().AvailableSlots, "the second call must not take a slot")

	// Nested code sees the same connection through a derived context.
	type key struct{}
	nested := context.WithValue(ctx, key{}, "nested")
	current, ok := h.CurrentConnection(nested)
	require.True(t, ok)
	assert.Same(t, conn, current)

	require.NoError(t, h.PutConnection(ctx, conn))

	// After the release the same context may acquire again.
	conn, err = h.GetConnection(ctx)
	require.NoError(t, err)
	require.NoError(t, h.PutConnection(ctx, conn))
}

func TestGetConnection_PoolErrorReturnsSlot(t *testing.T) {
	h, pool, _ := newTestHandler(t, 1)
	pool.getErr = errors.New("too many clients")
	ctx := WithExecutionContext(context.Background())

	_, err := h.GetConnection(ctx)
	assert.ErrorIs(t, err, ErrDatabase)
	assert.Equal(t, 1, h.Stats().AvailableSlots)
	assert.Zero(t, h.Stats().HeldConnections)

	pool.mu.Lock()
	pool.getErr = nil
	pool.mu.Unlock()

	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)
	require.NoError(t, h.PutConnection(ctx, conn))
}

func TestGetConnection_DistinctContexts(t *testing.T) {
	h, _, _ := newTestHandler(t, 2)

	type result struct {
		ctx  context.Context
		conn *Conn
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			ctx := WithExecutionContext(context.Background())
			conn, err := h.GetConnection(ctx)
			assert.NoError(t, err)
			results <- result{ctx: ctx, conn: conn}
		}()
	}

	var got []result
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatal("acquisition blocked although capacity was available")
		}
	}

	require.NotNil(t, got[0].conn)
	require.NotNil(t, got[1].conn)
	assert.NotSame(t, got[0].conn, got[1].conn)
	assert.NotSame(t, got[0].conn.Session(), got[1].conn.Session())
	assert.Zero(t, h.Stats().AvailableSlots)

	for _, r := range got {
		require.NoError(t, h.PutConnection(r.ctx, r.conn))
	}
}

func TestGetConnection_BlocksAtCapacity(t *testing.T) {
	h, _, _ := newTestHandler(t, 1)

	ctxA := WithExecutionContext(context.Background())
	connA, err := h.GetConnection(ctxA)
	require.NoError(t, err)
	sessionA := connA.Session()

	ctxB := WithExecutionContext(context.Background())
	done := make(chan *Conn, 1)
	go func() {
		conn, err := h.GetConnection(ctxB)
		assert.NoError(t, err)
		done <- conn
	}()

	select {
	case <-done:
		t.Fatal("second context acquired a connection beyond capacity")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, h.PutConnection(ctxA, connA))

	select {
	case connB := <-done:
		require.NotNil(t, connB)
		assert.Same(t, sessionA, connB.Session(), "B should get the session A released")
		assert.False(t, connB.Autocommit())
		require.NoError(t, h.PutConnection(ctxB, connB))
	case <-time.After(2 * time.Second):
		t.Fatal("blocked acquisition did not proceed after release")
	}
}

func TestGetConnection_ReleaseWakesExactlyOneWaiter(t *testing.T) {
	h, _, _ := newTestHandler(t, 1)

	ctxA := WithExecutionContext(context.Background())
	connA, err := h.GetConnection(ctxA)
	require.NoError(t, err)

	type acquired struct {
		ctx  context.Context
		conn *Conn
	}
	done := make(chan acquired, 2)
	for i := 0; i < 2; i++ {
		ctx := WithExecutionContext(context.Background())
		go func() {
			conn, err := h.GetConnection(ctx)
			assert.NoError(t, err)
			done <- acquired{ctx: ctx, conn: conn}
		}()
	}

	select {
	case <-done:
		t.Fatal("waiter acquired a connection beyond capacity")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, h.PutConnection(ctxA, connA))

	var first acquired
	select {
	case first = <-done:
		require.NotNil(t, first.conn)
	case <-time.After(2 * time.Second):
		t.Fatal("no waiter proceeded after release")
	}

	select {
	case <-done:
		t.Fatal("one release woke two waiters")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Zero(t, h.Stats().AvailableSlots)
	assert.Equal(t, 1, h.Stats().HeldConnections)

	require.NoError(t, h.PutConnection(first.ctx, first.conn))

	select {
	case second := <-done:
		require.NotNil(t, second.conn)
		require.NoError(t, h.PutConnection(second.ctx, second.conn))
	case <-time.After(2 * time.Second):
		t.Fatal("second waiter did not proceed after the second release")
	}
	assert.Equal(t, 1, h.Stats().AvailableSlots)
}

func TestGetConnection_CancelWhileBlocked(t *testing.T) {
	h, _, _ := newTestHandler(t, 1)

	ctxA := WithExecutionContext(context.Background())
	connA, err := h.GetConnection(ctxA)
	require.NoError(t, err)

	ctxB, cancel := context.WithCancel(WithExecutionContext(context.Background()))
	errs := make(chan error, 1)
	go func() {
		_, err := h.GetConnection(ctxB)
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrDatabase)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled acquisition did not return")
	}

	assert.Zero(t, h.Stats().AvailableSlots)
	require.NoError(t, h.PutConnection(ctxA, connA))
	assert.Equal(t, 1, h.Stats().AvailableSlots)
}

func TestPutConnection(t *testing.T) {
	h, pool, _ := newTestHandler(t, 1)
	ctx := WithExecutionContext(context.Background())

	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)
	require.NoError(t, h.PutConnection(ctx, conn))

	_, puts, _ := pool.stats()
	assert.Equal(t, 1, puts)
	assert.Equal(t, 1, h.Stats().AvailableSlots)
	_, held := h.CurrentConnection(ctx)
	assert.False(t, held)
}

func TestPutConnection_InvalidConnection(t *testing.T) {
	h, pool, _ := newTestHandler(t, 2)
	ctx := WithExecutionContext(context.Background())

	t.Run("context holds nothing", func(t *testing.T) {
		err := h.PutConnection(ctx, newConn(&fakeSession{}))
		assert.ErrorIs(t, err, ErrProgrammer)
		assert.Equal(t, 2, h.Stats().AvailableSlots)
	})

	t.Run("nil connection", func(t *testing.T) {
		assert.ErrorIs(t, h.PutConnection(ctx, nil), ErrProgrammer)
	})

	t.Run("no execution context", func(t *testing.T) {
		assert.ErrorIs(t, h.PutConnection(context.Background(), newConn(&fakeSession{})), ErrProgrammer)
	})

	t.Run("foreign connection", func(t *testing.T) {
		conn, err := h.GetConnection(ctx)
		require.NoError(t, err)
		defer func() { require.NoError(t, h.PutConnection(ctx, conn)) }()

		err = h.PutConnection(ctx, newConn(&fakeSession{}))
		assert.ErrorIs(t, err, ErrProgrammer)
		assert.Equal(t, 1, h.Stats().AvailableSlots, "a rejected release must not touch the gate")
		_, puts, _ := pool.stats()
		assert.Zero(t, puts)
	})

	t.Run("connection of another context", func(t *testing.T) {
		conn, err := h.GetConnection(ctx)
		require.NoError(t, err)
		defer func() { require.NoError(t, h.PutConnection(ctx, conn)) }()

		other := WithExecutionContext(context.Background())
		assert.ErrorIs(t, h.PutConnection(other, conn), ErrProgrammer)
		assert.Equal(t, 1, h.Stats().AvailableSlots)
	})
}

func TestPutConnection_PoolErrorStillFreesSlot(t *testing.T) {
	h, pool, _ := newTestHandler(t, 1)
	ctx := WithExecutionContext(context.Background())

	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)

	pool.mu.Lock()
	pool.putErr = errors.New("server closed the connection")
	pool.mu.Unlock()

	err = h.PutConnection(ctx, conn)
	assert.ErrorIs(t, err, ErrDatabase)
	assert.Equal(t, 1, h.Stats().AvailableSlots)
	_, held := h.CurrentConnection(ctx)
	assert.False(t, held)
}

func TestPutConnection_RollsBackOpenTransaction(t *testing.T) {
	h, _, _ := newTestHandler(t, 1)
	ctx := WithExecutionContext(context.Background())

	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Exec(ctx, "UPDATE models SET deleted = true"))
	fs := sessionOf(t, conn)
	assert.True(t, fs.InTransaction())

	require.NoError(t, h.PutConnection(ctx, conn))
	begins, commits, rollbacks := fs.counts()
	assert.Equal(t, 1, begins)
	assert.Zero(t, commits)
	assert.Equal(t, 1, rollbacks)
}

func TestPutConnection_CancelledContext(t *testing.T) {
	h, _, _ := newTestHandler(t, 1)
	ctx, cancel := context.WithCancel(WithExecutionContext(context.Background()))

	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)
	cancel()

	require.NoError(t, h.PutConnection(ctx, conn))
	assert.Equal(t, 1, h.Stats().AvailableSlots)
}

func TestHandler_CapacityNeverExceeded(t *testing.T) {
	const size = 3
	h, _, _ := newTestHandler(t, size)

	var (
		wg      sync.WaitGroup
		current atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := WithExecutionContext(context.Background())
			for j := 0; j < 25; j++ {
				conn, err := h.GetConnection(ctx)
				if !assert.NoError(t, err) {
					return
				}
				n := current.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				current.Add(-1)
				assert.NoError(t, h.PutConnection(ctx, conn))
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(size))
	assert.Equal(t, size, h.Stats().AvailableSlots)
	assert.Zero(t, h.Stats().HeldConnections)
}

func TestShutdown(t *testing.T) {
	pool := &fakePool{}
	h, err := NewHandler(context.Background(), testDatabaseConfig(1), pool.open(), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	h.Shutdown()
	h.Shutdown()

	_, _, closeAll := pool.stats()
	assert.Equal(t, 1, closeAll, "physical connections are closed exactly once")

	_, err = h.GetConnection(WithExecutionContext(context.Background()))
	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, ErrHandlerClosed)
}

// shutdownWithin runs h.Shutdown and fails the test if it does not return.
func shutdownWithin(t *testing.T, h *Handler, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("Shutdown did not return")
	}
}

func TestShutdown_WithHeldConnection(t *testing.T) {
	h, pool, _ := newTestHandler(t, 2)

	ctx := WithExecutionContext(context.Background())
	conn, err := h.GetConnection(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Exec(ctx, "INSERT INTO t VALUES (1)"))

	shutdownWithin(t, h, 2*time.Second)

	gets, puts, closeAll := pool.stats()
	assert.Equal(t, 1, gets)
	assert.Zero(t, puts, "held sessions are closed by the pool, not put back")
	assert.Equal(t, 1, closeAll)

	err = conn.Exec(ctx, "INSERT INTO t VALUES (2)")
	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, ErrHandlerClosed)
	assert.ErrorIs(t, conn.Commit(ctx), ErrHandlerClosed)

	assert.NoError(t, h.PutConnection(ctx, conn), "putting a closed connection does nothing")
	_, puts, _ = pool.stats()
	assert.Zero(t, puts)

	stats := h.Stats()
	assert.Equal(t, 2, stats.AvailableSlots)
	assert.Zero(t, stats.HeldConnections)
}

func TestShutdown_WakesBlockedCallers(t *testing.T) {
	h, _, _ := newTestHandler(t, 1)

	ctxA := WithExecutionContext(context.Background())
	_, err := h.GetConnection(ctxA)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := h.GetConnection(WithExecutionContext(context.Background()))
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)

	shutdownWithin(t, h, 2*time.Second)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrHandlerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked caller was not woken by Shutdown")
	}
	assert.Equal(t, 1, h.Stats().AvailableSlots)
}

func TestShutdown_InsideScope(t *testing.T) {
	h, _, _ := newTestHandler(t, 1)
	ctx := WithExecutionContext(context.Background())

	err := h.GetConnectionContext().Run(ctx, func(ctx context.Context, conn *Conn) error {
		require.NoError(t, conn.Exec(ctx, "SELECT 1"))
		shutdownWithin(t, h, 2*time.Second)
		return nil
	})
	assert.ErrorIs(t, err, ErrHandlerClosed)
	assert.Equal(t, 1, h.Stats().AvailableSlots)
}

func TestHandler_SpansReachEmbeddedTracer(t *testing.T) {
	pool := &fakePool{results: map[string][]Row{"SELECT 1": {{int64(1)}}}}
	tracer := observability.NewEmbeddedTracer(nil)
	h, err := NewHandler(context.Background(), testDatabaseConfig(2), pool.open(),
		WithLogger(zap.NewNop()), WithTracer(tracer))
	require.NoError(t, err)
	defer h.Shutdown()

	v, err := h.QuerySingleValue(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	assert.Len(t, tracer.SpansByName("datastore.new_handler"), 1)
	assert.Len(t, tracer.SpansByName("datastore.get_connection"), 1)
	assert.Len(t, tracer.SpansByName("datastore.put_connection"), 1)

	queries := tracer.SpansByName("datastore.query_single_value")
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT 1", queries[0].Attributes[observability.AttrStatement])

	available, ok := tracer.Metric("datastore.gate.available")
	require.True(t, ok)
	assert.Equal(t, 2.0, available)
}
