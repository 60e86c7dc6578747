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
)

// ConnectionContext is a scoped acquisition: Enter acquires a connection for
// the execution context and opens its transactional scope, Exit closes the
// scope and always releases the connection.
//
// Prefer Run. With Enter/Exit, call Exit in a defer:
//
//	cc := h.GetConnectionContext()
//	conn, err := cc.Enter(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { err = cc.Exit(ctx, err) }()
//
// A ConnectionContext is not safe for concurrent use.
type ConnectionContext struct {
	handler *Handler
	conn    *Conn
}

// Handler returns the handler the context is bound to.
func (c *ConnectionContext) Handler() *Handler {
	return c.handler
}

// Enter acquires a connection through Handler.GetConnection.
func (c *ConnectionContext) Enter(ctx context.Context) (*Conn, error) {
	if c.conn != nil {
		return nil, programmerError("connection context entered twice")
	}
	conn, err := c.handler.GetConnection(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// Exit ends the transactional scope (commit if bodyErr is nil, rollback
// otherwise) and then releases the connection, even if ending the scope
// failed. bodyErr is returned unchanged unless closing the scope or releasing
// failed, in which case all errors are joined.
func (c *ConnectionContext) Exit(ctx context.Context, bodyErr error) error {
	conn := c.conn
	if conn == nil {
		return errors.Join(bodyErr, programmerError("connection context exited without a successful enter"))
	}
	c.conn = nil

	scopeErr := conn.exitScope(ctx, bodyErr)
	putErr := c.handler.PutConnection(ctx, conn)
	if scopeErr == nil && putErr == nil {
		return bodyErr
	}
	return errors.Join(bodyErr, scopeErr, putErr)
}

// Run acquires a connection, calls fn with it and releases it on every path.
// A panic in fn rolls back, releases, and is re-raised.
func (c *ConnectionContext) Run(ctx context.Context, fn func(ctx context.Context, conn *Conn) error) (err error) {
	conn, err := c.Enter(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = c.Exit(ctx, fmt.Errorf("panic in connection scope: %v", r))
			panic(r)
		}
		err = c.Exit(ctx, err)
	}()

	return fn(ctx, conn)
}
