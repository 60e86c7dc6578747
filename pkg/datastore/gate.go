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
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// gate is the capacity gate: a counting semaphore sized to the maximum
// number of concurrently held connections.
type gate struct {
	sem  *semaphore.Weighted
	size int64
	held atomic.Int64
}

func newGate(size int) (*gate, error) {
	if size <= 0 {
		return nil, fmt.Errorf("capacity gate size must be positive, got %d", size)
	}
	return &gate{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}, nil
}

// Acquire blocks until a slot is free. There is no timeout; only
// cancellation of ctx ends the wait, in which case ctx.Err() is returned and
// no slot is taken.
func (g *gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.held.Add(1)
	return nil
}

// Release frees one slot, waking at most one waiter.
func (g *gate) Release() {
	if g.held.Add(-1) < 0 {
		g.held.Add(1)
		panic("datastore: capacity gate released more often than acquired")
	}
	g.sem.Release(1)
}

// Available returns the number of free slots. The value may be stale under
// concurrent use.
func (g *gate) Available() int {
	return int(g.size - g.held.Load())
}

// Size returns the gate capacity.
func (g *gate) Size() int {
	return int(g.size)
}
