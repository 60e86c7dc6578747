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
	"github.com/teradata-labs/datastore/internal/csync"
)

// affinityStore maps execution contexts to the connection they hold.
// Each execution context holds at most one connection.
type affinityStore struct {
	held *csync.Map[string, *Conn]
}

func newAffinityStore() *affinityStore {
	return &affinityStore{held: csync.NewMap[string, *Conn]()}
}

func (s *affinityStore) current(id string) (*Conn, bool) {
	return s.held.Get(id)
}

// bind records conn for id; it fails if id already holds a connection.
func (s *affinityStore) bind(id string, conn *Conn) error {
	if _, stored := s.held.SetIfAbsent(id, conn); !stored {
		return programmerError("execution context %s already holds a connection", id)
	}
	return nil
}

// unbind removes the entry for id if it is conn; it fails otherwise,
// including when id holds nothing.
func (s *affinityStore) unbind(id string, conn *Conn) error {
	if conn == nil {
		return programmerError("cannot release a nil connection")
	}
	if !s.held.CompareAndDelete(id, func(held *Conn) bool { return held == conn }) {
		if _, ok := s.held.Get(id); !ok {
			return programmerError("execution context %s holds no connection to release", id)
		}
		return programmerError("connection does not belong to execution context %s", id)
	}
	return nil
}

func (s *affinityStore) len() int {
	return s.held.Len()
}

// drain removes every entry, calling fn for each held connection while no
// bind or unbind can run.
func (s *affinityStore) drain(fn func(id string, conn *Conn)) {
	s.held.Drain(fn)
}
