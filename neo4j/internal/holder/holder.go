/*
 * Copyright (c) "Neo4j"
 * Neo4j Sweden AB [https://neo4j.com]
 *
 * This file is part of Neo4j.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 *  Unless required by applicable law or agreed to in writing, software
 *  distributed under the License is distributed on an "AS IS" BASIS,
 *  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  See the License for the specific language governing permissions and
 *  limitations under the License.
 */

// Package holder implements spec.md §3/§4.8's Connection Holder: the
// reference-counted borrow discipline that binds a pooled, routed
// connection to a session or transaction's lifetime.
package holder

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// Provider is the slice of the routing connection provider a Holder
// needs: acquire on the 0->1 transition, release on the N->0 one.
type Provider interface {
	Acquire(ctx context.Context, mode db.AccessMode, database string, bookmarks []string, boltLogger log.BoltLogger) (db.Connection, error)
	Release(ctx context.Context, conn db.Connection) error
}

// Holder is spec.md §3/§4.8's Connection Holder: a reference-counted
// borrow wrapper binding one pooled connection to a session or
// transaction's lifetime. Multiple overlapping units of work sharing a
// session (e.g. a transaction function retried while the caller still
// holds a reference to the session) can initialize/release the same
// holder without each triggering its own acquire/return.
type Holder struct {
	mode      db.AccessMode
	database  string
	bookmarks []string
	provider  Provider

	mut     sync.Mutex
	refCount int
	conn     db.Connection
	err      error
}

func New(mode db.AccessMode, database string, bookmarks []string, provider Provider) *Holder {
	return &Holder{mode: mode, database: database, bookmarks: bookmarks, provider: provider}
}

// Initialize increments the reference count; on the 0->1 transition
// it acquires a connection. A failed acquisition is recorded and
// handed back to every caller (this one and any later one) until the
// next Close or the Release that brings the count back to zero, per
// spec.md §4.8 ("get_connection... failures surface
// through the observer that consumed it").
func (h *Holder) Initialize(ctx context.Context, boltLogger log.BoltLogger) error {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.refCount++
	if h.refCount > 1 {
		return h.err
	}

	conn, err := h.provider.Acquire(ctx, h.mode, h.database, h.bookmarks, boltLogger)
	h.conn = conn
	h.err = err
	return err
}

// Connection returns the current pending-or-resolved connection, or
// nil if Initialize has not been called or failed.
func (h *Holder) Connection() db.Connection {
	h.mut.Lock()
	defer h.mut.Unlock()
	return h.conn
}

// Release decrements the reference count; on the N->0 transition the
// connection is reset and returned to its pool. Releasing at ref_count
// 0 is a no-op, per spec.md §4.8.
func (h *Holder) Release(ctx context.Context) error {
	h.mut.Lock()
	defer h.mut.Unlock()
	if h.refCount == 0 {
		return nil
	}
	h.refCount--
	if h.refCount > 0 {
		return nil
	}
	return h.releaseLocked(ctx)
}

// Close forces the reference count to zero regardless of outstanding
// borrows and releases the connection; further Initialize calls start
// a fresh borrow cycle.
func (h *Holder) Close(ctx context.Context) error {
	h.mut.Lock()
	defer h.mut.Unlock()
	if h.refCount == 0 {
		return nil
	}
	h.refCount = 0
	return h.releaseLocked(ctx)
}

func (h *Holder) releaseLocked(ctx context.Context) error {
	conn := h.conn
	h.conn = nil
	h.err = nil
	if conn == nil {
		return nil
	}
	conn.Reset(ctx)
	return h.provider.Release(ctx, conn)
}

// RefCount reports the current reference count, exposed for tests
// verifying spec.md §8 invariant 7.
func (h *Holder) RefCount() int {
	h.mut.Lock()
	defer h.mut.Unlock()
	return h.refCount
}
