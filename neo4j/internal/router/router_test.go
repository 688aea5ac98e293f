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

package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/pool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

func noLookup(ctx context.Context, host string) ([]string, error) {
	return nil, errors.New("no network access in tests")
}

// fakeRoutingConn is a db.Connection whose Run/Next replies with a
// single canned routing-discovery record, or fails if failWith is set.
type fakeRoutingConn struct {
	version  db.ProtocolVersion
	record   *db.Record
	failWith error
	served   bool
	listener func(error)
}

func (c *fakeRoutingConn) ServerName() string          { return "fake" }
func (c *fakeRoutingConn) ServerVersion() string        { return "fake/1.0" }
func (c *fakeRoutingConn) Version() db.ProtocolVersion { return c.version }
func (c *fakeRoutingConn) Run(context.Context, db.Command, db.TxConfig) (db.StreamHandle, error) {
	if c.failWith != nil {
		return nil, c.failWith
	}
	return "stream", nil
}
func (c *fakeRoutingConn) TxBegin(context.Context, db.TxConfig) (db.TxHandle, error) { return nil, nil }
func (c *fakeRoutingConn) TxCommit(context.Context, db.TxHandle) error              { return nil }
func (c *fakeRoutingConn) TxRollback(context.Context, db.TxHandle) error            { return nil }
func (c *fakeRoutingConn) Next(context.Context, db.StreamHandle) (*db.Record, *db.Summary, error) {
	if c.served {
		return nil, &db.Summary{}, nil
	}
	c.served = true
	return c.record, nil, nil
}
func (c *fakeRoutingConn) Bookmark() string               { return "" }
func (c *fakeRoutingConn) Reset(context.Context)           {}
func (c *fakeRoutingConn) Close(context.Context) error     { return nil }
func (c *fakeRoutingConn) IsAlive() bool                   { return true }
func (c *fakeRoutingConn) SetBoltLogger(db.BoltLoggerSink) {}
func (c *fakeRoutingConn) SetErrorListener(l func(error))  { c.listener = l }

func routingRecord(ttl int64, routers, readers, writers []string) *db.Record {
	toEntry := func(role string, addrs []string) map[string]interface{} {
		list := make([]interface{}, len(addrs))
		for i, a := range addrs {
			list[i] = a
		}
		return map[string]interface{}{"role": role, "addresses": list}
	}
	servers := []interface{}{}
	if len(routers) > 0 {
		servers = append(servers, toEntry("ROUTE", routers))
	}
	if len(readers) > 0 {
		servers = append(servers, toEntry("READ", readers))
	}
	if len(writers) > 0 {
		servers = append(servers, toEntry("WRITE", writers))
	}
	return &db.Record{
		Keys:   []string{"ttl", "servers"},
		Values: []interface{}{ttl, servers},
	}
}

// fakeBorrower stands in for *pool.Pool: every BorrowOne returns the
// same conn (a router-discovery fake), regardless of address.
type fakeBorrower struct {
	mut        sync.Mutex
	conn       db.Connection
	borrowErr  error
	kept       db.AddressSet
	purged     []db.Address
	returned   int
}

func (b *fakeBorrower) BorrowOne(ctx context.Context, addr db.Address, wait bool, boltLogger log.BoltLogger, livenessCheckThreshold time.Duration) (db.Connection, error) {
	if b.borrowErr != nil {
		return nil, b.borrowErr
	}
	return b.conn, nil
}
func (b *fakeBorrower) Return(ctx context.Context, conn db.Connection) error {
	b.mut.Lock()
	defer b.mut.Unlock()
	b.returned++
	return nil
}
func (b *fakeBorrower) KeepAll(ctx context.Context, keep db.AddressSet) error {
	b.kept = keep
	return nil
}
func (b *fakeBorrower) CleanUp(ctx context.Context) error { return nil }
func (b *fakeBorrower) Purge(ctx context.Context, addr db.Address) error {
	b.purged = append(b.purged, addr)
	return nil
}

type fixedStrategy struct{ addr db.Address }

func (s fixedStrategy) Select(candidates db.AddressSet) db.Address {
	if len(candidates) == 0 {
		return db.Address{}
	}
	return s.addr
}

func newTestProvider(conn db.Connection, strategy Strategy) (*ConnectionProvider, *fakeBorrower) {
	b := &fakeBorrower{conn: conn}
	p := New(Config{
		Seed:          db.NewAddress("seed:7687"),
		PurgeDelay:    time.Minute,
		UseSeedRouter: true,
		Log:           log.Void{},
	}, pool.New(pool.Config{}, nil), nil)
	// Swap in test doubles for the unexported collaborators: *pool.Pool
	// satisfies borrower/Strategy/VersionProber structurally, but the
	// test needs deterministic behavior no real dial can give it.
	p.pool = b
	p.strategy = strategy
	p.dnsLookup = noLookup
	return p, b
}

func TestAcquireRefreshesStaleTableThenSelects(t *testing.T) {
	writer := db.NewAddress("writer:7687")
	reader := db.NewAddress("reader:7687")
	routerAddr := db.NewAddress("seed:7687")
	conn := &fakeRoutingConn{
		version: db.ProtocolVersion{Major: 5, Minor: 0},
		record:  routingRecord(300, []string{"seed:7687"}, []string{"reader:7687"}, []string{"writer:7687"}),
	}
	p, b := newTestProvider(conn, fixedStrategy{addr: writer})

	got, err := p.Acquire(context.Background(), db.WriteMode, "neo4j", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got == nil {
		t.Fatal("expected a connection")
	}
	if !b.kept.Contains(writer) || !b.kept.Contains(reader) || !b.kept.Contains(routerAddr) {
		t.Fatalf("expected KeepAll to be called with every table member, got %v", b.kept)
	}
}

func TestAcquireFailsWhenNoCandidateForMode(t *testing.T) {
	conn := &fakeRoutingConn{
		version: db.ProtocolVersion{Major: 5, Minor: 0},
		record:  routingRecord(300, []string{"seed:7687"}, []string{"reader:7687"}, nil),
	}
	p, _ := newTestProvider(conn, fixedStrategy{})

	_, err := p.Acquire(context.Background(), db.WriteMode, "neo4j", nil, nil)
	if err == nil {
		t.Fatal("expected an error when no writer is available")
	}
	if _, ok := err.(*db.SessionExpiredError); !ok {
		t.Fatalf("expected *db.SessionExpiredError, got %T: %v", err, err)
	}
}

func TestRefreshTableForgetsUnresponsiveRouterAndStopsWhenExhausted(t *testing.T) {
	// An unclassified failure (neither a Neo4jError nor a network
	// error) collapses to the discovery no-table sentinel, so the
	// single seed candidate is forgotten and, with no other router to
	// try, the cascade reports every candidate exhausted.
	conn := &fakeRoutingConn{
		version:  db.ProtocolVersion{Major: 5, Minor: 0},
		failWith: errors.New("garbled reply"),
	}
	p, _ := newTestProvider(conn, fixedStrategy{})

	_, err := p.refreshTable(context.Background(), "neo4j", nil)
	if err == nil {
		t.Fatal("expected an error once every router candidate is exhausted")
	}
	if _, ok := err.(*db.ServiceUnavailableError); !ok {
		t.Fatalf("expected *db.ServiceUnavailableError, got %T: %v", err, err)
	}
}

func TestInvalidateWriterForgetsWriterOnly(t *testing.T) {
	p, _ := newTestProvider(&fakeRoutingConn{}, fixedStrategy{})
	addr := db.NewAddress("writer:7687")
	now := time.Now()
	p.tables.put(&db.RoutingTable{
		Database:       "neo4j",
		Routers:        db.AddressSet{addr},
		Readers:        db.AddressSet{addr},
		Writers:        db.AddressSet{addr},
		ExpirationTime: now.Add(time.Hour),
	}, now)

	if err := p.InvalidateWriter(context.Background(), "neo4j", addr.String()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	table := p.tables.get("neo4j", now)
	if table.Writers.Contains(addr) {
		t.Fatal("expected the writer to be forgotten")
	}
	if !table.Readers.Contains(addr) {
		t.Fatal("InvalidateWriter must not touch readers")
	}
}

func TestInvalidateReaderPurgesPool(t *testing.T) {
	p, b := newTestProvider(&fakeRoutingConn{}, fixedStrategy{})
	addr := db.NewAddress("reader:7687")

	if err := p.InvalidateReader(context.Background(), "neo4j", addr.String()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(b.purged) != 1 || !b.purged[0].Equal(addr) {
		t.Fatalf("expected the pool to be purged for %s, got %v", addr, b.purged)
	}
}

func TestReleaseUnwrapsDelegateConnection(t *testing.T) {
	p, b := newTestProvider(&fakeRoutingConn{}, fixedStrategy{})
	inner := &fakeRoutingConn{}
	wrapped := wrapWithErrorHandler(inner, db.NewAddress("a:7687"), "neo4j", p.errs)

	if err := p.Release(context.Background(), wrapped); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if b.returned != 1 {
		t.Fatalf("expected the pool to see one Return call, got %d", b.returned)
	}
}
