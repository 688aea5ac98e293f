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

// Package router is the cluster-aware connection provider: spec.md's
// core. It owns the routing tables map and drives rediscovery against
// candidate routers, then hands acquisitions off to the connection
// pool once a fresh table says which address to use.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/pool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// borrower is the slice of *pool.Pool the provider needs for ordinary
// acquisition and for running the discovery procedure on a pooled
// connection to a router.
type borrower interface {
	BorrowOne(ctx context.Context, addr db.Address, wait bool, boltLogger log.BoltLogger, livenessCheckThreshold time.Duration) (db.Connection, error)
	Return(ctx context.Context, conn db.Connection) error
	KeepAll(ctx context.Context, keep db.AddressSet) error
	CleanUp(ctx context.Context) error
	Purge(ctx context.Context, addr db.Address) error
}

// VersionProber opens a short-lived, authentication-free connection
// purely to learn the negotiated Bolt version, spec.md §4.9.
type VersionProber interface {
	ProbeVersion(ctx context.Context, addr db.Address) (db.ProtocolVersion, error)
}

// Config bundles the provider's tunables, spec.md §6.
type Config struct {
	Seed           db.Address
	Resolver       Resolver
	RoutingContext map[string]string
	PurgeDelay     time.Duration
	UseSeedRouter  bool
	Log            log.Logger
}

// ConnectionProvider is spec.md §4.6's Routing Connection Provider:
// the top-level component composing the routing table, rediscovery,
// load-balancing strategy, connection pool and error handler.
type ConnectionProvider struct {
	config    Config
	pool      borrower
	strategy  Strategy
	prober    VersionProber
	tables    *tablesMap
	runner    *procedureRunner
	errs      *errorHandler
	refresh   singleflight.Group
	dnsLookup dnsLookup
	now       func() time.Time

	useSeedRouter atomic.Bool
}

func New(config Config, p *pool.Pool, prober VersionProber) *ConnectionProvider {
	tables := newTablesMap(config.PurgeDelay)
	now := time.Now
	c := &ConnectionProvider{
		config:    config,
		pool:      p,
		strategy:  p,
		prober:    prober,
		tables:    tables,
		runner:    &procedureRunner{routingContext: config.RoutingContext, now: now},
		errs:      &errorHandler{tables: tables, pool: p},
		dnsLookup: defaultDNSLookup,
		now:       now,
	}
	c.useSeedRouter.Store(config.UseSeedRouter)
	return c
}

// Acquire is spec.md §4.6's top-level operation: ensure database's
// table is fresh enough for mode, select an address via the
// load-balancing strategy, and hand back a pool connection wrapped so
// that errors observed on it drive the error-to-action mapping.
func (p *ConnectionProvider) Acquire(ctx context.Context, mode db.AccessMode, database string, bookmarks []string, boltLogger log.BoltLogger) (db.Connection, error) {
	table := p.tables.get(database, p.now())
	if table.IsStaleFor(mode, p.now()) {
		var err error
		table, err = p.refreshTable(ctx, database, bookmarks)
		if err != nil {
			return nil, err
		}
	}

	var candidates db.AddressSet
	if mode == db.ReadMode {
		candidates = table.Readers
	} else {
		candidates = table.Writers
	}
	addr := p.strategy.Select(candidates)
	if addr.IsZero() {
		return nil, &db.SessionExpiredError{Message: fmt.Sprintf(
			"no servers available to serve %s requests for database %q", mode, displayName(database))}
	}

	conn, err := p.pool.BorrowOne(ctx, addr, true, boltLogger, pool.DefaultLivenessCheckThreshold)
	if err != nil {
		return nil, err
	}
	return wrapWithErrorHandler(conn, addr, database, p.errs), nil
}

// Release returns a connection acquired through Acquire back to the
// pool, restoring its error listener first.
func (p *ConnectionProvider) Release(ctx context.Context, conn db.Connection) error {
	if d, ok := conn.(*delegateConnection); ok {
		conn = d.unwrap()
	}
	return p.pool.Return(ctx, conn)
}

// InvalidateWriter implements the retry executor's OnDeadConnection
// hook for a write failure: forget the writer for database only.
func (p *ConnectionProvider) InvalidateWriter(ctx context.Context, database string, server string) error {
	p.tables.forgetWriter(database, db.NewAddress(server))
	return nil
}

// InvalidateReader implements the retry executor's OnDeadConnection
// hook for a read failure: forget the reader for database and purge
// its pool entry.
func (p *ConnectionProvider) InvalidateReader(ctx context.Context, database string, server string) error {
	addr := db.NewAddress(server)
	p.tables.forgetInDatabase(database, addr)
	return p.pool.Purge(ctx, addr)
}

// GetNameOfDefaultDatabase resolves the home database for a session
// opened without an explicit DatabaseName, spec.md §9 supplemented
// feature 1. Impersonation-aware home-db resolution requires a
// dedicated ROUTE message variant that is part of the excluded Bolt
// framing layer (spec.md §1); absent that, an impersonated user's
// home database still resolves to the server's own default, which is
// correct whenever the impersonated user's default database matches
// the connecting user's — the common case — and is recorded as an
// accepted simplification in DESIGN.md.
func (p *ConnectionProvider) GetNameOfDefaultDatabase(ctx context.Context, bookmarks []string, impersonatedUser string, boltLogger log.BoltLogger) (string, error) {
	if _, err := p.refreshTable(ctx, db.DefaultDatabase, bookmarks); err != nil {
		return "", err
	}
	return db.DefaultDatabase, nil
}

// CleanUp marks the pool closed and releases every connection,
// spec.md §5's graceful-shutdown contract, §8 invariant 8.
func (p *ConnectionProvider) CleanUp(ctx context.Context) error {
	return p.pool.CleanUp(ctx)
}

// refreshTable is spec.md §4.6 steps 3-4 plus §5's coalescing rule:
// at most one lookup_on sequence is in flight per database, every
// other stale-acquirer adopts its result.
func (p *ConnectionProvider) refreshTable(ctx context.Context, database string, bookmarks []string) (*db.RoutingTable, error) {
	v, err, _ := p.refresh.Do(database, func() (interface{}, error) {
		return p.refreshLocked(ctx, database, bookmarks)
	})
	if err != nil {
		return nil, err
	}
	return v.(*db.RoutingTable), nil
}

func (p *ConnectionProvider) refreshLocked(ctx context.Context, database string, bookmarks []string) (*db.RoutingTable, error) {
	current := p.tables.get(database, p.now())
	tryList, err := p.buildTryList(ctx, current)
	if err != nil {
		return nil, err
	}

	tried := make(map[uint64]bool, len(tryList))
	for _, router := range tryList {
		if tried[router.Key()] {
			continue
		}
		tried[router.Key()] = true

		table, lookupErr := p.lookupOn(ctx, router, database, bookmarks)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if table == nil {
			p.tables.forgetRouter(database, router)
			continue
		}

		if len(table.Writers) == 0 {
			// Defensive for partitioned clusters: a reader-only view
			// shouldn't stick around as the starting point of the
			// next refresh (spec.md §4.6, design notes §9).
			p.useSeedRouter.Store(true)
		}
		now := p.now()
		p.tables.put(table, now)
		if err := p.pool.KeepAll(ctx, p.tables.allServers()); err != nil {
			return nil, err
		}
		return table, nil
	}

	return nil, &db.ServiceUnavailableError{Message: fmt.Sprintf(
		"unable to retrieve routing table for database %q from any of the known routers, last known table: %s",
		displayName(database), describeTable(current))}
}

// buildTryList orders candidate routers per spec.md §4.6: seed-first
// when use_seed_router is set or no routers are known, known-routers-
// first otherwise, always falling back to the other source.
func (p *ConnectionProvider) buildTryList(ctx context.Context, current *db.RoutingTable) ([]db.Address, error) {
	seedFirst := p.useSeedRouter.Load() || len(current.Routers) == 0

	seedList, err := seedCandidates(ctx, p.config.Seed, p.config.Resolver, p.dnsLookup)
	if err != nil {
		return nil, err
	}

	if seedFirst {
		return append(append([]db.Address{}, seedList...), current.Routers...), nil
	}
	return append(append([]db.Address{}, current.Routers...), seedList...), nil
}

// lookupOn acquires a transient pooled connection to router and runs
// the discovery procedure on it (spec.md §4.5). A nil table with a
// nil error is the no-table sentinel.
func (p *ConnectionProvider) lookupOn(ctx context.Context, router db.Address, database string, bookmarks []string) (*db.RoutingTable, error) {
	conn, err := p.pool.BorrowOne(ctx, router, true, nil, pool.DefaultLivenessCheckThreshold)
	if err != nil {
		if errors.Is(err, pool.ErrPoolClosed) {
			return nil, err
		}
		// Dial/handshake failure to this particular router: treat as
		// unreachable, not fatal, so the cascade tries the next one.
		return nil, nil
	}
	defer p.pool.Return(ctx, conn)

	return p.runner.run(ctx, conn, database, bookmarks)
}

// SupportsMultiDB implements spec.md §4.9.
func (p *ConnectionProvider) SupportsMultiDB(ctx context.Context) (bool, error) {
	v, err := p.probeVersion(ctx)
	if err != nil {
		return false, err
	}
	return v.AtLeast(4, 0), nil
}

// SupportsTransactionConfig implements spec.md §4.9.
func (p *ConnectionProvider) SupportsTransactionConfig(ctx context.Context) (bool, error) {
	v, err := p.probeVersion(ctx)
	if err != nil {
		return false, err
	}
	return v.AtLeast(3, 0), nil
}

func (p *ConnectionProvider) probeVersion(ctx context.Context) (db.ProtocolVersion, error) {
	candidates, err := seedCandidates(ctx, p.config.Seed, p.config.Resolver, p.dnsLookup)
	if err != nil {
		return db.ProtocolVersion{}, err
	}
	var lastErr error
	for _, addr := range candidates {
		v, err := p.prober.ProbeVersion(ctx, addr)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return db.ProtocolVersion{}, &db.ServiceUnavailableError{Message: "could not negotiate protocol version with any seed address: " + errString(lastErr)}
}

func errString(err error) string {
	if err == nil {
		return "no addresses available"
	}
	return err.Error()
}

func displayName(database string) string {
	if database == db.DefaultDatabase {
		return "<default>"
	}
	return database
}

func describeTable(t *db.RoutingTable) string {
	if t == nil {
		return "<none>"
	}
	return fmt.Sprintf("routers=%v readers=%v writers=%v", t.Routers, t.Readers, t.Writers)
}
