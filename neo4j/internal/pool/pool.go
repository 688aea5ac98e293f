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

// Package pool implements the per-address bounded connection pools
// described in spec.md §4.2. One puddle.Pool backs each Address; this
// package adds the semantics puddle doesn't know about on its own:
// max-lifetime eviction on release, an opportunistic liveness check on
// old idle connections, purge-on-membership-change, and the
// least-connected selection among a list of candidate addresses.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// DefaultLivenessCheckThreshold disables the opportunistic liveness
// check: by default an idle connection is trusted until its max
// lifetime expires.
const DefaultLivenessCheckThreshold = -1 * time.Second

// Connector dials and authenticates a brand-new connection to address.
// Implemented by internal/bolt; kept as an interface here so the pool
// has no dependency on any concrete transport.
type Connector interface {
	Connect(ctx context.Context, address db.Address, boltLogger log.BoltLogger) (db.Connection, error)
}

// ErrPoolClosed is returned by Borrow once Close has been called.
var ErrPoolClosed = errors.New("connection pool is closed")

// ErrAcquisitionTimeout is returned when a Borrow could not obtain a
// connection within the configured acquisition timeout.
var ErrAcquisitionTimeout = errors.New("timed out waiting for a connection to become available")

type resource struct {
	conn      db.Connection
	createdAt time.Time
	broken    bool
}

// Config bundles the tunables spec.md §6 lists for the pool.
type Config struct {
	MaxConnectionPoolSize        int
	ConnectionAcquisitionTimeout time.Duration
	MaxConnectionLifetime        time.Duration
	Log                          log.Logger
}

// Pool owns every live connection the driver holds; it is the
// lifetime root for connections per spec.md §3's ownership notes.
type Pool struct {
	config    Config
	connector Connector

	mut       sync.Mutex
	byAddr    map[uint64]*puddle.Pool[*resource]
	addrOf    map[uint64]db.Address
	rrIndex   map[uint64]int   // round-robin tiebreak counters, keyed by the hash of the candidate set
	purgeGen  map[uint64]int64 // bumped by Purge so in-flight borrows close on release instead of returning

	closed bool
}

func New(config Config, connector Connector) *Pool {
	return &Pool{
		config:    config,
		connector: connector,
		byAddr:    make(map[uint64]*puddle.Pool[*resource]),
		addrOf:    make(map[uint64]db.Address),
		rrIndex:   make(map[uint64]int),
		purgeGen:  make(map[uint64]int64),
	}
}

func (p *Pool) poolFor(addr db.Address) (*puddle.Pool[*resource], error) {
	p.mut.Lock()
	defer p.mut.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if pp, ok := p.byAddr[addr.Key()]; ok {
		return pp, nil
	}
	maxSize := int32(p.config.MaxConnectionPoolSize)
	if maxSize <= 0 {
		maxSize = 1<<31 - 1
	}
	pp, err := puddle.NewPool(&puddle.Config[*resource]{
		Constructor: func(ctx context.Context) (*resource, error) {
			conn, err := p.connector.Connect(ctx, addr, nil)
			if err != nil {
				return nil, err
			}
			return &resource{conn: conn, createdAt: time.Now()}, nil
		},
		Destructor: func(r *resource) {
			r.conn.Close(context.Background())
		},
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, err
	}
	p.byAddr[addr.Key()] = pp
	p.addrOf[addr.Key()] = addr
	return pp, nil
}

// CountActive returns the number of in-use connections for addr, used
// by the least-connected strategy.
func (p *Pool) CountActive(addr db.Address) int {
	p.mut.Lock()
	pp, ok := p.byAddr[addr.Key()]
	p.mut.Unlock()
	if !ok {
		return 0
	}
	return int(pp.Stat().AcquiredResources())
}

// Select picks the candidate with the fewest active connections,
// advancing a stable round-robin tiebreaker on every call so equally
// loaded peers aren't starved. Returns the zero Address if candidates
// is empty. This is spec.md §4.3's least-connected strategy; it lives
// here because it needs atomic access to the same active-counts the
// pool itself maintains.
func (p *Pool) Select(candidates db.AddressSet) db.Address {
	if len(candidates) == 0 {
		return db.Address{}
	}
	p.mut.Lock()
	defer p.mut.Unlock()

	setKey := setHash(candidates)
	start := p.rrIndex[setKey] % len(candidates)
	p.rrIndex[setKey] = start + 1

	best := -1
	bestActive := int32(-1)
	for i := 0; i < len(candidates); i++ {
		idx := (start + i) % len(candidates)
		c := candidates[idx]
		active := int32(0)
		if pp, ok := p.byAddr[c.Key()]; ok {
			active = pp.Stat().AcquiredResources()
		}
		if bestActive < 0 || active < bestActive {
			bestActive = active
			best = idx
		}
	}
	return candidates[best]
}

func setHash(addrs db.AddressSet) uint64 {
	var h uint64
	for _, a := range addrs {
		h ^= a.Key() + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2)
	}
	return h
}

// Borrow acquires a connection to the least-connected of addresses. If
// wait is false the call never queues: it fails immediately
// (ErrAcquisitionTimeout) unless an idle connection is ready.
func (p *Pool) Borrow(ctx context.Context, addresses []db.Address, wait bool, boltLogger log.BoltLogger, livenessCheckThreshold time.Duration) (db.Connection, error) {
	addr := p.Select(addresses)
	if addr.IsZero() {
		return nil, errors.New("no addresses to borrow a connection from")
	}
	return p.BorrowOne(ctx, addr, wait, boltLogger, livenessCheckThreshold)
}

// BorrowOne acquires a connection to a single, already-selected
// address, applying the pool's configured acquisition timeout.
func (p *Pool) BorrowOne(ctx context.Context, addr db.Address, wait bool, boltLogger log.BoltLogger, livenessCheckThreshold time.Duration) (db.Connection, error) {
	pp, err := p.poolFor(addr)
	if err != nil {
		return nil, err
	}

	if p.config.ConnectionAcquisitionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.ConnectionAcquisitionTimeout)
		defer cancel()
	}

	for {
		var res *puddle.Resource[*resource]
		if wait {
			res, err = pp.Acquire(ctx)
		} else {
			res, err = pp.TryAcquire(ctx)
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, puddle.ErrNotAvailable) {
				return nil, ErrAcquisitionTimeout
			}
			return nil, err
		}

		r := res.Value()
		if p.expired(r) {
			res.Destroy()
			continue
		}
		if livenessCheckThreshold >= 0 && res.IdleDuration() > livenessCheckThreshold {
			if !r.conn.IsAlive() {
				res.Destroy()
				continue
			}
		}
		p.mut.Lock()
		gen := p.purgeGen[addr.Key()]
		p.mut.Unlock()
		return &borrowedConnection{Connection: r.conn, puddleRes: res, resource: r, address: addr, genAtBorrow: gen}, nil
	}
}

// borrowedConnection associates an acquired puddle.Resource with the
// address it came from so Return/Purge can find the right
// puddle.Pool again; db.Connection methods are forwarded straight
// through to the inner connection.
type borrowedConnection struct {
	db.Connection
	puddleRes   *puddle.Resource[*resource]
	resource    *resource
	address     db.Address
	genAtBorrow int64
}

func (p *Pool) expired(r *resource) bool {
	if r.broken {
		return true
	}
	if p.config.MaxConnectionLifetime <= 0 {
		return false
	}
	return time.Since(r.createdAt) > p.config.MaxConnectionLifetime
}

// Return releases conn back to its address's pool, or closes it if it
// has exceeded its max lifetime or was marked broken in the meantime.
func (p *Pool) Return(ctx context.Context, conn db.Connection) error {
	bc, ok := conn.(*borrowedConnection)
	if !ok {
		// Not one of ours (e.g. a probe connection): just close it.
		return conn.Close(ctx)
	}

	p.mut.Lock()
	purged := bc.genAtBorrow != p.purgeGen[bc.address.Key()]
	p.mut.Unlock()

	if purged || p.expired(bc.resource) || !bc.resource.conn.IsAlive() {
		bc.puddleRes.Destroy()
		return nil
	}

	bc.resource.conn.Reset(ctx)
	bc.puddleRes.Release()
	return nil
}

// Purge closes every idle connection for addr immediately and bumps
// its purge generation so any connection currently on loan closes on
// release instead of returning to the pool. Idempotent.
func (p *Pool) Purge(ctx context.Context, addr db.Address) error {
	p.mut.Lock()
	pp, ok := p.byAddr[addr.Key()]
	p.purgeGen[addr.Key()]++
	p.mut.Unlock()
	if !ok {
		return nil
	}
	for _, res := range pp.AcquireAllIdle() {
		res.Destroy()
	}
	return nil
}

// KeepAll purges every address not present in keep, called after a
// routing table refresh so the pool never holds connections to
// servers that dropped out of the cluster view.
func (p *Pool) KeepAll(ctx context.Context, keep db.AddressSet) error {
	p.mut.Lock()
	stale := make([]db.Address, 0)
	for k, a := range p.addrOf {
		if !keep.Contains(a) {
			stale = append(stale, a)
			_ = k
		}
	}
	p.mut.Unlock()

	for _, a := range stale {
		if err := p.Purge(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// CleanUp marks the pool closed (new Borrows fail) and closes every
// pool of every address, per spec.md §5's graceful-shutdown contract.
func (p *Pool) CleanUp(ctx context.Context) error {
	p.mut.Lock()
	if p.closed {
		p.mut.Unlock()
		return nil
	}
	p.closed = true
	pools := make([]*puddle.Pool[*resource], 0, len(p.byAddr))
	for _, pp := range p.byAddr {
		pools = append(pools, pp)
	}
	p.mut.Unlock()

	for _, pp := range pools {
		pp.Close()
	}
	return nil
}
