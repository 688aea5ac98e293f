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

package db

import "time"

// DefaultDatabase is the empty-string sentinel denoting "whatever the
// server considers the default database", used both as a SessionConfig
// zero value and as the RoutingTable map key for it.
const DefaultDatabase = ""

// never is used in place of an instant the driver can't represent
// (negative or absent TTL) so that such a table reads as maximally
// fresh rather than immediately stale, avoiding overflow when adding
// a TTL to "now".
var never = time.Unix(1<<62, 0)

// RoutingTable is the per-database view of cluster topology: which
// members can answer discovery queries, serve reads and serve writes,
// together with the instant it stops being usable for routing.
type RoutingTable struct {
	Database       string
	Routers        AddressSet
	Readers        AddressSet
	Writers        AddressSet
	ExpirationTime time.Time
}

// NewRoutingTable builds an already-expired, empty table, the state a
// database is in before its first successful rediscovery.
func NewRoutingTable(database string) *RoutingTable {
	return &RoutingTable{Database: database, ExpirationTime: time.Time{}}
}

// ExpiresAt clamps a server-supplied ttlSeconds onto now, mapping an
// absent or negative TTL to the maximum representable instant so that
// integer overflow never produces a table that looks stale the instant
// it's received.
func ExpiresAt(now time.Time, ttlSeconds int64) time.Time {
	if ttlSeconds < 0 {
		return never
	}
	d := time.Duration(ttlSeconds) * time.Second
	t := now.Add(d)
	if t.Before(now) {
		// Overflowed around.
		return never
	}
	return t
}

// AllServers is the union of routers, readers and writers, used to
// decide which addresses the connection pool is allowed to keep
// connections open to after a table refresh.
func (t *RoutingTable) AllServers() AddressSet {
	all := make(AddressSet, 0, len(t.Routers)+len(t.Readers)+len(t.Writers))
	all = all.Union(t.Routers)
	all = all.Union(t.Readers)
	all = all.Union(t.Writers)
	return all
}

// IsStaleFor reports whether this table can no longer be used to
// satisfy an acquisition in the given mode without a refresh first.
func (t *RoutingTable) IsStaleFor(mode AccessMode, now time.Time) bool {
	if len(t.Routers) == 0 {
		return true
	}
	if !now.Before(t.ExpirationTime) {
		return true
	}
	switch mode {
	case ReadMode:
		return len(t.Readers) == 0
	case WriteMode:
		return len(t.Writers) == 0
	}
	return false
}

// IsExpiredFor reports whether this table's ExpirationTime plus
// purgeDelay has passed, the trigger for evicting it from the
// RoutingTablesMap entirely rather than merely refreshing it
// (spec.md §4.1: now >= expiration_time + purge_delay). A table whose
// ExpirationTime is the never sentinel (absent/negative TTL) is
// treated as immortal and never expires for purge purposes.
func (t *RoutingTable) IsExpiredFor(purgeDelay time.Duration, now time.Time) bool {
	if t.ExpirationTime.Equal(never) {
		return false
	}
	return !now.Before(t.ExpirationTime.Add(purgeDelay))
}

// Forget removes addr from both readers and writers. Routers are
// retained: a server can stop serving data while still being able to
// answer discovery queries.
func (t *RoutingTable) Forget(addr Address) {
	t.Readers = t.Readers.Without(addr)
	t.Writers = t.Writers.Without(addr)
}

// ForgetWriter removes addr from writers only, used when a server
// reports it is no longer the leader.
func (t *RoutingTable) ForgetWriter(addr Address) {
	t.Writers = t.Writers.Without(addr)
}

// ForgetRouter removes addr from routers only, used when a router
// fails to answer the discovery procedure during rediscovery.
func (t *RoutingTable) ForgetRouter(addr Address) {
	t.Routers = t.Routers.Without(addr)
}

// Clone returns a value copy sharing no backing arrays with t, so
// callers can mutate the copy (e.g. during parsing) without racing
// with readers of the table still installed in the map.
func (t *RoutingTable) Clone() *RoutingTable {
	c := *t
	c.Routers = append(AddressSet{}, t.Routers...)
	c.Readers = append(AddressSet{}, t.Readers...)
	c.Writers = append(AddressSet{}, t.Writers...)
	return &c
}
