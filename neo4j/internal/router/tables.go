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
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
)

// tablesMap is the per-database RoutingTable store described in
// spec.md §3 ("Routing Tables Map"): entries whose expiration_time
// plus purgeDelay has passed are evicted whenever any database's
// table is updated.
type tablesMap struct {
	mut        sync.Mutex
	purgeDelay time.Duration
	tables     map[string]*db.RoutingTable
}

func newTablesMap(purgeDelay time.Duration) *tablesMap {
	return &tablesMap{
		purgeDelay: purgeDelay,
		tables:     make(map[string]*db.RoutingTable),
	}
}

// get returns the table for database, or a fresh empty-and-already-
// stale one if none has ever been committed, per spec.md §4.6 step 1
// ("if absent, treat it as an empty table with no routers").
func (m *tablesMap) get(database string, now time.Time) *db.RoutingTable {
	m.mut.Lock()
	defer m.mut.Unlock()
	t, ok := m.tables[database]
	if !ok {
		return db.NewRoutingTable(database)
	}
	return t
}

// put installs newTable and evicts every other database whose table
// has been expired for longer than purgeDelay.
func (m *tablesMap) put(newTable *db.RoutingTable, now time.Time) {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.tables[newTable.Database] = newTable
	for db_, t := range m.tables {
		if db_ == newTable.Database {
			continue
		}
		if t.IsExpiredFor(m.purgeDelay, now) {
			delete(m.tables, db_)
		}
	}
}

// forgetInDatabase removes addr from one database's readers and
// writers, leaving its routers (and every other database) untouched.
func (m *tablesMap) forgetInDatabase(database string, addr db.Address) {
	m.mut.Lock()
	defer m.mut.Unlock()
	if t, ok := m.tables[database]; ok {
		t.Forget(addr)
	}
}

// forgetEverywhere removes addr from readers and writers of every
// database's table, used for transport-level failures that aren't
// scoped to a particular database.
func (m *tablesMap) forgetEverywhere(addr db.Address) {
	m.mut.Lock()
	defer m.mut.Unlock()
	for _, t := range m.tables {
		t.Forget(addr)
	}
}

// forgetWriter removes addr from one database's writers only.
func (m *tablesMap) forgetWriter(database string, addr db.Address) {
	m.mut.Lock()
	defer m.mut.Unlock()
	if t, ok := m.tables[database]; ok {
		t.ForgetWriter(addr)
	}
}

// forgetRouter removes addr from one database's routers only, used
// during rediscovery's router cascade.
func (m *tablesMap) forgetRouter(database string, addr db.Address) {
	m.mut.Lock()
	defer m.mut.Unlock()
	if t, ok := m.tables[database]; ok {
		t.ForgetRouter(addr)
	}
}

// allServers returns the union of every address known across every
// database's table, used when the pool needs to keep connections open
// to anything any database still references.
func (m *tablesMap) allServers() db.AddressSet {
	m.mut.Lock()
	defer m.mut.Unlock()
	var all db.AddressSet
	for _, t := range m.tables {
		all = all.Union(t.AllServers())
	}
	return all
}
