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

package neo4j

import (
	"context"

	idb "github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
)

// Record is one row of a result, copied out of internal/db.Record so
// callers never depend on an internal package.
type Record struct {
	Values []interface{}
	Keys   []string
}

// Get looks a value up by key, reporting whether it was present.
func (r *Record) Get(key string) (interface{}, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Values[i], true
		}
	}
	return nil, false
}

// ResultWithContext iterates the records a Run produced. It reads
// straight from the connection's stream and does not track whether
// its originating transaction is still open, so reading it after
// Commit/Rollback/Close does not return an error of its own.
type ResultWithContext interface {
	Keys() ([]string, error)
	Next(ctx context.Context) bool
	Err() error
	Record() *Record
	Consume(ctx context.Context) (*Summary, error)
}

// Summary is the public terminal-statistics view of idb.Summary.
type Summary struct {
	Database string
	Bookmark string
}

type resultWithContext struct {
	conn    idb.Connection
	stream  idb.StreamHandle
	cypher  string
	params  map[string]interface{}
	record  *Record
	summary *idb.Summary
	err     error
	done    bool
}

func newResultWithContext(conn idb.Connection, stream idb.StreamHandle, cypher string, params map[string]interface{}) ResultWithContext {
	return &resultWithContext{conn: conn, stream: stream, cypher: cypher, params: params}
}

func (r *resultWithContext) Keys() ([]string, error) {
	if r.record != nil {
		return r.record.Keys, nil
	}
	return nil, nil
}

func (r *resultWithContext) Next(ctx context.Context) bool {
	if r.done {
		return false
	}
	rec, sum, err := r.conn.Next(ctx, r.stream)
	if err != nil {
		r.err = wrapError(err)
		r.done = true
		return false
	}
	if sum != nil {
		r.summary = sum
		r.done = true
		return false
	}
	r.record = &Record{Values: rec.Values, Keys: rec.Keys}
	return true
}

func (r *resultWithContext) Err() error { return r.err }

func (r *resultWithContext) Record() *Record { return r.record }

func (r *resultWithContext) Consume(ctx context.Context) (*Summary, error) {
	r.buffer(ctx)
	if r.err != nil {
		return nil, r.err
	}
	if r.summary == nil {
		return &Summary{}, nil
	}
	return &Summary{Database: r.summary.Database, Bookmark: r.summary.Bookmark}, nil
}

// buffer drains the stream to completion, discarding any remaining
// records, so the connection can safely be reused or the transaction
// closed. Safe to call more than once.
func (r *resultWithContext) buffer(ctx context.Context) {
	for !r.done {
		r.Next(ctx)
	}
}
