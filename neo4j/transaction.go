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
	"time"

	idb "github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
)

// TransactionConfig configures one transaction (explicit, managed or
// auto-commit). Its zero value is filled in by defaultTransactionConfig.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]interface{}
}

// WithTxTimeout overrides the server-side transaction timeout.
func WithTxTimeout(timeout time.Duration) func(*TransactionConfig) {
	return func(c *TransactionConfig) { c.Timeout = timeout }
}

// WithTxMetadata attaches metadata visible in the server's query log.
func WithTxMetadata(metadata map[string]interface{}) func(*TransactionConfig) {
	return func(c *TransactionConfig) { c.Metadata = metadata }
}

// ManagedTransaction is handed to an ExecuteRead/ExecuteWrite work
// function; it cannot be committed or rolled back directly, the retry
// loop in session_with_context.go decides that.
type ManagedTransaction interface {
	Run(ctx context.Context, cypher string, params map[string]interface{}) (ResultWithContext, error)
}

// ExplicitTransaction is returned by BeginTransaction; the caller owns
// its lifetime and must Commit, Rollback or Close it.
type ExplicitTransaction interface {
	ManagedTransaction
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type managedTransaction struct {
	conn      idb.Connection
	fetchSize int
	txHandle  idb.TxHandle
}

func (t *managedTransaction) Run(ctx context.Context, cypher string, params map[string]interface{}) (ResultWithContext, error) {
	stream, err := t.conn.Run(ctx, idb.Command{Cypher: cypher, Params: params, FetchSize: t.fetchSize}, idb.TxConfig{})
	if err != nil {
		return nil, wrapError(err)
	}
	return newResultWithContext(t.conn, stream, cypher, params), nil
}

type explicitTransaction struct {
	conn      idb.Connection
	fetchSize int
	txHandle  idb.TxHandle
	done      bool
	onClosed  func()
}

func (t *explicitTransaction) Run(ctx context.Context, cypher string, params map[string]interface{}) (ResultWithContext, error) {
	if t.done {
		return nil, &UsageError{Message: "transaction is already closed"}
	}
	stream, err := t.conn.Run(ctx, idb.Command{Cypher: cypher, Params: params, FetchSize: t.fetchSize}, idb.TxConfig{})
	if err != nil {
		return nil, wrapError(err)
	}
	return newResultWithContext(t.conn, stream, cypher, params), nil
}

func (t *explicitTransaction) Commit(ctx context.Context) error {
	if t.done {
		return &UsageError{Message: "transaction is already closed"}
	}
	err := t.conn.TxCommit(ctx, t.txHandle)
	t.close()
	return wrapError(err)
}

func (t *explicitTransaction) Rollback(ctx context.Context) error {
	if t.done {
		return &UsageError{Message: "transaction is already closed"}
	}
	err := t.conn.TxRollback(ctx, t.txHandle)
	t.close()
	return wrapError(err)
}

func (t *explicitTransaction) Close(ctx context.Context) error {
	if t.done {
		return nil
	}
	err := t.conn.TxRollback(ctx, t.txHandle)
	t.close()
	return wrapError(err)
}

func (t *explicitTransaction) close() {
	if t.done {
		return
	}
	t.done = true
	t.onClosed()
}

type autocommitTransaction struct {
	conn     idb.Connection
	res      ResultWithContext
	closed   bool
	onClosed func()
}

// done is called whenever the session is about to start a new
// operation while an auto-commit transaction is still open: it
// discards the stream (an implicit Reset happens on return to the
// pool) and runs the onClosed cleanup.
func (t *autocommitTransaction) done(ctx context.Context) {
	if t.closed {
		return
	}
	t.closed = true
	if r, ok := t.res.(*resultWithContext); ok {
		r.buffer(ctx)
	}
	t.onClosed()
}

func (t *autocommitTransaction) discard(ctx context.Context) {
	t.closed = true
}
