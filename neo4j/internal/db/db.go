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

// Package db holds the types shared between the connection pool, the
// router and the Bolt transport: the Connection seam itself, the
// routing table data model and the driver's error taxonomy. Nothing
// here depends on any concrete transport or wire codec.
package db

import (
	"context"
	"time"
)

// AccessMode selects which half of a RoutingTable a session's
// connection is drawn from.
type AccessMode int

const (
	WriteMode AccessMode = iota
	ReadMode
)

func (m AccessMode) String() string {
	if m == ReadMode {
		return "READ"
	}
	return "WRITE"
}

// TxConfig carries the per-transaction settings that flow from the
// session down into a BEGIN (or an auto-commit RUN).
type TxConfig struct {
	Mode             AccessMode
	Bookmarks        []string
	Timeout          time.Duration
	Meta             map[string]interface{}
	ImpersonatedUser string
}

// Command is a single Cypher statement plus its parameters and the
// batch size the client wants records streamed in.
type Command struct {
	Cypher    string
	Params    map[string]interface{}
	FetchSize int
}

// StreamHandle identifies one in-flight result stream on a Connection,
// opaque outside of the connection that produced it.
type StreamHandle interface{}

// TxHandle identifies one in-flight explicit or auto-commit
// transaction on a Connection.
type TxHandle interface{}

// Record is one row of a result stream.
type Record struct {
	Values []interface{}
	Keys   []string
}

// Summary is the terminal message of a result stream, carrying
// whatever server-side statistics/bookmark came with it.
type Summary struct {
	Bookmark     string
	Database     string
	StatementType int
}

// Connection is the seam the router and pool operate on: a single
// live Bolt link, already past the handshake and HELLO. Framing and
// packstream encoding are explicitly out of scope for this module
// (spec.md §1) — Connection only specifies the operations the router
// and pool need to drive it, leaving the wire-level implementation to
// internal/bolt.
type Connection interface {
	// Connect-time identity, fixed for the connection's lifetime.
	ServerName() string
	ServerVersion() string
	Version() ProtocolVersion

	// Run starts an auto-commit statement, TxBegin starts an explicit
	// or managed transaction, TxCommit/TxRollback end it.
	Run(ctx context.Context, cmd Command, txConfig TxConfig) (StreamHandle, error)
	TxBegin(ctx context.Context, txConfig TxConfig) (TxHandle, error)
	TxCommit(ctx context.Context, tx TxHandle) error
	TxRollback(ctx context.Context, tx TxHandle) error

	// Next advances a stream, returning either a Record or, once
	// exhausted, a terminal Summary.
	Next(ctx context.Context, stream StreamHandle) (*Record, *Summary, error)

	// Bookmark is the latest causal-consistency token observed on
	// this connection, forwarded by the session to the next
	// transaction and to system-database discovery.
	Bookmark() string

	// Reset discards any pending transaction/stream state so the
	// connection can be returned to the pool clean. Buggy/leaked
	// client state never survives a Reset.
	Reset(ctx context.Context)

	// Close releases the underlying transport. Idempotent.
	Close(ctx context.Context) error

	// IsAlive reports whether the connection is believed usable. The
	// pool consults it when a connection is returned, and at borrow
	// time only for idle connections past a non-negative liveness
	// threshold.
	IsAlive() bool

	// SetBoltLogger rebinds the protocol tracer for this connection.
	SetBoltLogger(logger BoltLoggerSink)

	// SetErrorListener rebinds the callback invoked whenever a server
	// or transport error surfaces on this connection; see
	// internal/router.ConnectionErrorHandler. Passing nil clears it.
	SetErrorListener(func(error))
}

// BoltLoggerSink is the narrow slice of log.BoltLogger that internal/db
// needs, kept here instead of importing the log package back in to
// avoid a dependency cycle (log imports nothing from internal/db).
type BoltLoggerSink interface {
	LogClientMessage(context string, msg string, args ...interface{})
	LogServerMessage(context string, msg string, args ...interface{})
}

// DatabaseSelector is implemented by connections whose protocol
// version supports selecting a non-default database (Bolt >= v4).
type DatabaseSelector interface {
	SelectDatabase(database string)
}

// ProtocolVersion is the negotiated Bolt version.
type ProtocolVersion struct {
	Major int
	Minor int
}

func (v ProtocolVersion) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}
