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

package bolt

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// connection is the db.Connection implementation backing a live
// socket past the handshake and HELLO. Every message-level call is
// forwarded to codec; connection itself only owns the things the
// pool and router need: liveness, identity and the error-listener
// slot the delegate wrapper rebinds (spec.md §9).
type connection struct {
	conn          net.Conn
	codec         Codec
	address       db.Address
	version       db.ProtocolVersion
	serverName    string
	serverVersion string
	boltLogger    log.BoltLogger

	broken        atomic.Bool
	errorListener atomic.Value // func(error)
}

func (c *connection) ServerName() string          { return c.serverName }
func (c *connection) ServerVersion() string        { return c.serverVersion }
func (c *connection) Version() db.ProtocolVersion { return c.version }

func (c *connection) Run(ctx context.Context, cmd db.Command, txConfig db.TxConfig) (db.StreamHandle, error) {
	stream, err := c.codec.Run(ctx, cmd, txConfig)
	c.observe(err)
	return stream, err
}

func (c *connection) TxBegin(ctx context.Context, txConfig db.TxConfig) (db.TxHandle, error) {
	tx, err := c.codec.TxBegin(ctx, txConfig)
	c.observe(err)
	return tx, err
}

func (c *connection) TxCommit(ctx context.Context, tx db.TxHandle) error {
	err := c.codec.TxCommit(ctx, tx)
	c.observe(err)
	return err
}

func (c *connection) TxRollback(ctx context.Context, tx db.TxHandle) error {
	err := c.codec.TxRollback(ctx, tx)
	c.observe(err)
	return err
}

func (c *connection) Next(ctx context.Context, stream db.StreamHandle) (*db.Record, *db.Summary, error) {
	rec, sum, err := c.codec.Next(ctx, stream)
	c.observe(err)
	return rec, sum, err
}

func (c *connection) Bookmark() string { return c.codec.Bookmark() }

func (c *connection) Reset(ctx context.Context) { c.codec.Reset(ctx) }

func (c *connection) Close(ctx context.Context) error {
	c.broken.Store(true)
	return c.conn.Close()
}

// IsAlive starts true on a freshly handshaken connection and flips to
// false the first time a message-level call observes an error, or
// once Close has run; it never reopens.
func (c *connection) IsAlive() bool {
	return !c.broken.Load()
}

func (c *connection) observe(err error) {
	if err == nil {
		return
	}
	c.broken.Store(true)
	if l, ok := c.errorListener.Load().(func(error)); ok && l != nil {
		l(err)
	}
}

func (c *connection) SetBoltLogger(logger db.BoltLoggerSink) {
	if bl, ok := logger.(log.BoltLogger); ok {
		c.boltLogger = bl
	}
}

func (c *connection) SetErrorListener(listener func(error)) {
	c.errorListener.Store(listener)
}
