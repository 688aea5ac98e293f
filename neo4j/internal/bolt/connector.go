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
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

var zeroTime time.Time

// AuthToken is the opaque credentials object forwarded to HELLO,
// spec.md §6. The core never inspects its contents.
type AuthToken map[string]interface{}

// Codec performs Bolt message packstream encode/decode and dispatch
// once the handshake has settled on a protocol version. It is the
// excluded external collaborator from spec.md §1: this module defines
// the seam a full packstream implementation plugs into, not the
// codec itself.
type Codec interface {
	Run(ctx context.Context, cmd db.Command, txConfig db.TxConfig) (db.StreamHandle, error)
	TxBegin(ctx context.Context, txConfig db.TxConfig) (db.TxHandle, error)
	TxCommit(ctx context.Context, tx db.TxHandle) error
	TxRollback(ctx context.Context, tx db.TxHandle) error
	Next(ctx context.Context, stream db.StreamHandle) (*db.Record, *db.Summary, error)
	Reset(ctx context.Context)
	Bookmark() string
	Hello(ctx context.Context, userAgent string, auth AuthToken, routingContext map[string]string) (serverName string, serverVersion string, err error)
}

// NewCodec is swapped out by a full packstream implementation; the
// zero value leaves every message-level operation unavailable while
// still letting the handshake-only version probe (spec.md §4.9) work.
var NewCodec = func(conn net.Conn, version db.ProtocolVersion, boltLogger log.BoltLogger) Codec {
	return nil
}

// Connector dials and authenticates new connections; it implements
// both internal/pool.Connector and internal/router.VersionProber.
type Connector struct {
	DialTimeout    time.Duration
	UserAgent      string
	Auth           AuthToken
	RoutingContext map[string]string
	Log            log.Logger
}

// Connect implements internal/pool.Connector: dial, handshake, HELLO.
func (c *Connector) Connect(ctx context.Context, address db.Address, boltLogger log.BoltLogger) (db.Connection, error) {
	conn, version, err := c.dialAndHandshake(ctx, address)
	if err != nil {
		return nil, err
	}

	codec := NewCodec(conn, version, boltLogger)
	if codec == nil {
		conn.Close()
		return nil, &db.ServiceUnavailableError{Message: "no Bolt message codec is configured for protocol " + versionString(version)}
	}

	serverName, serverVersion, err := codec.Hello(ctx, c.UserAgent, c.Auth, c.RoutingContext)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &connection{
		conn:          conn,
		codec:         codec,
		address:       address,
		version:       version,
		serverName:    serverName,
		serverVersion: serverVersion,
		boltLogger:    boltLogger,
	}, nil
}

// ProbeVersion implements internal/router.VersionProber: handshake
// only, no HELLO, connection always closed before returning.
func (c *Connector) ProbeVersion(ctx context.Context, address db.Address) (db.ProtocolVersion, error) {
	conn, version, err := c.dialAndHandshake(ctx, address)
	if err != nil {
		return db.ProtocolVersion{}, err
	}
	conn.Close()
	return version, nil
}

func (c *Connector) dialAndHandshake(ctx context.Context, address db.Address) (net.Conn, db.ProtocolVersion, error) {
	dialer := net.Dialer{Timeout: c.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address.String())
	if err != nil {
		return nil, db.ProtocolVersion{}, &db.ServiceUnavailableError{Message: "failed to connect to " + address.String() + ": " + err.Error()}
	}
	version, err := clientHandshake(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, db.ProtocolVersion{}, err
	}
	return conn, version, nil
}

func versionString(v db.ProtocolVersion) string {
	digits := func(n int) byte { return byte('0' + n) }
	return string([]byte{digits(v.Major), '.', digits(v.Minor)})
}
