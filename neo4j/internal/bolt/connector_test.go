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
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// withCodec swaps the package-level codec constructor for the
// duration of a test and restores it afterward, since NewCodec is the
// seam a real packstream implementation plugs into (this module
// doesn't carry one, spec.md §1).
func withCodec(t *testing.T, ctor func(net.Conn, db.ProtocolVersion, log.BoltLogger) Codec) {
	t.Helper()
	prev := NewCodec
	NewCodec = ctor
	t.Cleanup(func() { NewCodec = prev })
}

// listenAndHandshake starts a one-shot loopback listener that performs
// the server side of the Bolt handshake with reply, then returns the
// address to dial.
func listenAndHandshake(t *testing.T, reply [4]byte, afterHandshake func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start loopback listener: %s", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4+4*4)
		if _, err := readFull(conn, buf); err != nil {
			return
		}
		conn.Write(reply[:])
		if afterHandshake != nil {
			afterHandshake(conn)
		}
	}()
	return ln.Addr().String()
}

func TestConnectorConnectPerformsHandshakeThenHello(t *testing.T) {
	var reply [4]byte
	binary.BigEndian.PutUint32(reply[:], uint32(4)<<8|uint32(5))
	addr := listenAndHandshake(t, reply, func(conn net.Conn) {
		conn.Write([]byte("hello-ack"))
	})

	var helloCalls int
	withCodec(t, func(conn net.Conn, version db.ProtocolVersion, boltLogger log.BoltLogger) Codec {
		return &fakeCodec{
			onHello: func() { helloCalls++ },
		}
	})

	c := &Connector{DialTimeout: 2 * time.Second, UserAgent: "test-agent/1.0"}
	got, err := c.Connect(context.Background(), db.NewAddress(addr), nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got == nil {
		t.Fatal("expected a connection")
	}
	if helloCalls != 1 {
		t.Fatalf("expected Hello to be called once, got %d", helloCalls)
	}
	if got.Version().Major != 5 || got.Version().Minor != 4 {
		t.Fatalf("expected negotiated version 5.4, got %d.%d", got.Version().Major, got.Version().Minor)
	}
}

func TestConnectorConnectFailsWhenNoCodecConfigured(t *testing.T) {
	var reply [4]byte
	binary.BigEndian.PutUint32(reply[:], uint32(4)<<8|uint32(5))
	addr := listenAndHandshake(t, reply, nil)

	withCodec(t, func(net.Conn, db.ProtocolVersion, log.BoltLogger) Codec { return nil })

	c := &Connector{DialTimeout: 2 * time.Second}
	_, err := c.Connect(context.Background(), db.NewAddress(addr), nil)
	if err == nil {
		t.Fatal("expected an error when no codec is configured")
	}
	if _, ok := err.(*db.ServiceUnavailableError); !ok {
		t.Fatalf("expected *db.ServiceUnavailableError, got %T", err)
	}
}

func TestConnectorProbeVersionClosesConnectionWithoutHello(t *testing.T) {
	var reply [4]byte
	binary.BigEndian.PutUint32(reply[:], uint32(4)<<8|uint32(5))
	addr := listenAndHandshake(t, reply, nil)

	c := &Connector{DialTimeout: 2 * time.Second}
	version, err := c.ProbeVersion(context.Background(), db.NewAddress(addr))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if version.Major != 5 || version.Minor != 4 {
		t.Fatalf("expected probed version 5.4, got %d.%d", version.Major, version.Minor)
	}
}

func TestConnectorConnectFailsOnDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to allocate a port: %s", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := &Connector{DialTimeout: 200 * time.Millisecond}
	_, err = c.Connect(context.Background(), db.NewAddress(addr), nil)
	if err == nil {
		t.Fatal("expected an error dialing a closed port")
	}
	if _, ok := err.(*db.ServiceUnavailableError); !ok {
		t.Fatalf("expected *db.ServiceUnavailableError, got %T", err)
	}
}
