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

// Package bolt is the one concrete implementation of db.Connection
// this module ships: enough of the Bolt handshake to negotiate a
// protocol version over a real socket, which is all the connection
// provider and the version probe (spec.md §4.9) need. Message framing
// and packstream encode/decode are the excluded external collaborator
// from spec.md §1 — Run/TxBegin/Next and friends hand off to a Codec
// seam instead of encoding anything themselves.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
)

// boltMagic is the fixed 4-byte preamble every Bolt handshake starts
// with, unchanged across every protocol version to date.
var boltMagic = [4]byte{0x60, 0x60, 0xb0, 0x17}

// proposedVersions is sent in the order the server should prefer;
// higher/newer first. Each entry packs range, minor, major into the
// last three bytes of a big-endian uint32, range left at zero (no
// version ranges proposed).
var proposedVersions = []db.ProtocolVersion{
	{Major: 5, Minor: 4},
	{Major: 5, Minor: 0},
	{Major: 4, Minor: 4},
	{Major: 3, Minor: 0},
}

// clientHandshake writes the magic preamble and proposed versions,
// then reads back the server's chosen version. A chosen version of
// 0.0 means the server rejected every proposal.
func clientHandshake(ctx context.Context, conn net.Conn) (db.ProtocolVersion, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(zeroTime)
	}

	buf := make([]byte, 4+4*4)
	copy(buf[0:4], boltMagic[:])
	for i, v := range proposedVersions {
		off := 4 + i*4
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(v.Minor)<<8|uint32(v.Major))
	}
	if _, err := conn.Write(buf); err != nil {
		return db.ProtocolVersion{}, fmt.Errorf("bolt handshake write failed: %w", err)
	}

	reply := make([]byte, 4)
	if _, err := readFull(conn, reply); err != nil {
		return db.ProtocolVersion{}, fmt.Errorf("bolt handshake read failed: %w", err)
	}
	chosen := binary.BigEndian.Uint32(reply)
	major := int(chosen & 0xff)
	minor := int((chosen >> 8) & 0xff)
	if major == 0 && minor == 0 {
		return db.ProtocolVersion{}, &db.ServiceUnavailableError{Message: "server rejected every proposed Bolt version"}
	}
	return db.ProtocolVersion{Major: major, Minor: minor}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
