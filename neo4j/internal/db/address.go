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

import (
	"net"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Address is a canonical host:port pair. It is the unit that both the
// routing table and the connection pool partition on, so equality and
// hashing are defined solely over the canonical key, never over the
// original, possibly differently-cased or differently-formatted, input.
type Address struct {
	host string
	port string
	key  uint64
}

// NewAddress parses a "host:port" string into an Address. Host names
// are not resolved here: resolution is the Host-Name Resolver's and
// the platform DNS resolver's job (see internal/router/resolver.go).
func NewAddress(hostPort string) Address {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		// Malformed input still gets a stable, comparable Address rather
		// than a panic: the caller (routing record parser) turns this
		// into a protocol error instead.
		host, port = hostPort, ""
	}
	return newAddress(host, port)
}

func newAddress(host, port string) Address {
	a := Address{host: host, port: port}
	a.key = xxhash.Sum64String(strings.ToLower(a.host) + ":" + a.port)
	return a
}

// NewAddressFromHostPort builds an Address from already-split
// components, used by the DNS resolver which works in (ip, port) pairs.
func NewAddressFromHostPort(host string, port int) Address {
	return newAddress(host, strconv.Itoa(port))
}

func (a Address) Host() string { return a.host }
func (a Address) Port() string { return a.port }

// Key is the canonical identity used for map membership, equality and
// hashing. Two Address values with the same Key are the same server as
// far as the routing table and connection pool are concerned.
func (a Address) Key() uint64 { return a.key }

func (a Address) String() string {
	return net.JoinHostPort(a.host, a.port)
}

func (a Address) Equal(o Address) bool {
	return a.key == o.key
}

// IsZero reports whether this is the unset Address value, as returned
// e.g. by a load-balancing strategy with no candidates.
func (a Address) IsZero() bool {
	return a.host == "" && a.port == ""
}

// AddressSet is an ordered, duplicate-free collection of Address
// values, used for routers/readers/writers. Order is preserved as
// returned by the server since some servers hint preference through
// ordering.
type AddressSet []Address

func NewAddressSet(raw []string) (AddressSet, error) {
	set := make(AddressSet, 0, len(raw))
	seen := make(map[uint64]bool, len(raw))
	for _, r := range raw {
		a := NewAddress(r)
		if a.port == "" {
			return nil, &ProtocolError{Message: "routing table contains an address without a port: " + r}
		}
		if seen[a.key] {
			continue
		}
		seen[a.key] = true
		set = append(set, a)
	}
	return set, nil
}

func (s AddressSet) Contains(a Address) bool {
	for _, x := range s {
		if x.Equal(a) {
			return true
		}
	}
	return false
}

// Without returns a copy of s with a removed, preserving order of the
// remaining elements. Used by RoutingTable.forget* operations.
func (s AddressSet) Without(a Address) AddressSet {
	out := make(AddressSet, 0, len(s))
	for _, x := range s {
		if !x.Equal(a) {
			out = append(out, x)
		}
	}
	return out
}

// Union appends the addresses of o that are not already present in s,
// preserving s's order first.
func (s AddressSet) Union(o AddressSet) AddressSet {
	out := make(AddressSet, len(s), len(s)+len(o))
	copy(out, s)
	for _, a := range o {
		if !out.Contains(a) {
			out = append(out, a)
		}
	}
	return out
}
