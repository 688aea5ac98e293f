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
	"context"
	"net"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
)

// Resolver is the user-supplied hook mapping the seed address to a
// list of addresses, spec.md §6's "resolver" option. Absence means
// identity (the seed address resolves to itself).
type Resolver func(seed db.Address) []db.Address

// dnsLookup is the platform DNS resolver every resolved address is
// additionally passed through before being added to the rediscovery
// try-list (spec.md §4.6).
type dnsLookup func(ctx context.Context, host string) ([]string, error)

func defaultDNSLookup(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

// seedCandidates resolves the seed address into the flattened try-list
// spec.md §4.6 describes: first the user resolver (or identity),
// then each result through platform DNS.
func seedCandidates(ctx context.Context, seed db.Address, resolve Resolver, lookup dnsLookup) ([]db.Address, error) {
	var resolved []db.Address
	if resolve == nil {
		resolved = []db.Address{seed}
	} else {
		resolved = resolve(seed)
	}
	if len(resolved) == 0 {
		return nil, &db.ServiceUnavailableError{Message: "resolver returned no addresses for seed router " + seed.String()}
	}

	var out []db.Address
	for _, addr := range resolved {
		ips, err := lookup(ctx, addr.Host())
		if err != nil || len(ips) == 0 {
			// DNS failure for one resolved address doesn't sink the
			// whole try-list: it's equivalent to that router being
			// unreachable, handled later by the router-cascade logic.
			out = append(out, addr)
			continue
		}
		for _, ip := range ips {
			out = append(out, db.NewAddress(net.JoinHostPort(ip, addr.Port())))
		}
	}
	return out, nil
}
