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

import "github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"

// Strategy is spec.md §4.3's load-balancing strategy: pick one address
// out of a candidate list. The only implementation is least-connected
// over the connection pool's own active-connection counts
// (*pool.Pool satisfies this), kept as an interface here purely so
// this package's tests can swap in a deterministic fake instead of
// spinning up a real pool.
type Strategy interface {
	Select(candidates db.AddressSet) db.Address
}
