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
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// Config holds the driver's tunables plus the ambient logging target.
// The auth token is a separate argument of NewDriverWithContext and the
// routing context comes from the target URI's query; there is no
// host-name resolver option. Its zero value is never used directly —
// NewDriverWithContext always starts from defaultConfig and applies
// the caller's configurers on top.
type Config struct {
	// MaxConnectionPoolSize is the per-address cap on total
	// connections (idle+in-use). Zero or negative means unbounded.
	MaxConnectionPoolSize int
	// ConnectionAcquisitionTimeout bounds how long a Borrow waits when
	// every pool at the selected address is at capacity.
	ConnectionAcquisitionTimeout time.Duration
	// MaxConnectionLifetime is the age ceiling for a pooled
	// connection; connections past it are closed on release.
	MaxConnectionLifetime time.Duration
	// MaxTransactionRetryTime bounds ExecuteRead/ExecuteWrite's retry
	// loop (internal/retry.State.MaxTransactionRetryTime).
	MaxTransactionRetryTime time.Duration
	// RoutingTablePurgeDelay is the grace period between a routing
	// table's expiry and its eviction from the tables map.
	RoutingTablePurgeDelay time.Duration
	// FetchSize is the default record batch size for protocol
	// versions that support pulling in batches.
	FetchSize int
	// UserAgent is sent in the HELLO handshake.
	UserAgent string
	// Log receives every component's structured log lines.
	Log log.Logger
}

func defaultConfig() *Config {
	return &Config{
		MaxConnectionPoolSize:        100,
		ConnectionAcquisitionTimeout: 60 * time.Second,
		MaxConnectionLifetime:       time.Hour,
		MaxTransactionRetryTime:     30 * time.Second,
		RoutingTablePurgeDelay:      30 * time.Second,
		FetchSize:                   FetchDefault,
		UserAgent:                   "neo4j-go-driver/v5",
		Log:                         log.Void{},
	}
}
