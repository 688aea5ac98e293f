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
	"fmt"
	"net/url"

	idb "github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/bolt"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/pool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/router"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// DriverWithContext is the top-level entry point: one per application,
// shared across goroutines, owning every pooled connection and routing
// table the application's sessions draw from.
type DriverWithContext interface {
	// Target returns the URI this driver was created with.
	Target() url.URL
	// NewSession creates a new session based on the specified session configuration.
	NewSession(ctx context.Context, config SessionConfig) SessionWithContext
	// VerifyConnectivity checks that the driver can reach at least one
	// cluster member and negotiate a Bolt version with it.
	VerifyConnectivity(ctx context.Context) error
	// Close cleans up the pool and stops any background routing work.
	Close(ctx context.Context) error
}

type driverWithContext struct {
	target   url.URL
	config   *Config
	pool     *pool.Pool
	router   *router.ConnectionProvider
	log      log.Logger
}

// NewDriverWithContext creates a driver for the given target (a
// bolt://, bolt+s://, neo4j:// or neo4j+s:// URI) and auth token.
// Every scheme is served by the routing connection provider
// (spec.md §4.6), which runs rediscovery starting from the address in
// target; a neo4j(+s) scheme additionally makes the seed router be
// tried first on refresh. bolt(+s) targets are not given a direct,
// discovery-free connection mode.
func NewDriverWithContext(target string, auth AuthToken, configurers ...func(*Config)) (DriverWithContext, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, &UsageError{Message: fmt.Sprintf("invalid target %q: %s", target, err)}
	}

	config := defaultConfig()
	for _, c := range configurers {
		c(config)
	}

	connector := &bolt.Connector{
		DialTimeout:    config.ConnectionAcquisitionTimeout,
		UserAgent:      config.UserAgent,
		Auth:           auth.tokens,
		RoutingContext: routingContext(parsed),
		Log:            config.Log,
	}

	connPool := pool.New(pool.Config{
		MaxConnectionPoolSize:        config.MaxConnectionPoolSize,
		ConnectionAcquisitionTimeout: config.ConnectionAcquisitionTimeout,
		MaxConnectionLifetime:        config.MaxConnectionLifetime,
		Log:                          config.Log,
	}, connector)

	seed := idb.NewAddress(defaultPort(parsed))
	useSeedRouter := isRoutingScheme(parsed.Scheme)

	provider := router.New(router.Config{
		Seed:           seed,
		RoutingContext: routingContext(parsed),
		PurgeDelay:     config.RoutingTablePurgeDelay,
		UseSeedRouter:  useSeedRouter,
		Log:            config.Log,
	}, connPool, connector)

	return &driverWithContext{
		target: *parsed,
		config: config,
		pool:   connPool,
		router: provider,
		log:    config.Log,
	}, nil
}

func (d *driverWithContext) Target() url.URL {
	return d.target
}

func (d *driverWithContext) NewSession(ctx context.Context, config SessionConfig) SessionWithContext {
	if config.DatabaseName != "" && config.DatabaseName != idb.DefaultDatabase {
		if err := assertDatabaseName(config.DatabaseName); err != nil {
			return &erroredSessionWithContext{err: err}
		}
	}
	return newSessionWithContext(d.config, config, d.router, d.log)
}

func (d *driverWithContext) VerifyConnectivity(ctx context.Context) error {
	_, err := d.router.GetNameOfDefaultDatabase(ctx, nil, "", nil)
	return wrapError(err)
}

func (d *driverWithContext) Close(ctx context.Context) error {
	return combineAllErrors(d.pool.CleanUp(ctx), d.router.CleanUp(ctx))
}

func assertDatabaseName(name string) error {
	if name == "" {
		return &UsageError{Message: "database name cannot be empty"}
	}
	return nil
}

func isRoutingScheme(scheme string) bool {
	return scheme == "neo4j" || scheme == "neo4j+s" || scheme == "neo4j+ssc"
}

func defaultPort(u *url.URL) string {
	host := u.Host
	if u.Port() == "" {
		host = host + ":7687"
	}
	return host
}

func routingContext(u *url.URL) map[string]string {
	values := u.Query()
	if len(values) == 0 {
		return nil
	}
	ctx := make(map[string]string, len(values))
	for k := range values {
		ctx[k] = values.Get(k)
	}
	return ctx
}
