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
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
)

// procedureRunner issues the routing-discovery procedure on an
// already-open connection and parses its reply (spec.md §4.4).
type procedureRunner struct {
	routingContext map[string]string
	now            func() time.Time
}

// run executes the discovery call and returns the parsed table. A nil
// table with a nil error is the "no-table" sentinel: the caller
// (rediscovery) should try the next router. A non-nil error is fatal
// and must be propagated without trying further routers.
func (r *procedureRunner) run(ctx context.Context, conn db.Connection, database string, bookmarks []string) (*db.RoutingTable, error) {
	v4Plus := conn.Version().AtLeast(4, 0)

	params := map[string]interface{}{"context": r.contextParam()}
	cypher := "CALL dbms.cluster.routing.getRoutingTable($context)"
	var txBookmarks []string
	if v4Plus {
		cypher = "CALL dbms.routing.getRoutingTable($context, $database)"
		if database == db.DefaultDatabase {
			params["database"] = nil
		} else {
			params["database"] = database
		}
		txBookmarks = bookmarks
	}

	stream, err := conn.Run(ctx, db.Command{Cypher: cypher, Params: params}, db.TxConfig{
		Mode:      db.ReadMode,
		Bookmarks: txBookmarks,
	})
	if err != nil {
		return classifyDiscoveryError(err)
	}

	var records []*db.Record
	for {
		rec, _, err := conn.Next(ctx, stream)
		if err != nil {
			return classifyDiscoveryError(err)
		}
		if rec == nil {
			break
		}
		records = append(records, rec)
	}

	if len(records) != 1 {
		return nil, &db.ProtocolError{Message: fmt.Sprintf("expected exactly one routing record, got %d", len(records))}
	}

	return r.parse(records[0], database)
}

func (r *procedureRunner) contextParam() map[string]interface{} {
	out := make(map[string]interface{}, len(r.routingContext))
	for k, v := range r.routingContext {
		out[k] = v
	}
	return out
}

// classifyDiscoveryError implements spec.md §4.4's error classification:
// database-not-found, procedure-not-found and unauthorized are fatal,
// everything else collapses to the no-table sentinel.
func classifyDiscoveryError(err error) (*db.RoutingTable, error) {
	if neo4jErr, ok := err.(*db.Neo4jError); ok {
		switch neo4jErr.Code {
		case db.CodeDatabaseNotFound:
			return nil, neo4jErr
		case db.CodeProcedureNotFound:
			return nil, &db.ServiceUnavailableError{Message: "server is not a cluster member: " + neo4jErr.Error()}
		case db.CodeUnauthorized:
			return nil, neo4jErr
		}
	}
	return nil, nil
}

func (r *procedureRunner) parse(rec *db.Record, database string) (*db.RoutingTable, error) {
	fields := indexRecord(rec)

	ttlRaw, ok := fields["ttl"]
	if !ok {
		return nil, &db.ProtocolError{Message: "routing record missing 'ttl' field"}
	}
	ttl, err := asInt64(ttlRaw)
	if err != nil {
		return nil, &db.ProtocolError{Message: "routing record 'ttl' field is not an integer: " + err.Error()}
	}

	serversRaw, ok := fields["servers"]
	if !ok {
		return nil, &db.ProtocolError{Message: "routing record missing 'servers' field"}
	}
	serverList, ok := serversRaw.([]interface{})
	if !ok {
		return nil, &db.ProtocolError{Message: "routing record 'servers' field is not a list"}
	}

	table := db.NewRoutingTable(database)
	table.ExpirationTime = db.ExpiresAt(r.now(), ttl)

	for _, entryRaw := range serverList {
		entry, ok := entryRaw.(map[string]interface{})
		if !ok {
			return nil, &db.ProtocolError{Message: "routing record server entry is not a map"}
		}
		role, _ := entry["role"].(string)
		rawAddrs, _ := entry["addresses"].([]interface{})
		addrs := make([]string, 0, len(rawAddrs))
		for _, a := range rawAddrs {
			s, ok := a.(string)
			if !ok {
				return nil, &db.ProtocolError{Message: "routing record address is not a string"}
			}
			addrs = append(addrs, s)
		}
		set, err := db.NewAddressSet(addrs)
		if err != nil {
			return nil, err
		}
		switch role {
		case "ROUTE":
			table.Routers = table.Routers.Union(set)
		case "READ":
			table.Readers = table.Readers.Union(set)
		case "WRITE":
			table.Writers = table.Writers.Union(set)
		default:
			return nil, &db.ProtocolError{Message: "unknown server role: " + role}
		}
	}

	if len(table.Routers) == 0 {
		return nil, &db.ProtocolError{Message: "routing record contains no routers"}
	}
	if len(table.Readers) == 0 {
		return nil, &db.ProtocolError{Message: "routing record contains no readers"}
	}

	return table, nil
}

func indexRecord(rec *db.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(rec.Keys))
	for i, k := range rec.Keys {
		if i < len(rec.Values) {
			out[k] = rec.Values[i]
		}
	}
	return out
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
