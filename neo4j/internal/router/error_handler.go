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

// addressPurger is the slice of *pool.Pool the error handler needs;
// kept as an interface to avoid internal/router depending on
// internal/pool's concrete type for anything but this one call.
type addressPurger interface {
	Purge(ctx context.Context, addr db.Address) error
}

// errorHandler implements spec.md §4.7 and §7: it turns a connection's
// transport/server error into the routing-table mutation the error
// kind calls for, and returns the error the caller should see instead.
type errorHandler struct {
	tables *tablesMap
	pool   addressPurger
}

// handle is invoked by a delegate connection's error listener
// (db.Connection.SetErrorListener) whenever a server or transport
// error surfaces while the connection is on loan to a session.
func (h *errorHandler) handle(ctx context.Context, database string, addr db.Address, err error) error {
	if neo4jErr, ok := err.(*db.Neo4jError); ok {
		switch {
		case db.IsWriteError(neo4jErr.Code):
			// Kind 2: write-routed error, forget the writer only.
			h.tables.forgetWriter(database, addr)
			return &db.SessionExpiredError{Message: "it is no longer possible to write to the database: " + err.Error()}
		case db.IsDatabaseUnavailable(neo4jErr.Code):
			// Kind 3: database transient, forget from this database
			// only, surfaced unchanged.
			h.tables.forgetInDatabase(database, addr)
			_ = h.pool.Purge(ctx, addr)
			return err
		case neo4jErr.Code == db.CodeDatabaseNotFound || neo4jErr.Code == db.CodeUnauthorized:
			// Kind 4: discovery-fatal, no state mutation.
			return err
		}
		// Any other Neo4jError (ordinary query failures) is not a
		// routing concern at all.
		return err
	}

	if isTransientTransport(err) {
		// Kind 1: transient transport, forget everywhere and purge.
		h.tables.forgetEverywhere(addr)
		_ = h.pool.Purge(ctx, addr)
		return &db.SessionExpiredError{Message: "lost connection to " + addr.String() + ": " + err.Error()}
	}

	return err
}

// isTransientTransport reports whether err looks like a network-level
// failure rather than a server-reported application error.
func isTransientTransport(err error) bool {
	if err == nil {
		return false
	}
	_, isNetErr := err.(net.Error)
	return isNetErr
}
