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

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
)

// delegateConnection is spec.md §9's cyclic-reference resolution: it
// borrows an inner, pool-owned connection and transiently substitutes
// its error listener with one that drives this package's error-to-
// action mapping. It never owns the inner connection's lifetime — the
// pool does — so Close/Reset are forwarded, not intercepted, and the
// original listener (always nil in this driver, since nothing else
// claims the slot) is restored before the inner connection goes back
// to the pool.
type delegateConnection struct {
	db.Connection
	addr     db.Address
	database string
	handler  *errorHandler
}

func wrapWithErrorHandler(inner db.Connection, addr db.Address, database string, handler *errorHandler) *delegateConnection {
	d := &delegateConnection{Connection: inner, addr: addr, database: database, handler: handler}
	inner.SetErrorListener(func(err error) {
		// The listener itself cannot return the translated error (the
		// underlying Connection API has no slot for it); instead it
		// performs the state mutation immediately and lets the
		// original error continue to propagate to the caller through
		// the normal Run/Next/TxCommit return values. Translate
		// gives the classified form of an error without repeating
		// the mutation.
		_ = handler.handle(context.Background(), database, addr, err)
	})
	return d
}

// unwrap restores the inner connection's error listener to nil before
// handing the bare connection back to the pool.
func (d *delegateConnection) unwrap() db.Connection {
	d.Connection.SetErrorListener(nil)
	return d.Connection
}

// Translate applies this connection's error classification to err and
// returns the error the session should surface, without re-performing
// the listener's state mutation (SetErrorListener already did that on
// the first observation of err).
func (d *delegateConnection) Translate(err error) error {
	if err == nil {
		return nil
	}
	return classifyOnly(err)
}

// classifyOnly mirrors errorHandler.handle's return-value mapping
// without re-applying the table mutation, used when a caller already
// observed the mutation via the SetErrorListener callback and only
// needs the public-facing error shape.
func classifyOnly(err error) error {
	if neo4jErr, ok := err.(*db.Neo4jError); ok {
		switch {
		case db.IsWriteError(neo4jErr.Code):
			return &db.SessionExpiredError{Message: "it is no longer possible to write to the database: " + err.Error()}
		}
		return err
	}
	if isTransientTransport(err) {
		return &db.SessionExpiredError{Message: err.Error()}
	}
	return err
}
