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
	"errors"
	"strings"

	idb "github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
)

// UsageError is returned when the driver is used in a way its API
// contract forbids (a second transaction on a session that already
// has one pending, a negative transaction timeout, ...).
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// ConnectivityError wraps every failure to reach or stay connected to
// the cluster: spec.md §6's service-unavailable and session-expired
// kinds both surface through it.
type ConnectivityError struct {
	inner error
}

func (e *ConnectivityError) Error() string { return "connectivity error: " + e.inner.Error() }
func (e *ConnectivityError) Unwrap() error { return e.inner }

// Neo4jError is a server-reported failure carrying the status code
// the server returned, e.g. Neo.ClientError.Database.DatabaseNotFound.
type Neo4jError struct {
	Code    string
	Message string
}

func (e *Neo4jError) Error() string { return e.Code + ": " + e.Message }

// TokenExpiredError is a Neo4jError specialization the driver
// recognizes to prompt an auth-token refresh.
type TokenExpiredError struct {
	Code    string
	Message string
}

func (e *TokenExpiredError) Error() string { return e.Code + ": " + e.Message }

// TransactionExecutionLimit is returned when ExecuteRead/ExecuteWrite
// gave up after MaxTransactionRetryTime elapsed with every attempt
// failing in a retryable way.
type TransactionExecutionLimit struct {
	Errors []error
	Causes []error
}

func (e *TransactionExecutionLimit) Error() string {
	if len(e.Errors) == 0 {
		return "transaction retry time limit exceeded"
	}
	return "transaction retry time limit exceeded, last error: " + e.Errors[len(e.Errors)-1].Error()
}

func newTransactionExecutionLimit(errs []error, causes []error) error {
	return &TransactionExecutionLimit{Errors: errs, Causes: causes}
}

// IsNeo4jError reports whether err (or anything it wraps) is a
// server-reported Neo4jError.
func IsNeo4jError(err error) bool {
	var target *Neo4jError
	return errors.As(err, &target)
}

// IsUsageError reports whether err is a UsageError.
func IsUsageError(err error) bool {
	var target *UsageError
	return errors.As(err, &target)
}

// IsConnectivityError reports whether err is a ConnectivityError.
func IsConnectivityError(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

// IsTransactionExecutionLimit reports whether err is a
// TransactionExecutionLimit.
func IsTransactionExecutionLimit(err error) bool {
	var target *TransactionExecutionLimit
	return errors.As(err, &target)
}

// wrapError translates an internal/db error into the public error
// taxonomy spec.md §6 lists, leaving anything already public (or
// already a Neo4jError surfaced by a previous wrapError call)
// untouched.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *idb.SessionExpiredError:
		return &ConnectivityError{inner: errors.New(e.Message)}
	case *idb.ServiceUnavailableError:
		return &ConnectivityError{inner: errors.New(e.Message)}
	case *idb.ProtocolError:
		return &ConnectivityError{inner: errors.New(e.Message)}
	case *idb.Neo4jError:
		if e.Code == idb.CodeUnauthorized {
			return &TokenExpiredError{Code: e.Code, Message: e.Message}
		}
		return &Neo4jError{Code: e.Code, Message: e.Message}
	}
	return err
}

// combineAllErrors joins every non-nil error in errs into one, or
// returns nil if all were nil. Used when closing the driver runs
// several independent cleanup steps that can each fail.
func combineAllErrors(errs ...error) error {
	var msgs []string
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		msgs = append(msgs, err.Error())
	}
	if first == nil {
		return nil
	}
	if len(msgs) == 1 {
		return first
	}
	return errors.New(strings.Join(msgs, "; "))
}
