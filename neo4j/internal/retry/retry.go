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

// Package retry implements the transaction-function retry loop that
// sits on top of the routing connection provider: it decides whether
// a failure inside ExecuteRead/ExecuteWrite is worth retrying on a
// fresh connection, and if the failure looks like a dead server,
// reports it to the router so the next attempt routes around it.
package retry

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

// Router is the slice of the routing connection provider the retry
// loop needs in order to report a server as dead for a role.
type Router interface {
	InvalidateReader(ctx context.Context, database string, server string) error
	InvalidateWriter(ctx context.Context, database string, server string) error
}

// Throttle returns how long to wait before the next attempt, given
// the number of attempts made so far (including the failed one).
type Throttle func(attempt int) time.Duration

// Throttler is simple exponential backoff with a ceiling, the same
// shape session_with_context.go's teacher lineage always used for
// transaction retries: start at the configured base, double each
// attempt, cap at one minute.
func Throttler(base time.Duration) Throttle {
	const ceiling = time.Minute
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt && d < ceiling; i++ {
			d *= 2
		}
		if d > ceiling {
			d = ceiling
		}
		return d
	}
}

// State drives one ExecuteRead/ExecuteWrite call: State.Continue is
// checked before every attempt, State.OnFailure is called after every
// failed attempt, and the exported fields below are read once the
// loop gives up so the caller can build the final error.
type State struct {
	MaxTransactionRetryTime time.Duration
	Log                     log.Logger
	LogName                 string
	LogId                   string
	Now                     func() time.Time
	Sleep                   func(time.Duration)
	Throttle                Throttle
	MaxDeadConnections      int
	Router                  Router
	DatabaseName            string
	OnDeadConnection        func(server string) error

	// LastErr is the most recent failure observed by OnFailure.
	LastErr error
	// LastErrWasRetryable is true when the loop stopped because
	// MaxTransactionRetryTime elapsed while every failure so far was
	// of a retryable kind, rather than because a fatal error surfaced.
	LastErrWasRetryable bool
	// Errs accumulates every failure observed across every attempt.
	Errs []error
	// Causes accumulates, for each failure, whatever
	// diagnostic detail distinguishes it (currently the same error;
	// kept distinct from Errs so a future richer cause can be added
	// without changing the caller's signature).
	Causes []error

	start          time.Time
	attempt        int
	deadConnections int
	done           bool
}

// Continue reports whether another attempt should be made. It seeds
// the deadline on its first call.
func (s *State) Continue() bool {
	if s.start.IsZero() {
		s.start = s.Now()
	}
	if s.done {
		return false
	}
	if s.attempt == 0 {
		s.attempt++
		return true
	}
	if s.Now().Sub(s.start) >= s.MaxTransactionRetryTime {
		s.LastErrWasRetryable = isRetryable(s.LastErr)
		return false
	}
	throttle := s.Throttle(s.attempt)
	s.Sleep(throttle)
	s.attempt++
	return true
}

// OnFailure records err, reports a dead connection to the router when
// the failure looks like one, and stops the loop immediately on a
// non-retryable error. committing indicates the failure happened
// while committing the transaction, where a retry could double-apply
// a non-idempotent write; such failures are never retried.
func (s *State) OnFailure(ctx context.Context, conn db.Connection, err error, committing bool) {
	s.LastErr = err
	s.Errs = append(s.Errs, err)

	if !isRetryable(err) || committing {
		s.Causes = append(s.Causes, err)
		s.done = true
		return
	}
	s.Causes = append(s.Causes, err)

	if conn != nil && isDeadConnectionError(err) {
		s.deadConnections++
		if s.MaxDeadConnections > 0 && s.deadConnections > s.MaxDeadConnections {
			s.done = true
			return
		}
		if s.OnDeadConnection != nil {
			if invalidateErr := s.OnDeadConnection(conn.ServerName()); invalidateErr != nil {
				s.LastErr = invalidateErr
				s.done = true
			}
		}
	}
}

func isDeadConnectionError(err error) bool {
	switch err.(type) {
	case *db.SessionExpiredError, *db.ServiceUnavailableError:
		return true
	}
	return false
}

// isRetryable implements spec.md §7's propagation policy as seen from
// the session: transient transport and write-routed failures (both
// surfaced as SessionExpiredError by the error handler), raw
// service-unavailable, and Neo4j errors whose code marks the database
// as unavailable are worth retrying on a new connection; anything
// else (protocol errors, client errors, ordinary query failures) is
// not.
func isRetryable(err error) bool {
	switch e := err.(type) {
	case *db.SessionExpiredError, *db.ServiceUnavailableError:
		return true
	case *db.Neo4jError:
		return db.IsDatabaseUnavailable(e.Code)
	}
	return false
}
