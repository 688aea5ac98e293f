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
	"errors"
	"testing"
	"time"

	idb "github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/log"
)

type fakeConn struct {
	name        string
	bookmark    string
	txBeginErr  error
	txCommitErr error
	runErr      error
}

func (c *fakeConn) ServerName() string          { return c.name }
func (c *fakeConn) ServerVersion() string        { return "fake/1.0" }
func (c *fakeConn) Version() idb.ProtocolVersion { return idb.ProtocolVersion{Major: 5, Minor: 4} }
func (c *fakeConn) Run(context.Context, idb.Command, idb.TxConfig) (idb.StreamHandle, error) {
	return "stream", c.runErr
}
func (c *fakeConn) TxBegin(context.Context, idb.TxConfig) (idb.TxHandle, error) {
	return "tx", c.txBeginErr
}
func (c *fakeConn) TxCommit(context.Context, idb.TxHandle) error   { return c.txCommitErr }
func (c *fakeConn) TxRollback(context.Context, idb.TxHandle) error { return nil }
func (c *fakeConn) Next(context.Context, idb.StreamHandle) (*idb.Record, *idb.Summary, error) {
	return nil, &idb.Summary{}, nil
}
func (c *fakeConn) Bookmark() string               { return c.bookmark }
func (c *fakeConn) Reset(context.Context)           {}
func (c *fakeConn) Close(context.Context) error     { return nil }
func (c *fakeConn) IsAlive() bool                   { return true }
func (c *fakeConn) SetBoltLogger(idb.BoltLoggerSink) {}
func (c *fakeConn) SetErrorListener(func(error))    {}
func (c *fakeConn) SelectDatabase(string)            {}

type fakeSessionRouter struct {
	conn             idb.Connection
	acquireErr       error
	defaultDatabase  string
	defaultDbErr     error
	releaseCalls     int
	acquireCalls     int
	invalidatedReads []string
}

func (r *fakeSessionRouter) Acquire(ctx context.Context, mode idb.AccessMode, database string, bookmarks []string, boltLogger log.BoltLogger) (idb.Connection, error) {
	r.acquireCalls++
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	return r.conn, nil
}
func (r *fakeSessionRouter) Release(ctx context.Context, conn idb.Connection) error {
	r.releaseCalls++
	return nil
}
func (r *fakeSessionRouter) GetNameOfDefaultDatabase(ctx context.Context, bookmarks []string, impersonatedUser string, boltLogger log.BoltLogger) (string, error) {
	return r.defaultDatabase, r.defaultDbErr
}
func (r *fakeSessionRouter) InvalidateReader(ctx context.Context, database, server string) error {
	r.invalidatedReads = append(r.invalidatedReads, server)
	return nil
}
func (r *fakeSessionRouter) InvalidateWriter(ctx context.Context, database, server string) error {
	return nil
}
func (r *fakeSessionRouter) CleanUp(ctx context.Context) error { return nil }

func newTestSession(router sessionRouter, sessConfig SessionConfig) *sessionWithContext {
	config := defaultConfig()
	config.MaxTransactionRetryTime = 5 * time.Millisecond
	s := newSessionWithContext(config, sessConfig, router, log.Void{})
	s.sleep = func(time.Duration) {}
	return s
}

func TestBeginTransactionRejectsSecondPendingTransaction(t *testing.T) {
	conn := &fakeConn{name: "a:7687"}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	if _, err := s.BeginTransaction(context.Background()); err != nil {
		t.Fatalf("unexpected error beginning first transaction: %s", err)
	}
	_, err := s.BeginTransaction(context.Background())
	if err == nil {
		t.Fatal("expected an error starting a second transaction on the same session")
	}
	if _, ok := err.(*UsageError); !ok {
		t.Fatalf("expected *UsageError, got %T", err)
	}
}

func TestBeginTransactionReleasesConnectionOnTxBeginFailure(t *testing.T) {
	conn := &fakeConn{name: "a:7687", txBeginErr: errors.New("begin failed")}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	_, err := s.BeginTransaction(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if router.releaseCalls != 1 {
		t.Fatalf("expected the connection to be released once, got %d", router.releaseCalls)
	}
}

func TestExplicitTransactionCommitRetrievesBookmarkAndReleases(t *testing.T) {
	conn := &fakeConn{name: "a:7687", bookmark: "bm-1"}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	tx, err := s.BeginTransaction(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("unexpected commit error: %s", err)
	}
	if router.releaseCalls != 1 {
		t.Fatalf("expected the connection released after commit, got %d releases", router.releaseCalls)
	}
	if got := s.lastBookmark(); got != "bm-1" {
		t.Fatalf("expected the session to pick up the new bookmark, got %q", got)
	}
	// A closed explicit transaction must allow a new one to begin.
	if s.explicitTx != nil {
		t.Fatal("expected explicitTx to be cleared after commit")
	}
}

func TestResolveHomeDatabaseRunsOnceThenSticks(t *testing.T) {
	conn := &fakeConn{name: "a:7687"}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "resolved-db"}
	s := newTestSession(router, SessionConfig{})

	if _, err := s.BeginTransaction(context.Background()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if s.databaseName != "resolved-db" {
		t.Fatalf("expected databaseName resolved to 'resolved-db', got %q", s.databaseName)
	}
	if s.resolveHomeDb {
		t.Fatal("expected resolveHomeDb to be cleared after first resolution")
	}

	if err := s.explicitTx.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error closing transaction: %s", err)
	}
	router.defaultDatabase = "different-db"
	if _, err := s.BeginTransaction(context.Background()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if s.databaseName != "resolved-db" {
		t.Fatal("expected the resolved database name to stick across transactions within the same session")
	}
}

func TestExecuteWriteRetriesOnSessionExpiredThenSucceeds(t *testing.T) {
	conn := &fakeConn{name: "a:7687"}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	attempts := 0
	result, err := s.ExecuteWrite(context.Background(), func(tx ManagedTransaction) (interface{}, error) {
		attempts++
		if attempts == 1 {
			return nil, &idb.SessionExpiredError{Message: "lost connection"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result != "ok" {
		t.Fatalf("expected the retried attempt's result, got %v", result)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestExecuteReadStopsImmediatelyOnNonRetryableError(t *testing.T) {
	conn := &fakeConn{name: "a:7687"}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	attempts := 0
	wantErr := errors.New("syntax error")
	_, err := s.ExecuteRead(context.Background(), func(tx ManagedTransaction) (interface{}, error) {
		attempts++
		return nil, wantErr
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable error, got %d", attempts)
	}
}

func TestExecuteWriteGivesUpAfterRetryTimeWindow(t *testing.T) {
	conn := &fakeConn{name: "a:7687"}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	now := time.Now()
	s.now = func() time.Time {
		now = now.Add(10 * time.Millisecond)
		return now
	}

	_, err := s.ExecuteWrite(context.Background(), func(tx ManagedTransaction) (interface{}, error) {
		return nil, &idb.SessionExpiredError{Message: "still down"}
	})
	if err == nil {
		t.Fatal("expected an error once the retry window elapses")
	}
	if _, ok := err.(*TransactionExecutionLimit); !ok {
		t.Fatalf("expected *TransactionExecutionLimit, got %T: %v", err, err)
	}
}

func TestRunAutoCommitReleasesOnNextRunAndRetrievesBookmark(t *testing.T) {
	conn := &fakeConn{name: "a:7687", bookmark: "bm-2"}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	if _, err := s.Run(context.Background(), "RETURN 1", nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := s.Run(context.Background(), "RETURN 2", nil); err != nil {
		t.Fatalf("unexpected error on second run: %s", err)
	}
	if router.releaseCalls != 1 {
		t.Fatalf("expected the first auto-commit's connection released once the second Run starts, got %d", router.releaseCalls)
	}
	if got := s.lastBookmark(); got != "bm-2" {
		t.Fatalf("expected the first auto-commit's bookmark to be retrieved, got %q", got)
	}
}

func TestCloseWithOpenTransactionSucceeds(t *testing.T) {
	conn := &fakeConn{name: "a:7687", txCommitErr: nil}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	if _, err := s.BeginTransaction(context.Background()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error closing session: %s", err)
	}
}

func TestGetServerInfoReleasesConnection(t *testing.T) {
	conn := &fakeConn{name: "a:7687"}
	router := &fakeSessionRouter{conn: conn, defaultDatabase: "neo4j"}
	s := newTestSession(router, SessionConfig{DatabaseName: "neo4j"})

	info, err := s.getServerInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if info.Address() != "a:7687" {
		t.Fatalf("expected server info address a:7687, got %q", info.Address())
	}
	if router.releaseCalls != 1 {
		t.Fatalf("expected the connection released, got %d", router.releaseCalls)
	}
}
