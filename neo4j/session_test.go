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
)

type fakeExplicitTx struct {
	runCalls    int
	commitCalls int
	rollbackErr error
}

func (t *fakeExplicitTx) Run(ctx context.Context, cypher string, params map[string]interface{}) (ResultWithContext, error) {
	t.runCalls++
	return nil, nil
}
func (t *fakeExplicitTx) Commit(ctx context.Context) error   { t.commitCalls++; return nil }
func (t *fakeExplicitTx) Rollback(ctx context.Context) error { return t.rollbackErr }
func (t *fakeExplicitTx) Close(ctx context.Context) error    { return nil }

type fakeSessionWithContext struct {
	tx          *fakeExplicitTx
	beginErr    error
	executeErr  error
	runResult   ResultWithContext
	closeCalls  int
	lastWork    ManagedTransactionWork
}

func (s *fakeSessionWithContext) LastBookmarks() Bookmarks { return nil }
func (s *fakeSessionWithContext) lastBookmark() string     { return "" }
func (s *fakeSessionWithContext) BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (ExplicitTransaction, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return s.tx, nil
}
func (s *fakeSessionWithContext) ExecuteRead(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error) {
	s.lastWork = work
	if s.executeErr != nil {
		return nil, s.executeErr
	}
	return work(nil)
}
func (s *fakeSessionWithContext) ExecuteWrite(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error) {
	s.lastWork = work
	if s.executeErr != nil {
		return nil, s.executeErr
	}
	return work(nil)
}
func (s *fakeSessionWithContext) Run(ctx context.Context, cypher string, params map[string]interface{}, configurers ...func(*TransactionConfig)) (ResultWithContext, error) {
	return s.runResult, nil
}
func (s *fakeSessionWithContext) Close(ctx context.Context) error { s.closeCalls++; return nil }
func (s *fakeSessionWithContext) legacy() Session                 { return nil }
func (s *fakeSessionWithContext) getServerInfo(ctx context.Context) (ServerInfo, error) {
	return nil, nil
}

func TestLegacySessionBeginTransactionWrapsDelegate(t *testing.T) {
	delegate := &fakeSessionWithContext{tx: &fakeExplicitTx{}}
	s := &session{delegate: delegate}

	tx, err := s.BeginTransaction()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := tx.Run("RETURN 1", nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if delegate.tx.runCalls != 1 {
		t.Fatalf("expected the delegate transaction's Run to be called, got %d calls", delegate.tx.runCalls)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if delegate.tx.commitCalls != 1 {
		t.Fatal("expected Commit forwarded to the delegate transaction")
	}
}

func TestLegacySessionBeginTransactionPropagatesError(t *testing.T) {
	delegate := &fakeSessionWithContext{beginErr: errors.New("begin failed")}
	s := &session{delegate: delegate}

	_, err := s.BeginTransaction()
	if err == nil {
		t.Fatal("expected the delegate's error to propagate")
	}
}

func TestLegacySessionExecuteWriteAdaptsTransactionWork(t *testing.T) {
	delegate := &fakeSessionWithContext{}
	s := &session{delegate: delegate}

	called := false
	result, err := s.ExecuteWrite(func(tx Transaction) (interface{}, error) {
		called = true
		if err := tx.Commit(); err != nil {
			t.Fatalf("unexpected error from adapted Commit: %s", err)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !called {
		t.Fatal("expected the legacy TransactionWork to be invoked")
	}
	if result != "ok" {
		t.Fatalf("expected 'ok', got %v", result)
	}
}

func TestLegacySessionCloseForwardsToDelegate(t *testing.T) {
	delegate := &fakeSessionWithContext{}
	s := &session{delegate: delegate}

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if delegate.closeCalls != 1 {
		t.Fatalf("expected Close forwarded once, got %d", delegate.closeCalls)
	}
}

func TestErroredSessionReturnsErrorFromEveryMethod(t *testing.T) {
	want := errors.New("session construction failed")
	s := &erroredSession{err: want}

	if _, err := s.BeginTransaction(); err != want {
		t.Fatalf("expected the construction error, got %v", err)
	}
	if _, err := s.ExecuteRead(nil); err != want {
		t.Fatalf("expected the construction error, got %v", err)
	}
	if _, err := s.Run("", nil); err != want {
		t.Fatalf("expected the construction error, got %v", err)
	}
	if err := s.Close(); err != want {
		t.Fatalf("expected the construction error, got %v", err)
	}
}
