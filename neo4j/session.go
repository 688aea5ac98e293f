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

import "context"

// Transaction is handed to a TransactionWork function run through the
// legacy, non-context Session API.
type Transaction interface {
	Run(cypher string, params map[string]interface{}) (ResultWithContext, error)
	Commit() error
	Rollback() error
	Close() error
}

// Session is the legacy, non-context counterpart of SessionWithContext,
// kept for callers migrating off the pre-context API. Every call binds
// context.Background().
type Session interface {
	LastBookmarks() Bookmarks
	BeginTransaction(configurers ...func(*TransactionConfig)) (Transaction, error)
	ExecuteRead(work TransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error)
	ExecuteWrite(work TransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error)
	Run(cypher string, params map[string]interface{}, configurers ...func(*TransactionConfig)) (ResultWithContext, error)
	Close() error
}

type session struct {
	delegate SessionWithContext
}

func (s *session) LastBookmarks() Bookmarks {
	return s.delegate.LastBookmarks()
}

func (s *session) BeginTransaction(configurers ...func(*TransactionConfig)) (Transaction, error) {
	tx, err := s.delegate.BeginTransaction(context.Background(), configurers...)
	if err != nil {
		return nil, err
	}
	return &legacyTransaction{delegate: tx}, nil
}

func (s *session) ExecuteRead(work TransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error) {
	return s.delegate.ExecuteRead(context.Background(), adaptTransactionWork(work), configurers...)
}

func (s *session) ExecuteWrite(work TransactionWork, configurers ...func(*TransactionConfig)) (interface{}, error) {
	return s.delegate.ExecuteWrite(context.Background(), adaptTransactionWork(work), configurers...)
}

func (s *session) Run(cypher string, params map[string]interface{}, configurers ...func(*TransactionConfig)) (ResultWithContext, error) {
	return s.delegate.Run(context.Background(), cypher, params, configurers...)
}

func (s *session) Close() error {
	return s.delegate.Close(context.Background())
}

// adaptTransactionWork lets a legacy TransactionWork run against a
// ManagedTransaction, since the legacy Transaction it expects is a
// strict superset of ManagedTransaction's Run method.
func adaptTransactionWork(work TransactionWork) ManagedTransactionWork {
	return func(tx ManagedTransaction) (interface{}, error) {
		return work(&managedAsLegacyTransaction{delegate: tx})
	}
}

type managedAsLegacyTransaction struct {
	delegate ManagedTransaction
}

func (t *managedAsLegacyTransaction) Run(cypher string, params map[string]interface{}) (ResultWithContext, error) {
	return t.delegate.Run(context.Background(), cypher, params)
}

func (t *managedAsLegacyTransaction) Commit() error   { return nil }
func (t *managedAsLegacyTransaction) Rollback() error { return nil }
func (t *managedAsLegacyTransaction) Close() error    { return nil }

type legacyTransaction struct {
	delegate ExplicitTransaction
}

func (t *legacyTransaction) Run(cypher string, params map[string]interface{}) (ResultWithContext, error) {
	return t.delegate.Run(context.Background(), cypher, params)
}

func (t *legacyTransaction) Commit() error {
	return t.delegate.Commit(context.Background())
}

func (t *legacyTransaction) Rollback() error {
	return t.delegate.Rollback(context.Background())
}

func (t *legacyTransaction) Close() error {
	return t.delegate.Close(context.Background())
}

type erroredSession struct {
	err error
}

func (s *erroredSession) LastBookmarks() Bookmarks { return nil }
func (s *erroredSession) BeginTransaction(...func(*TransactionConfig)) (Transaction, error) {
	return nil, s.err
}
func (s *erroredSession) ExecuteRead(TransactionWork, ...func(*TransactionConfig)) (interface{}, error) {
	return nil, s.err
}
func (s *erroredSession) ExecuteWrite(TransactionWork, ...func(*TransactionConfig)) (interface{}, error) {
	return nil, s.err
}
func (s *erroredSession) Run(string, map[string]interface{}, ...func(*TransactionConfig)) (ResultWithContext, error) {
	return nil, s.err
}
func (s *erroredSession) Close() error { return s.err }
