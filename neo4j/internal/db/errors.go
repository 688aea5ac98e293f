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

package db

import "fmt"

// Neo4jError is a server-reported failure, classified by its code
// (e.g. "Neo.ClientError.Cluster.NotALeader"). The router's error
// handler inspects Code to decide what routing-table mutation to
// perform.
type Neo4jError struct {
	Code    string
	Message string
}

func (e *Neo4jError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ProtocolError means the server replied in a way that violated the
// shape the driver depends on (malformed routing record, unexpected
// record count, unknown server role).
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Message
}

// ServiceUnavailableError means the driver exhausted every candidate
// router (or the seed resolver failed) without finding one able to
// answer the discovery procedure (spec.md §7 kind 5, §8 invariant 6).
type ServiceUnavailableError struct {
	Message string
}

func (e *ServiceUnavailableError) Error() string {
	return "service unavailable: " + e.Message
}

// SessionExpiredError means an address the router previously handed
// out stopped being usable (pool lost, no longer leader); the caller
// may retry on a fresh session (spec.md §7 kinds 1-3).
type SessionExpiredError struct {
	Message string
}

func (e *SessionExpiredError) Error() string {
	return "session expired: " + e.Message
}

// Well-known Neo4jError codes the router's error handler and the
// routing procedure runner both classify against.
const (
	CodeDatabaseNotFound          = "Neo.ClientError.Database.DatabaseNotFound"
	CodeProcedureNotFound         = "Neo.ClientError.Procedure.ProcedureNotFound"
	CodeUnauthorized              = "Neo.ClientError.Security.Unauthorized"
	CodeNotALeader                = "Neo.ClientError.Cluster.NotALeader"
	CodeForbiddenOnReadOnlyDb     = "Neo.ClientError.General.ForbiddenOnReadOnlyDatabase"
	CodeNotWritable               = "Neo.ClientError.General.NotWritable"
	CodeDatabaseUnavailable       = "Neo.TransientError.General.DatabaseUnavailable"
	CodeServiceUnavailableTreeTop = "ServiceUnavailable"
)

// IsWriteError reports whether code indicates the server rejected a
// write because it is not (or no longer) able to serve as leader.
func IsWriteError(code string) bool {
	switch code {
	case CodeNotALeader, CodeForbiddenOnReadOnlyDb, CodeNotWritable:
		return true
	}
	return false
}

// IsDatabaseUnavailable reports whether code indicates the specific
// database (not the whole server) is transiently down.
func IsDatabaseUnavailable(code string) bool {
	return code == CodeDatabaseUnavailable
}
