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

import idb "github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/db"

// ServerInfo describes the server a session ended up talking to.
type ServerInfo interface {
	Address() string
	Agent() string
	ProtocolVersion() (int, int)
}

type simpleServerInfo struct {
	address         string
	agent           string
	protocolVersion idb.ProtocolVersion
}

func (s *simpleServerInfo) Address() string { return s.address }
func (s *simpleServerInfo) Agent() string   { return s.agent }
func (s *simpleServerInfo) ProtocolVersion() (int, int) {
	return s.protocolVersion.Major, s.protocolVersion.Minor
}
