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

import "github.com/neo4j/neo4j-go-driver/v5/neo4j/internal/bolt"

// AuthToken is the opaque credentials object sent at handshake time,
// spec.md §6. The core never inspects its contents beyond forwarding
// it to the Connector.
type AuthToken struct {
	tokens bolt.AuthToken
}

func NoAuth() AuthToken {
	return AuthToken{tokens: bolt.AuthToken{"scheme": "none"}}
}

func BasicAuth(username, password, realm string) AuthToken {
	tokens := bolt.AuthToken{
		"scheme":      "basic",
		"principal":   username,
		"credentials": password,
	}
	if realm != "" {
		tokens["realm"] = realm
	}
	return AuthToken{tokens: tokens}
}

func BearerAuth(token string) AuthToken {
	return AuthToken{tokens: bolt.AuthToken{
		"scheme":      "bearer",
		"credentials": token,
	}}
}

func CustomAuth(scheme, principal, credentials, realm string, parameters map[string]interface{}) AuthToken {
	tokens := bolt.AuthToken{
		"scheme":      scheme,
		"principal":   principal,
		"credentials": credentials,
	}
	if realm != "" {
		tokens["realm"] = realm
	}
	if parameters != nil {
		tokens["parameters"] = parameters
	}
	return AuthToken{tokens: tokens}
}
