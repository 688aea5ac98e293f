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

// Bookmarks is an ordered sequence of opaque causal-consistency
// tokens, spec.md §3. The core never interprets their contents, only
// forwards them to discovery and transaction begins.
type Bookmarks []string

// BookmarksFromRawValues builds a Bookmarks value from a variadic list
// of raw bookmark strings, discarding any empty ones.
func BookmarksFromRawValues(values ...string) Bookmarks {
	out := make(Bookmarks, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CombineBookmarks merges any number of Bookmarks values into one,
// preserving order and dropping empties.
func CombineBookmarks(sets ...Bookmarks) Bookmarks {
	var out Bookmarks
	for _, s := range sets {
		for _, b := range s {
			if b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
