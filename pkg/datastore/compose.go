// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package datastore

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// Compose substitutes quoted identifiers into the {} placeholders of query,
// in order. "{{" and "}}" produce literal braces. Without identifiers the
// query is returned unchanged, braces included.
//
// Identifiers are quoted with pgx.Identifier.Sanitize (double quotes), which
// PostgreSQL and SQLite accept.
func Compose(query string, idents ...pgx.Identifier) (string, error) {
	if len(idents) == 0 {
		return query, nil
	}

	var b strings.Builder
	b.Grow(len(query))
	next := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '{' && i+1 < len(query) && query[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(query) && query[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{' && i+1 < len(query) && query[i+1] == '}':
			if next >= len(idents) {
				return "", programmerError("query has more placeholders than the %d identifiers given", len(idents))
			}
			if len(idents[next]) == 0 {
				return "", programmerError("identifier %d is empty", next)
			}
			b.WriteString(idents[next].Sanitize())
			next++
			i++
		case c == '{' || c == '}':
			return "", programmerError("unmatched %q at offset %d in composed query", c, i)
		default:
			b.WriteByte(c)
		}
	}
	if next != len(idents) {
		return "", programmerError("query has %d placeholders but %d identifiers were given", next, len(idents))
	}
	return b.String(), nil
}
