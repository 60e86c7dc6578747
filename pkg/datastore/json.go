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
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// JSON is a value prepared for binding to a JSON/JSONB column.
//
// Its text form matches what the datastore services have always written:
// items separated by ", ", keys by ": ", non-ASCII characters escaped as
// \uXXXX. Fractional numbers use the shortest round-trip form, with
// exponent notation below 1e-4 and from 1e16 up. A float with an integral
// value is written like an integer (1.0 as 1, 1e20 in full).
//
// Object keys keep the order the encoder produced them in: insertion order
// for ordered.Map (package github.com/teradata-labs/datastore/pkg/ordered),
// declaration order for structs, sorted for Go maps.
type JSON struct {
	value any
	text  string
}

// NewJSON encodes value.
func NewJSON(value any) (JSON, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return JSON{}, fmt.Errorf("failed to encode JSON value: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return JSON{}, fmt.Errorf("encoder produced invalid JSON for %T", value)
	}

	var b strings.Builder
	b.Grow(len(raw) + len(raw)/4)
	writeJSONValue(&b, gjson.ParseBytes(raw))
	return JSON{value: value, text: b.String()}, nil
}

// Raw returns the wrapped value.
func (j JSON) Raw() any {
	return j.value
}

func (j JSON) String() string {
	return j.text
}

// Value implements driver.Valuer; the JSON text is bound as a string.
func (j JSON) Value() (driver.Value, error) {
	return j.text, nil
}

// MarshalJSON implements json.Marshaler.
func (j JSON) MarshalJSON() ([]byte, error) {
	if j.text == "" {
		return []byte("null"), nil
	}
	return []byte(j.text), nil
}

func writeJSONValue(b *strings.Builder, r gjson.Result) {
	switch r.Type {
	case gjson.Null:
		b.WriteString("null")
	case gjson.False:
		b.WriteString("false")
	case gjson.True:
		b.WriteString("true")
	case gjson.Number:
		writeJSONNumber(b, r.Raw)
	case gjson.String:
		writeJSONString(b, r.Str)
	case gjson.JSON:
		open, closing := byte('['), byte(']')
		if r.IsObject() {
			open, closing = '{', '}'
		}
		b.WriteByte(open)
		first := true
		r.ForEach(func(key, value gjson.Result) bool {
			if !first {
				b.WriteString(", ")
			}
			first = false
			if key.Exists() {
				writeJSONString(b, key.Str)
				b.WriteString(": ")
			}
			writeJSONValue(b, value)
			return true
		})
		b.WriteByte(closing)
	}
}

// writeJSONNumber writes numbers with a fraction or exponent in the shortest
// round-trip form, switching to exponent notation below 1e-4 and from 1e16 up.
// Integral floats are indistinguishable from integers once encoded and keep
// their integer form.
func writeJSONNumber(b *strings.Builder, raw string) {
	if !strings.ContainsAny(raw, ".eE") {
		b.WriteString(raw)
		return
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		b.WriteString(raw)
		return
	}
	b.WriteString(formatFloat(f))
}

func formatFloat(f float64) string {
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	e, _ := strconv.Atoi(exp)
	if e < -4 || e >= 16 {
		return fmt.Sprintf("%se%+03d", mantissa, e)
	}
	text := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(text, ".") {
		text += ".0"
	}
	return text
}

const hexDigits = "0123456789abcdef"

// writeJSONString quotes s, escaping everything outside printable ASCII.
func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				b.WriteRune(r)
			case r > 0xffff:
				r -= 0x10000
				writeUnicodeEscape(b, 0xd800|((r>>10)&0x3ff))
				writeUnicodeEscape(b, 0xdc00|(r&0x3ff))
			default:
				writeUnicodeEscape(b, r)
			}
		}
	}
	b.WriteByte('"')
}

func writeUnicodeEscape(b *strings.Builder, r rune) {
	b.WriteString(`\u`)
	b.WriteByte(hexDigits[(r>>12)&0xf])
	b.WriteByte(hexDigits[(r>>8)&0xf])
	b.WriteByte(hexDigits[(r>>4)&0xf])
	b.WriteByte(hexDigits[r&0xf])
}
