// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package jsonrepair parses JSON arrays out of unreliable LLM output.
// It escalates through repair strategies: direct parse, cleanup of code
// fences and Python literals, extraction of the outermost well-formed
// array, and finally concatenation of individually valid object fragments.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnparsable is returned when no repair strategy recovers an array.
// Callers treat it as recoverable: the partition fails, the job continues.
var ErrUnparsable = errors.New("jsonrepair: no valid JSON array recoverable")

var pythonLiterals = regexp.MustCompile(`\b(None|True|False)\b`)

// ParseArray extracts a JSON array of records from raw LLM output.
// A bare top-level object is promoted to a single-element array.
func ParseArray(raw string) ([]json.RawMessage, error) {
	if records, ok := tryParse(raw); ok {
		return records, nil
	}

	cleaned := Cleanup(raw)
	if records, ok := tryParse(cleaned); ok {
		return records, nil
	}

	if extracted, ok := extractArray(cleaned); ok {
		if records, ok := tryParse(extracted); ok {
			return records, nil
		}
	}

	if records := collectObjects(cleaned); len(records) > 0 {
		return records, nil
	}

	return nil, ErrUnparsable
}

// Cleanup strips code fences and rewrites Python literals (None, True,
// False) to their JSON forms. Literals inside string values are preserved.
func Cleanup(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return replaceLiteralsOutsideStrings(b.String())
}

func replaceLiteralsOutsideStrings(s string) string {
	var b strings.Builder
	inString := false
	start := 0

	flush := func(end int) {
		segment := s[start:end]
		if !inString {
			segment = pythonLiterals.ReplaceAllStringFunc(segment, func(lit string) string {
				switch lit {
				case "None":
					return "null"
				case "True":
					return "true"
				default:
					return "false"
				}
			})
		}
		b.WriteString(segment)
		start = end
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString && c == '\\' {
			i++
			continue
		}
		if c == '"' {
			if inString {
				flush(i + 1)
			} else {
				flush(i)
			}
			inString = !inString
		}
	}
	flush(len(s))
	return b.String()
}

// tryParse attempts a strict parse of s as an array or a single object.
func tryParse(s string) ([]json.RawMessage, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false
	}

	switch trimmed[0] {
	case '[':
		var records []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &records); err == nil {
			return records, true
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return []json.RawMessage{json.RawMessage(trimmed)}, true
		}
	}
	return nil, false
}

// extractArray finds the outermost balanced bracket pair, honoring string
// literals, and returns the enclosed candidate array.
func extractArray(s string) (string, bool) {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return "", false
	}

	depth := 0
	inString := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[open : i+1], true
			}
		}
	}
	return "", false
}

// collectObjects scans for balanced top-level {...} fragments and keeps the
// ones that parse as standalone objects, ignoring stray text between them.
func collectObjects(s string) []json.RawMessage {
	var records []json.RawMessage

	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end, ok := matchBrace(s, i)
		if !ok {
			break
		}
		fragment := s[i : end+1]
		if json.Valid([]byte(fragment)) {
			records = append(records, json.RawMessage(fragment))
			i = end
		}
	}
	return records
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// PlaceholderRecord is the filler inserted when an LLM response comes back
// short of the expected record count.
const PlaceholderRecord = `{"error": "record missing from response"}`

// ConformCount pads or truncates records to exactly want elements.
// Shortfalls are filled with placeholder error records.
func ConformCount(records []json.RawMessage, want int) []json.RawMessage {
	if want < 0 {
		want = 0
	}
	if len(records) > want {
		return records[:want]
	}
	for len(records) < want {
		records = append(records, json.RawMessage(PlaceholderRecord))
	}
	return records
}
