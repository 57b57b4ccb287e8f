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


// Package cypher turns raw LLM-generated Cypher scripts into individually
// executable statements. Normalization is a pure transformation: strip code
// fences and comments, split on semicolons outside string literals, and
// append a RETURN clause to match-only statements so the server accepts them.
package cypher

import (
	"strings"
)

// Normalize converts a raw script into executable statements.
// Returns nil when the script contains no statements after cleanup.
func Normalize(script string) []string {
	cleaned := StripFences(script)
	cleaned = StripComments(cleaned)

	var statements []string
	for _, stmt := range SplitStatements(cleaned) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		statements = append(statements, EnsureReturn(stmt))
	}
	return statements
}

// StripFences removes markdown code fences, including language tags such
// as ```cypher, anywhere in the script.
func StripFences(script string) string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// StripComments removes // line comments and /* */ block comments while
// preserving comment-like sequences inside string literals.
func StripComments(script string) string {
	var b strings.Builder
	var quote byte
	inBlock := false

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inBlock {
			if c == '*' && i+1 < len(script) && script[i+1] == '/' {
				inBlock = false
				i++
			}
			continue
		}

		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(script) {
				i++
				b.WriteByte(script[i])
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(script) && script[i+1] == '/':
			for i < len(script) && script[i] != '\n' {
				i++
			}
			if i < len(script) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			inBlock = true
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SplitStatements splits a script on semicolons that sit outside string
// literals. The semicolons themselves are dropped.
func SplitStatements(script string) []string {
	var statements []string
	var b strings.Builder
	var quote byte

	for i := 0; i < len(script); i++ {
		c := script[i]

		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(script) {
				i++
				b.WriteByte(script[i])
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			quote = c
			b.WriteByte(c)
		case ';':
			statements = append(statements, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if b.Len() > 0 {
		statements = append(statements, b.String())
	}
	return statements
}

// EnsureReturn appends "RETURN *" to statements that read the graph but
// never yield or mutate anything, which some servers reject outright.
func EnsureReturn(stmt string) string {
	upper := strings.ToUpper(stmt)

	if !strings.Contains(upper, "MATCH") {
		return stmt
	}
	for _, keyword := range []string{"RETURN", "CREATE", "MERGE", "SET", "DELETE", "REMOVE", "CALL", "WITH"} {
		if containsKeyword(upper, keyword) {
			return stmt
		}
	}
	return stmt + " RETURN *"
}

// containsKeyword reports whether upper contains keyword bounded by
// non-identifier characters.
func containsKeyword(upper, keyword string) bool {
	for start := 0; ; {
		idx := strings.Index(upper[start:], keyword)
		if idx < 0 {
			return false
		}
		idx += start
		before := idx == 0 || !isIdentChar(upper[idx-1])
		afterIdx := idx + len(keyword)
		after := afterIdx >= len(upper) || !isIdentChar(upper[afterIdx])
		if before && after {
			return true
		}
		start = idx + len(keyword)
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
