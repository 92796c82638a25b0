// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package adapter

import "strings"

// TextAccumulator appends assistant-text chunks in document order,
// suppressing consecutive duplicates — some tools emit both a delta and a
// final consolidated chunk carrying the same text.
type TextAccumulator struct {
	chunks []string
}

// Append adds chunk unless it equals the immediately preceding chunk.
func (a *TextAccumulator) Append(chunk string) {
	if chunk == "" {
		return
	}
	if n := len(a.chunks); n > 0 && a.chunks[n-1] == chunk {
		return
	}
	a.chunks = append(a.chunks, chunk)
}

// String joins all accumulated chunks with no separator — each chunk is
// already a complete fragment of the assistant's running text.
func (a *TextAccumulator) String() string {
	return strings.Join(a.chunks, "")
}

// LooksLikeJSONObject is a cheap heuristic for classifying a captured line
// as a parse candidate: its trimmed form must start with '{' and end with
// '}'.
func LooksLikeJSONObject(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}")
}
