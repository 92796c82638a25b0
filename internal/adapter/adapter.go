// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package adapter defines the shared interface and process-running
// machinery behind all three tool dialects. Each dialect package (toola,
// toolb, toolc) builds its own argv and parses its own NDJSON shape, but
// all of them drive a child process through RunProcess in this package and
// report lines through the same LineSink shape.
package adapter

import (
	"context"

	"orc/internal/errcode"
)

// ProgressKind distinguishes the two progress shapes an adapter can emit.
type ProgressKind string

const (
	ProgressAssistantText ProgressKind = "assistant_text"
	ProgressActivity      ProgressKind = "activity"
)

// Progress is one streamed update, forwarded to the coordinator's
// onJobProgress hook as the child process emits it.
type Progress struct {
	Kind     ProgressKind
	Text     string // set when Kind == ProgressAssistantText
	Activity string // "thinking" | "tool", set when Kind == ProgressActivity
	Label    string // e.g. "bash", "reasoning", set when Kind == ProgressActivity
}

// ProgressHook receives streamed progress. May be nil.
type ProgressHook func(Progress)

// Stream identifies which pipe a captured line came from, for job-log
// prefixing ("[stdout] ", "[stderr] ", "[diagnostic] ").
type Stream string

const (
	StreamStdout     Stream = "stdout"
	StreamStderr     Stream = "stderr"
	StreamDiagnostic Stream = "diagnostic"
)

// LineSink receives every captured line, verbatim, as it arrives.
type LineSink func(stream Stream, line string)

// Request is what processJob hands an adapter.
type Request struct {
	Prompt     string
	Cwd        string
	TimeoutSec int
	ResumeKey  string // empty means "no resume"
	OnProgress ProgressHook
	OnLine     LineSink
	OnPID      func(pid int) // optional: called once the child process starts
}

// Result is what an adapter reports back. AdapterState is merged over the
// session's existing adapter_state by the caller, never replaced wholesale.
type Result struct {
	OK            bool
	AssistantText string
	AdapterState  map[string]string
}

// Adapter runs one prompt against one CLI tool dialect to completion (or
// failure). Implementations never return a bare error for domain-level
// adapter failures — those come back as an *errcode.Error wrapping the
// appropriate E_CLI_*/E_ADAPTER_* code, and the coordinator captures them
// into JobFailed rather than letting them propagate as exceptions.
type Adapter interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// MaxResultExcerptChars is the result_excerpt truncation length: the first
// this-many characters (runes) of the assistant's final text.
const MaxResultExcerptChars = 400

// Excerpt returns the first MaxResultExcerptChars runes of s.
func Excerpt(s string) string {
	r := []rune(s)
	if len(r) <= MaxResultExcerptChars {
		return s
	}
	return string(r[:MaxResultExcerptChars])
}

// ErrMissingSessionKey is the shared error dialects return when a tool
// finished successfully but never surfaced a resume key.
func ErrMissingSessionKey() error {
	return errcode.New(errcode.EAdapterSessionKeyMissing, "adapter completed without a resume key")
}
