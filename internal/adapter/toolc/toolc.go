// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package toolc implements the tool-C adapter dialect: a generic
// stream-json CLI with an explicit "result" completion event and a
// one-time transient-failure retry that the other two dialects don't have.
package toolc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"orc/internal/adapter"
	"orc/internal/errcode"
)

// transientHints are substrings (checked case-insensitively) that mark a
// nonzero exit as worth retrying once.
var transientHints = []string{"quota", "retry", "rate limit", "429", "temporarily unavailable"}

// Adapter drives the tool-C CLI binary.
type Adapter struct {
	Binary string // defaults to "agentc" if empty
}

// New returns an Adapter for the given binary path/name.
func New(binary string) *Adapter {
	if binary == "" {
		binary = "agentc"
	}
	return &Adapter{Binary: binary}
}

func (a *Adapter) Run(ctx context.Context, req adapter.Request) (adapter.Result, error) {
	result, err, combined := a.runOnce(ctx, req)
	if err == nil {
		return result, nil
	}
	if !isRetryable(err, combined) {
		return adapter.Result{}, err
	}
	result, err, _ = a.runOnce(ctx, req)
	return result, err
}

func isRetryable(err error, combined string) bool {
	code, ok := errcode.As(err)
	if !ok || code != errcode.ECLIExitNonzero {
		return false
	}
	lower := strings.ToLower(combined)
	for _, hint := range transientHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func (a *Adapter) runOnce(ctx context.Context, req adapter.Request) (adapter.Result, error, string) {
	argv := []string{a.Binary, "-p", req.Prompt, "--output-format", "stream-json"}
	if req.ResumeKey != "" {
		argv = append(argv, "--resume", req.ResumeKey)
	}

	var jsonLines []string
	var combined strings.Builder
	onLine := func(stream adapter.Stream, line string) {
		combined.WriteString(line)
		combined.WriteByte('\n')
		isJSON := stream == adapter.StreamStdout && adapter.LooksLikeJSONObject(line)
		if req.OnLine != nil {
			if stream == adapter.StreamStdout && !isJSON {
				req.OnLine(adapter.StreamDiagnostic, line)
			} else {
				req.OnLine(stream, line)
			}
		}
		if isJSON {
			jsonLines = append(jsonLines, line)
			emitProgress(line, req.OnProgress)
		}
	}

	if err := adapter.RunProcess(ctx, argv, req.Cwd, "", onLine, req.OnPID); err != nil {
		return adapter.Result{}, err, combined.String()
	}

	result, err := finalize(jsonLines)
	return result, err, combined.String()
}

type event struct {
	Type      string  `json:"type"`
	SessionID *string `json:"session_id"`
	Role      *string `json:"role"`
	Delta     *string `json:"delta"`
	Status    *string `json:"status"`
}

func emitProgress(line string, hook adapter.ProgressHook) {
	if hook == nil {
		return
	}
	var ev event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return
	}
	if ev.Type != "message" || ev.Role == nil || *ev.Role != "assistant" {
		return
	}
	text := extractMessageText(line, ev)
	if text != "" {
		hook(adapter.Progress{Kind: adapter.ProgressAssistantText, Text: text})
	}
}

func extractMessageText(line string, ev event) string {
	if ev.Delta != nil && *ev.Delta != "" {
		return *ev.Delta
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return ""
	}
	return genericText(fields)
}

func genericText(fields map[string]interface{}) string {
	for _, key := range []string{"text", "content", "message", "response", "delta"} {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func finalize(jsonLines []string) (adapter.Result, error) {
	var acc adapter.TextAccumulator
	var sessionID string
	var sawResult bool
	var status string

	for _, line := range jsonLines {
		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "init":
			if ev.SessionID != nil && *ev.SessionID != "" {
				sessionID = *ev.SessionID
			}
		case "message":
			if ev.Role != nil && *ev.Role == "assistant" {
				acc.Append(extractMessageText(line, ev))
			}
		case "result":
			sawResult = true
			if ev.Status != nil {
				status = *ev.Status
			}
		}
	}

	if !sawResult {
		return adapter.Result{}, errcode.New(errcode.EAdapterMissingResult, "no result event observed")
	}
	if status != "success" {
		return adapter.Result{}, errcode.New(errcode.ECLIExitNonzero, fmt.Sprintf("result status %q", status))
	}
	if sessionID == "" {
		return adapter.Result{}, adapter.ErrMissingSessionKey()
	}

	return adapter.Result{
		OK:            true,
		AssistantText: acc.String(),
		AdapterState:  map[string]string{"session_id": sessionID},
	}, nil
}
