// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package toolb implements the tool-B adapter dialect: a Codex-exec-style
// CLI whose events wrap nested "item" records, and whose resume key is a
// thread_id rather than a session_id.
package toolb

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"orc/internal/adapter"
)

// Adapter drives the tool-B CLI binary.
type Adapter struct {
	Binary string // defaults to "codex" if empty
}

// New returns an Adapter for the given binary path/name.
func New(binary string) *Adapter {
	if binary == "" {
		binary = "codex"
	}
	return &Adapter{Binary: binary}
}

func (a *Adapter) Run(ctx context.Context, req adapter.Request) (adapter.Result, error) {
	var argv []string
	if req.ResumeKey != "" {
		argv = []string{a.Binary, "exec", "--dangerously-bypass-approvals-and-sandbox", "resume", req.ResumeKey, "--json", req.Prompt}
	} else {
		argv = []string{a.Binary, "exec", "--dangerously-bypass-approvals-and-sandbox", "--json", req.Prompt}
	}

	var jsonLines []string
	onLine := func(stream adapter.Stream, line string) {
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
		return adapter.Result{}, err
	}

	return finalize(jsonLines)
}

type envelope struct {
	Type     string          `json:"type"`
	ThreadID *string         `json:"thread_id"`
	Item     json.RawMessage `json:"item"`
}

type item struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Command string `json:"command"`
}

func activityLabel(command string) string {
	if strings.Contains(command, "/bin/zsh") || strings.Contains(command, "/bin/bash") {
		return "bash"
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "tool"
	}
	base := filepath.Base(fields[0])
	if base == "" || base == "." {
		return "tool"
	}
	return base
}

func decodeItem(raw json.RawMessage) (item, bool) {
	if len(raw) == 0 {
		return item{}, false
	}
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		return item{}, false
	}
	return it, true
}

func emitProgress(line string, hook adapter.ProgressHook) {
	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return
	}
	if env.Type != "item.started" && env.Type != "item.completed" {
		return
	}
	it, ok := decodeItem(env.Item)
	if !ok {
		return
	}
	if hook == nil {
		return
	}
	switch it.Type {
	case "agent_message":
		if it.Text != "" {
			hook(adapter.Progress{Kind: adapter.ProgressAssistantText, Text: it.Text})
		}
	case "reasoning":
		hook(adapter.Progress{Kind: adapter.ProgressActivity, Activity: "thinking", Label: "reasoning"})
	case "command_execution":
		hook(adapter.Progress{Kind: adapter.ProgressActivity, Activity: "tool", Label: activityLabel(it.Command)})
	}
}

func finalize(jsonLines []string) (adapter.Result, error) {
	var acc adapter.TextAccumulator
	var threadID string

	for _, line := range jsonLines {
		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			continue
		}
		if env.ThreadID != nil && *env.ThreadID != "" {
			threadID = *env.ThreadID
		}
		if env.Type == "item.completed" {
			if it, ok := decodeItem(env.Item); ok && it.Type == "agent_message" && it.Text != "" {
				acc.Append(it.Text)
			}
		}
	}

	if threadID == "" {
		return adapter.Result{}, adapter.ErrMissingSessionKey()
	}

	return adapter.Result{
		OK:            true,
		AssistantText: acc.String(),
		AdapterState:  map[string]string{"thread_id": threadID},
	}, nil
}
