// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package toola implements the tool-A adapter dialect: a Claude-Code-style
// CLI that speaks top-level-"type" stream-json events and surfaces its
// resume key as a top-level session_id.
package toola

import (
	"context"
	"encoding/json"

	"orc/internal/adapter"
)

// Adapter drives the tool-A CLI binary.
type Adapter struct {
	Binary string // defaults to "claude" if empty
}

// New returns an Adapter for the given binary path/name.
func New(binary string) *Adapter {
	if binary == "" {
		binary = "claude"
	}
	return &Adapter{Binary: binary}
}

func (a *Adapter) Run(ctx context.Context, req adapter.Request) (adapter.Result, error) {
	argv := []string{a.Binary, "-p", "--dangerously-skip-permissions", "--verbose", "--output-format", "stream-json"}
	if req.ResumeKey != "" {
		argv = append(argv, "-r", req.ResumeKey)
	}
	argv = append(argv, req.Prompt)

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

type event struct {
	Type      string          `json:"type"`
	SessionID *string         `json:"session_id"`
	Message   *message        `json:"message"`
	Result    *string         `json:"result"`
	Raw       json.RawMessage `json:"-"`
}

type message struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

func emitProgress(line string, hook adapter.ProgressHook) {
	if hook == nil {
		return
	}
	var ev event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return
	}
	if ev.Type != "assistant" || ev.Message == nil {
		return
	}
	for _, block := range ev.Message.Content {
		switch block.Type {
		case "text":
			hook(adapter.Progress{Kind: adapter.ProgressAssistantText, Text: block.Text})
		case "tool_use":
			label := block.Name
			if label == "" {
				label = "tool"
			}
			hook(adapter.Progress{Kind: adapter.ProgressActivity, Activity: "tool", Label: label})
		case "thinking":
			hook(adapter.Progress{Kind: adapter.ProgressActivity, Activity: "thinking", Label: "thinking"})
		}
	}
}

func finalize(jsonLines []string) (adapter.Result, error) {
	var acc adapter.TextAccumulator
	var sessionID string
	var resultText *string

	for _, line := range jsonLines {
		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.SessionID != nil && *ev.SessionID != "" {
			sessionID = *ev.SessionID
		}
		if ev.Type == "assistant" && ev.Message != nil {
			for _, block := range ev.Message.Content {
				if block.Type == "text" {
					acc.Append(block.Text)
				}
			}
		}
		if ev.Type == "result" && ev.Result != nil {
			resultText = ev.Result
		}
	}

	assistantText := acc.String()
	if resultText != nil {
		assistantText = *resultText
	}

	if sessionID == "" {
		return adapter.Result{}, adapter.ErrMissingSessionKey()
	}

	return adapter.Result{
		OK:            true,
		AssistantText: assistantText,
		AdapterState:  map[string]string{"session_id": sessionID},
	}, nil
}
