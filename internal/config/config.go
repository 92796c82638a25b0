// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads orc's ambient runtime configuration — everything the
// event-sourced engine in the other internal packages does not itself own
// (data directory, owner id, logging level, binary paths, status-api bind
// address and bearer secret). Snapshot thresholds are fixed constants in
// internal/eventlog, not configurable here. Project definitions live in
// internal/projectstore, not here.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Config is the root of orc.hjson / orc.json.
type Config struct {
	DataDir string       `json:"data_dir"`
	OwnerID string       `json:"owner_id"`
	Logging LoggingConfig `json:"logging"`
	Status  StatusConfig  `json:"status"`
	Tools   ToolsConfig   `json:"tools"`
}

// LoggingConfig controls internal/logx.
type LoggingConfig struct {
	Level string `json:"level"` // debug|info|warn|error
}

// StatusConfig controls internal/statusapi.
type StatusConfig struct {
	ListenAddr   string `json:"listen_addr"`
	BearerSecret string `json:"bearer_secret"`
}

// ToolsConfig names each dialect's CLI binary.
type ToolsConfig struct {
	ABinary string `json:"a_binary"`
	BBinary string `json:"b_binary"`
	CBinary string `json:"c_binary"`
}

// Load reads and parses an HJSON (or plain JSON) config file: HJSON to an
// intermediate map, re-marshaled to JSON, then unmarshaled into Config —
// a two-step conversion that tolerates comments and trailing commas in
// the source file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: re-marshal: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Find looks for orc.hjson then orc.json in the current directory.
func Find() (string, error) {
	for _, name := range []string{"orc.hjson", "orc.json"} {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs, nil
			}
			return path, nil
		}
	}
	return "", fmt.Errorf("config: not found (looked for orc.hjson, orc.json)")
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Status.ListenAddr == "" {
		cfg.Status.ListenAddr = "127.0.0.1:8787"
	}
	if cfg.Tools.ABinary == "" {
		cfg.Tools.ABinary = "claude"
	}
	if cfg.Tools.BBinary == "" {
		cfg.Tools.BBinary = "codex"
	}
	if cfg.Tools.CBinary == "" {
		cfg.Tools.CBinary = "agentc"
	}
}
