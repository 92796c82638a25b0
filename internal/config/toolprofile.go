// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ToolProfiles holds named, reusable default_args sets per tool, loaded
// from tools.yaml. Profiles are looked up only through Resolve;
// projectstore.Create does not consult them, and a new project's
// default_args starts empty.
type ToolProfiles struct {
	Profiles map[string]map[string][]string `yaml:"profiles"` // profile name -> tool -> args
}

// LoadToolProfiles reads a tools.yaml file. A missing file is not an
// error — it yields an empty profile set.
func LoadToolProfiles(path string) (*ToolProfiles, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ToolProfiles{Profiles: map[string]map[string][]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var tp ToolProfiles
	if err := yaml.Unmarshal(data, &tp); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if tp.Profiles == nil {
		tp.Profiles = map[string]map[string][]string{}
	}
	return &tp, nil
}

// Resolve returns the default_args for one tool under the named profile.
func (tp *ToolProfiles) Resolve(profile, tool string) ([]string, bool) {
	toolArgs, ok := tp.Profiles[profile]
	if !ok {
		return nil, false
	}
	args, ok := toolArgs[tool]
	return args, ok
}
