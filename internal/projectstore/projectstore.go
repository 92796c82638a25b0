// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package projectstore owns the durable project registry (config.json):
// project definitions, their enabled tools, and per-tool default args.
// Written with a temp-file-and-rename+fsync discipline, watched optionally
// with fsnotify so an operator hand-editing the file on disk is picked up
// without a restart.
package projectstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"orc/internal/errcode"
	"orc/internal/logx"
)

var nameRe = regexp.MustCompile(`^[a-z0-9_-]{1,40}$`)

// ProjectConfig is one project's durable definition.
type ProjectConfig struct {
	Path         string              `json:"path"`
	EnabledTools []string            `json:"enabled_tools"`
	DefaultTool  string              `json:"default_tool"`
	DefaultArgs  map[string][]string `json:"default_args"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type fileFormat struct {
	Version  int                      `json:"version"`
	OwnerID  string                   `json:"owner_id"`
	Projects map[string]ProjectConfig `json:"projects"`
}

// Store is the in-memory mirror of config.json, kept consistent with disk
// by mutex-guarded read-modify-write on every mutation.
type Store struct {
	mu   sync.RWMutex
	path string
	log  *logx.Logger

	ownerID  string
	projects map[string]ProjectConfig

	watcher *fsnotify.Watcher
}

// Open loads path (creating an empty registry if missing) and returns a
// Store. ownerID seeds a freshly created registry only; on an existing file
// it is ignored in favor of the persisted value.
func Open(path, ownerID string) (*Store, error) {
	s := &Store{
		path:     path,
		log:      logx.New("projectstore"),
		ownerID:  ownerID,
		projects: make(map[string]ProjectConfig),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("projectstore: mkdir: %w", err)
		}
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("projectstore: read %s: %w", path, err)
	default:
		var ff fileFormat
		if err := json.Unmarshal(data, &ff); err != nil {
			return nil, fmt.Errorf("projectstore: corrupt %s: %w", path, err)
		}
		s.ownerID = ff.OwnerID
		if ff.Projects != nil {
			s.projects = ff.Projects
		}
	}
	return s, nil
}

// Watch starts an fsnotify watch on the registry file's directory so
// external edits (an operator hand-fixing a path) are reloaded without a
// restart. Call at most once.
func (s *Store) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("projectstore: watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("projectstore: watch dir: %w", err)
	}
	s.watcher = w
	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	for event := range s.watcher.Events {
		if filepath.Clean(event.Name) != filepath.Clean(s.path) {
			continue
		}
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		if err := s.reload(); err != nil {
			s.log.Warn("reload after external edit failed: %v", err)
		} else {
			s.log.Info("reloaded project registry after external edit")
		}
	}
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerID = ff.OwnerID
	s.projects = ff.Projects
	return nil
}

// Close stops the watcher, if any.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// ValidName reports whether name matches the project-name grammar.
func ValidName(name string) bool { return nameRe.MatchString(name) }

// Get returns a copy of project name's config.
func (s *Store) Get(name string) (ProjectConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[name]
	return p, ok
}

// List returns a copy of every registered project, keyed by name.
func (s *Store) List() map[string]ProjectConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ProjectConfig, len(s.projects))
	for k, v := range s.projects {
		out[k] = v
	}
	return out
}

// Create registers a new project. Fails with E_PROJECT_EXISTS,
// E_INVALID_PATH, or E_INVALID_TOOLSET.
func (s *Store) Create(name, path string, enabledTools []string, defaultTool string) (ProjectConfig, error) {
	if !ValidName(name) {
		return ProjectConfig{}, errcode.New(errcode.EInvalidToolset, "invalid project name "+name)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return ProjectConfig{}, errcode.New(errcode.EInvalidPath, "path does not exist: "+path)
	}
	if len(enabledTools) == 0 {
		return ProjectConfig{}, errcode.New(errcode.EInvalidToolset, "at least one tool must be enabled")
	}
	if !containsTool(enabledTools, defaultTool) {
		return ProjectConfig{}, errcode.New(errcode.EInvalidToolset, "default_tool must be one of enabled_tools")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[name]; exists {
		return ProjectConfig{}, errcode.New(errcode.EProjectExists, "project already exists: "+name)
	}

	now := time.Now().UTC()
	cfg := ProjectConfig{
		Path:         path,
		EnabledTools: append([]string(nil), enabledTools...),
		DefaultTool:  defaultTool,
		DefaultArgs:  map[string][]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.projects[name] = cfg
	if err := s.persistLocked(); err != nil {
		delete(s.projects, name)
		return ProjectConfig{}, err
	}
	return cfg, nil
}

func containsTool(tools []string, tool string) bool {
	for _, t := range tools {
		if t == tool {
			return true
		}
	}
	return false
}

func (s *Store) persistLocked() error {
	ff := fileFormat{Version: 1, OwnerID: s.ownerID, Projects: s.projects}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("projectstore: write %s: %w", tmp, err)
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	f.Close()
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("projectstore: rename %s: %w", tmp, err)
	}
	return nil
}
