// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package logx

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetMinLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetMinLevel(LevelWarn)
	defer SetMinLevel(LevelInfo)

	l := New("test")
	l.Debug("debug line")
	l.Info("info line")
	assert.Empty(t, buf.String())

	l.Warn("warn line")
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "[test]")
	assert.Contains(t, buf.String(), "warn line")
}

func TestLogIncludesComponentAndLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetMinLevel(LevelDebug)
	defer SetMinLevel(LevelInfo)

	l := New("scheduler")
	l.Error("boom: %d", 42)
	assert.Contains(t, buf.String(), "ERROR")
	assert.Contains(t, buf.String(), "[scheduler]")
	assert.Contains(t, buf.String(), "boom: 42")
}

func TestLevelStringUnknown(t *testing.T) {
	assert.Equal(t, "???", Level(99).String())
}
