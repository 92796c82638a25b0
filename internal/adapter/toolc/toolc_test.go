// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package toolc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orc/internal/errcode"
)

func TestFinalizeSuccess(t *testing.T) {
	lines := []string{
		`{"type":"init","session_id":"sess-9"}`,
		`{"type":"message","role":"assistant","delta":"partial "}`,
		`{"type":"message","role":"assistant","delta":"answer"}`,
		`{"type":"result","status":"success"}`,
	}
	result, err := finalize(lines)
	require.NoError(t, err)
	assert.Equal(t, "partial answer", result.AssistantText)
	assert.Equal(t, "sess-9", result.AdapterState["session_id"])
}

func TestFinalizeNoResultEvent(t *testing.T) {
	lines := []string{`{"type":"init","session_id":"sess-9"}`}
	_, err := finalize(lines)
	require.Error(t, err)
	code, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, errcode.EAdapterMissingResult, code)
}

func TestFinalizeNonSuccessStatus(t *testing.T) {
	lines := []string{
		`{"type":"init","session_id":"sess-9"}`,
		`{"type":"result","status":"error"}`,
	}
	_, err := finalize(lines)
	require.Error(t, err)
	code, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, errcode.ECLIExitNonzero, code)
}

func TestFinalizeMissingSessionID(t *testing.T) {
	lines := []string{`{"type":"result","status":"success"}`}
	_, err := finalize(lines)
	require.Error(t, err)
	code, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, errcode.EAdapterSessionKeyMissing, code)
}

func TestIsRetryableOnTransientHint(t *testing.T) {
	err := errcode.New(errcode.ECLIExitNonzero, "exit 1")
	assert.True(t, isRetryable(err, "error: rate limit exceeded, please retry"))
	assert.False(t, isRetryable(err, "error: invalid prompt"))
}

func TestIsRetryableRequiresExitNonzeroCode(t *testing.T) {
	err := errcode.New(errcode.ECLITimeout, "timed out")
	assert.False(t, isRetryable(err, "quota exceeded"))
}

func TestGenericTextPriorityOrder(t *testing.T) {
	fields := map[string]interface{}{
		"content": "from content",
		"message": "from message",
	}
	assert.Equal(t, "from content", genericText(fields))
}
