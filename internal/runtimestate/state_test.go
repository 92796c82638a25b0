// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package runtimestate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orc/internal/eventlog"
)

func mustEnvelope(t *testing.T, typ eventlog.EventType, payload interface{}) eventlog.Envelope {
	t.Helper()
	env, err := eventlog.NewEnvelope(typ, payload)
	require.NoError(t, err)
	return env
}

func TestApplySessionCreatedThenEnqueueThenStart(t *testing.T) {
	s := New()

	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.SessionCreated, eventlog.SessionCreatedPayload{
		ThreadID: "T", ProjectName: "proj", Tool: "A",
	})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobEnqueued, eventlog.JobEnqueuedPayload{
		ThreadID: "T", JobID: "j1", DiscordMessageID: "m1", Prompt: "hi", Tool: "A", Attempt: 1,
	})))

	sess := s.Session("T")
	require.NotNil(t, sess)
	assert.Equal(t, []string{"j1"}, sess.Queue)
	assert.Nil(t, sess.RunningJobID)

	job := s.Job("j1")
	require.NotNil(t, job)
	assert.Equal(t, JobQueued, job.State)

	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobStarted, eventlog.JobStartedPayload{ThreadID: "T", JobID: "j1"})))

	sess = s.Session("T")
	assert.Empty(t, sess.Queue)
	require.NotNil(t, sess.RunningJobID)
	assert.Equal(t, "j1", *sess.RunningJobID)

	job = s.Job("j1")
	assert.Equal(t, JobRunning, job.State)
	require.NotNil(t, job.StartedAt)
}

func TestApplyJobCompletedClearsRunningAndMergesAdapterState(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.SessionCreated, eventlog.SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobEnqueued, eventlog.JobEnqueuedPayload{ThreadID: "T", JobID: "j1", DiscordMessageID: "m1", Tool: "A", Attempt: 1})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobStarted, eventlog.JobStartedPayload{ThreadID: "T", JobID: "j1"})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobCompleted, eventlog.JobCompletedPayload{
		ThreadID:      "T",
		JobID:         "j1",
		ResultExcerpt: "done",
		AdapterState:  map[string]string{"session_id": "kx"},
	})))

	sess := s.Session("T")
	assert.Nil(t, sess.RunningJobID)
	require.NotNil(t, sess.LastJobID)
	assert.Equal(t, "j1", *sess.LastJobID)
	assert.Equal(t, "kx", sess.AdapterState["session_id"])

	job := s.Job("j1")
	assert.Equal(t, JobSuccess, job.State)
	assert.Equal(t, "done", job.ResultExcerpt)
	require.NotNil(t, job.FinishedAt)
	assert.False(t, job.FinishedAt.Before(*job.StartedAt))
}

func TestApplyJobMarkedUnknownAfterCrash(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.SessionCreated, eventlog.SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobEnqueued, eventlog.JobEnqueuedPayload{ThreadID: "T", JobID: "j1", DiscordMessageID: "m1", Tool: "A", Attempt: 1})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobStarted, eventlog.JobStartedPayload{ThreadID: "T", JobID: "j1"})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobMarkedUnknownAfterCrash, eventlog.JobMarkedUnknownAfterCrashPayload{ThreadID: "T", JobID: "j1"})))

	job := s.Job("j1")
	assert.Equal(t, JobUnknownAfterCrash, job.State)
	sess := s.Session("T")
	assert.Nil(t, sess.RunningJobID)
	require.NotNil(t, sess.LastJobID)
	assert.Equal(t, "j1", *sess.LastJobID)

	running := s.RunningJobIDs()
	assert.Empty(t, running)
}

func TestSnapshotIsolatesCallerFromFutureMutation(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.SessionCreated, eventlog.SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})))

	snap := s.Snapshot()
	snap.Sessions["T"].Tool = "mutated"

	fresh := s.Session("T")
	assert.Equal(t, "A", fresh.Tool, "external mutation of a snapshot must not leak into the live projection")
}

func TestJobFieldsOtherThanStateNeverChangeAfterCreation(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.SessionCreated, eventlog.SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobEnqueued, eventlog.JobEnqueuedPayload{
		ThreadID: "T", JobID: "j1", DiscordMessageID: "m1", Prompt: "do the thing", Tool: "A", Attempt: 1,
	})))

	before := s.Job("j1")

	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobStarted, eventlog.JobStartedPayload{ThreadID: "T", JobID: "j1"})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobFailed, eventlog.JobFailedPayload{
		ThreadID: "T", JobID: "j1", ErrorCode: "E_CLI_TIMEOUT", ErrorMessage: "boom",
	})))

	after := s.Job("j1")
	assert.Equal(t, before.JobID, after.JobID)
	assert.Equal(t, before.ThreadID, after.ThreadID)
	assert.Equal(t, before.DiscordMessageID, after.DiscordMessageID)
	assert.Equal(t, before.Prompt, after.Prompt)
	assert.Equal(t, before.Tool, after.Tool)
	assert.Equal(t, before.Attempt, after.Attempt)
	assert.NotEqual(t, before.State, after.State)
}

func TestApplyProjectCreatedIsInformationalNoOp(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.ProjectCreated, eventlog.ProjectCreatedPayload{
		ProjectName: "widgets", Path: "/srv/widgets", EnabledTools: []string{"A"},
	})))

	snap := s.Snapshot()
	assert.Empty(t, snap.Sessions)
	assert.Empty(t, snap.Jobs)
}

func TestApplyRejectsUnknownEventType(t *testing.T) {
	s := New()
	err := s.Apply(eventlog.Envelope{Type: "NotARealEvent", TS: time.Now().UTC()})
	assert.Error(t, err)
}

func TestDedupKeyRecordedOnEnqueue(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.SessionCreated, eventlog.SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})))
	require.NoError(t, s.Apply(mustEnvelope(t, eventlog.JobEnqueued, eventlog.JobEnqueuedPayload{ThreadID: "T", JobID: "j1", DiscordMessageID: "m1", Tool: "A", Attempt: 1})))

	id, ok := s.DedupJobID("T:m1")
	require.True(t, ok)
	assert.Equal(t, "j1", id)
}
