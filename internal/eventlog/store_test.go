// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeState is a minimal Snapshottable+CrashRecoverable projection used to
// exercise the store without pulling in runtimestate.
type fakeState struct {
	applied []Envelope
	running map[string][2]string // job_id -> {thread_id, job_id}
	done    map[string]bool
}

func newFakeState() *fakeState {
	return &fakeState{running: map[string][2]string{}, done: map[string]bool{}}
}

func (f *fakeState) Apply(env Envelope) error {
	f.applied = append(f.applied, env)
	switch env.Type {
	case JobStarted:
		var p JobStartedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		f.running[p.JobID] = [2]string{p.ThreadID, p.JobID}
	case JobCompleted:
		var p JobCompletedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		delete(f.running, p.JobID)
		f.done[p.JobID] = true
	case JobMarkedUnknownAfterCrash:
		var p JobMarkedUnknownAfterCrashPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		delete(f.running, p.JobID)
	}
	return nil
}

type fakeStateWire struct {
	Running map[string][2]string `json:"running"`
	Done    map[string]bool      `json:"done"`
}

func (f *fakeState) MarshalSnapshot() (json.RawMessage, error) {
	return json.Marshal(fakeStateWire{Running: f.running, Done: f.done})
}

func (f *fakeState) LoadSnapshot(data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	var loaded fakeStateWire
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	f.running = loaded.Running
	f.done = loaded.Done
	if f.running == nil {
		f.running = map[string][2]string{}
	}
	if f.done == nil {
		f.done = map[string]bool{}
	}
	return nil
}

func (f *fakeState) RunningJobIDs() [][2]string {
	var out [][2]string
	for _, pair := range f.running {
		out = append(out, pair)
	}
	return out
}

func TestAppendAssignsStrictlyIncreasingSeq(t *testing.T) {
	dir := t.TempDir()
	state := newFakeState()
	store, err := Open(dir, state)
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 5; i++ {
		env, err := store.Append(JobProgress, JobProgressPayload{ThreadID: "T", JobID: "j"})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), env.Seq)
	}
	assert.Equal(t, uint64(5), store.Seq())
}

func TestCrashRecoveryMarksRunningJobUnknown(t *testing.T) {
	dir := t.TempDir()
	state := newFakeState()
	store, err := Open(dir, state)
	require.NoError(t, err)

	_, err = store.Append(SessionCreated, SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})
	require.NoError(t, err)
	_, err = store.Append(JobEnqueued, JobEnqueuedPayload{ThreadID: "T", JobID: "j1", DiscordMessageID: "m1", Prompt: "hi", Tool: "A", Attempt: 1})
	require.NoError(t, err)
	_, err = store.Append(JobStarted, JobStartedPayload{ThreadID: "T", JobID: "j1"})
	require.NoError(t, err)
	require.NoError(t, store.Snapshot())
	require.NoError(t, store.Close())

	// Reopen: crash recovery must mark j1 unknown_after_crash exactly once.
	reopened := newFakeState()
	store2, err := Open(dir, reopened)
	require.NoError(t, err)
	defer store2.Close()

	assert.Empty(t, reopened.RunningJobIDs())

	var sawCrashMark int
	for _, env := range reopened.applied {
		if env.Type == JobMarkedUnknownAfterCrash {
			sawCrashMark++
			var p JobMarkedUnknownAfterCrashPayload
			require.NoError(t, env.Decode(&p))
			assert.Equal(t, "j1", p.JobID)
			assert.Equal(t, "T", p.ThreadID)
		}
	}
	assert.Equal(t, 1, sawCrashMark)
}

func TestCrashRecoveryIsIdempotentAcrossReopens(t *testing.T) {
	dir := t.TempDir()
	state := newFakeState()
	store, err := Open(dir, state)
	require.NoError(t, err)
	_, err = store.Append(SessionCreated, SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})
	require.NoError(t, err)
	_, err = store.Append(JobEnqueued, JobEnqueuedPayload{ThreadID: "T", JobID: "j1", DiscordMessageID: "m1", Tool: "A", Attempt: 1})
	require.NoError(t, err)
	_, err = store.Append(JobStarted, JobStartedPayload{ThreadID: "T", JobID: "j1"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	s2 := newFakeState()
	store2, err := Open(dir, s2)
	require.NoError(t, err)
	require.NoError(t, store2.Close())

	// Second reopen must not re-mark j1 since it is no longer "running":
	// the only crash mark it sees is the one replayed from the first reopen.
	s3 := newFakeState()
	store3, err := Open(dir, s3)
	require.NoError(t, err)
	defer store3.Close()

	var sawCrashMark int
	for _, env := range s3.applied {
		if env.Type == JobMarkedUnknownAfterCrash {
			sawCrashMark++
		}
	}
	assert.Equal(t, 1, sawCrashMark)
}

func TestPureReplayAfterDeletingSnapshot(t *testing.T) {
	dir := t.TempDir()
	state := newFakeState()
	store, err := Open(dir, state)
	require.NoError(t, err)

	_, err = store.Append(SessionCreated, SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})
	require.NoError(t, err)
	_, err = store.Append(JobEnqueued, JobEnqueuedPayload{ThreadID: "T", JobID: "j1", DiscordMessageID: "m1", Tool: "A", Attempt: 1})
	require.NoError(t, err)
	_, err = store.Append(JobStarted, JobStartedPayload{ThreadID: "T", JobID: "j1"})
	require.NoError(t, err)
	_, err = store.Append(JobCompleted, JobCompletedPayload{
		ThreadID:      "T",
		JobID:         "j1",
		ResultExcerpt: "done",
		AdapterState:  map[string]string{"session_id": "kx"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Snapshot())
	require.NoError(t, store.Close())

	require.NoError(t, os.Remove(filepath.Join(dir, snapshotFile)))

	replayed := newFakeState()
	store2, err := Open(dir, replayed)
	require.NoError(t, err)
	defer store2.Close()

	assert.True(t, replayed.done["j1"])
	assert.Equal(t, uint64(4), store2.Seq())
}

func TestReplayFailsFastOnSequenceGap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	env1, err := NewEnvelope(SessionCreated, SessionCreatedPayload{ThreadID: "T", ProjectName: "p", Tool: "A"})
	require.NoError(t, err)
	env1.Seq = 1
	env3, err := NewEnvelope(JobStarted, JobStartedPayload{ThreadID: "T", JobID: "j1"})
	require.NoError(t, err)
	env3.Seq = 3 // gap: seq 2 missing

	f, err := os.Create(filepath.Join(dir, eventsFile))
	require.NoError(t, err)
	for _, env := range []Envelope{env1, env3} {
		line, err := json.Marshal(env)
		require.NoError(t, err)
		_, err = f.Write(append(line, '\n'))
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	_, err = Open(dir, newFakeState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence gap")
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	state := newFakeState()
	store, err := Open(dir, state)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.Append(JobProgress, JobProgressPayload{ThreadID: "T", JobID: "j"})
		require.NoError(t, err)
	}
	require.NoError(t, store.Snapshot())
	require.NoError(t, store.Close())

	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, uint64(3), snap.Seq)
	assert.Equal(t, 1, snap.Version)
}
