// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package runtimestate

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"orc/internal/eventlog"
)

// State is the mutable projection. It implements eventlog.Snapshottable so
// an eventlog.Store can drive it directly.
type State struct {
	mu sync.RWMutex

	sessions map[string]*Session
	jobs     map[string]*Job
	dedupe   map[string]string
}

// New returns an empty projection.
func New() *State {
	return &State{
		sessions: make(map[string]*Session),
		jobs:     make(map[string]*Job),
		dedupe:   make(map[string]string),
	}
}

// Snapshot returns a deep-copied, read-only view of the whole projection.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make(map[string]*Session, len(s.sessions))
	for id, sess := range s.sessions {
		sessions[id] = sess.clone()
	}
	jobs := make(map[string]*Job, len(s.jobs))
	for id, job := range s.jobs {
		jobs[id] = job.clone()
	}
	dedupe := make(map[string]string, len(s.dedupe))
	for k, v := range s.dedupe {
		dedupe[k] = v
	}
	return Snapshot{Sessions: sessions, Jobs: jobs, Dedupe: dedupe}
}

// Session returns a deep copy of one session, or nil if unknown.
func (s *State) Session(threadID string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[threadID]
	if !ok {
		return nil
	}
	return sess.clone()
}

// Job returns a deep copy of one job, or nil if unknown.
func (s *State) Job(jobID string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	return job.clone()
}

// DedupJobID returns the job id already recorded for key, if any.
func (s *State) DedupJobID(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.dedupe[key]
	return id, ok
}

// RunningJobIDs reports every (thread_id, job_id) pair whose job is still
// running — used by the store's crash-recovery pass after replay. Sorted
// for deterministic recovery-event ordering across runs.
func (s *State) RunningJobIDs() [][2]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out [][2]string
	for _, job := range s.jobs {
		if job.State == JobRunning {
			out = append(out, [2]string{job.ThreadID, job.JobID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

type wireSnapshot struct {
	Sessions map[string]*Session `json:"sessions"`
	Jobs     map[string]*Job     `json:"jobs"`
	Dedupe   map[string]string   `json:"dedupe"`
}

// MarshalSnapshot implements eventlog.Snapshottable.
func (s *State) MarshalSnapshot() (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(wireSnapshot{Sessions: s.sessions, Jobs: s.jobs, Dedupe: s.dedupe})
}

// LoadSnapshot implements eventlog.Snapshottable.
func (s *State) LoadSnapshot(data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	var ws wireSnapshot
	if err := json.Unmarshal(data, &ws); err != nil {
		return fmt.Errorf("runtimestate: corrupt snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws.Sessions != nil {
		s.sessions = ws.Sessions
	}
	if ws.Jobs != nil {
		s.jobs = ws.Jobs
	}
	if ws.Dedupe != nil {
		s.dedupe = ws.Dedupe
	}
	return nil
}

// Apply implements eventlog.Snapshottable / eventlog.Applier. It is the
// only place runtime state ever mutates, and every branch must be total:
// replaying the same envelope twice from the same prior state must not
// happen (the store guarantees strictly increasing seq), but each branch
// still only touches the maps it owns, never reaching across to others.
func (s *State) Apply(env eventlog.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Type {
	case eventlog.ProjectCreated:
		// Informational only; project configuration lives in the project
		// store, not here. This event is an audit trail — no state mutation.

	case eventlog.SessionCreated:
		var p eventlog.SessionCreatedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		adapterState := p.AdapterState
		if adapterState == nil {
			adapterState = map[string]string{}
		}
		s.sessions[p.ThreadID] = &Session{
			ThreadID:       p.ThreadID,
			ProjectName:    p.ProjectName,
			Tool:           p.Tool,
			AdapterState:   adapterState,
			Queue:          []string{},
			CreatedAt:      env.TS,
			UpdatedAt:      env.TS,
			LastActivityAt: env.TS,
		}

	case eventlog.ToolChanged:
		var p eventlog.ToolChangedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("runtimestate: ToolChanged for unknown session %q", p.ThreadID)
		}
		sess.Tool = p.Tool
		sess.UpdatedAt = env.TS

	case eventlog.JobEnqueued:
		var p eventlog.JobEnqueuedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("runtimestate: JobEnqueued for unknown session %q", p.ThreadID)
		}
		s.jobs[p.JobID] = &Job{
			JobID:            p.JobID,
			ThreadID:         p.ThreadID,
			DiscordMessageID: p.DiscordMessageID,
			State:            JobQueued,
			Prompt:           p.Prompt,
			Tool:             p.Tool,
			Attempt:          p.Attempt,
		}
		sess.Queue = append(sess.Queue, p.JobID)
		sess.UpdatedAt = env.TS
		sess.LastActivityAt = env.TS
		s.dedupe[p.ThreadID+":"+p.DiscordMessageID] = p.JobID

	case eventlog.JobStarted:
		var p eventlog.JobStartedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		job, ok := s.jobs[p.JobID]
		if !ok {
			return fmt.Errorf("runtimestate: JobStarted for unknown job %q", p.JobID)
		}
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("runtimestate: JobStarted for unknown session %q", p.ThreadID)
		}
		started := env.TS
		job.State = JobRunning
		job.StartedAt = &started
		jobID := p.JobID
		sess.RunningJobID = &jobID
		sess.UpdatedAt = env.TS
		sess.LastActivityAt = env.TS
		if len(sess.Queue) > 0 && sess.Queue[0] == p.JobID {
			sess.Queue = sess.Queue[1:]
		} else {
			sess.Queue = removeFirst(sess.Queue, p.JobID)
		}

	case eventlog.JobProgress:
		// Informational only; no state transition.

	case eventlog.JobCompleted:
		var p eventlog.JobCompletedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		if err := s.finishJob(p.ThreadID, p.JobID, JobSuccess, env.TS, "", "", p.ResultExcerpt, p.AdapterState); err != nil {
			return err
		}

	case eventlog.JobFailed:
		var p eventlog.JobFailedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		if err := s.finishJob(p.ThreadID, p.JobID, JobFailed, env.TS, p.ErrorCode, p.ErrorMessage, "", p.AdapterState); err != nil {
			return err
		}

	case eventlog.JobMarkedUnknownAfterCrash:
		var p eventlog.JobMarkedUnknownAfterCrashPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		job, ok := s.jobs[p.JobID]
		if !ok {
			return fmt.Errorf("runtimestate: crash-mark for unknown job %q", p.JobID)
		}
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("runtimestate: crash-mark for unknown session %q", p.ThreadID)
		}
		job.State = JobUnknownAfterCrash
		sess.RunningJobID = nil
		jobID := p.JobID
		sess.LastJobID = &jobID
		sess.UpdatedAt = env.TS

	default:
		return fmt.Errorf("runtimestate: unknown event type %q", env.Type)
	}
	return nil
}

func (s *State) finishJob(threadID, jobID string, state JobState, ts time.Time, errCode, errMsg, resultExcerpt string, adapterState map[string]string) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("runtimestate: finish for unknown job %q", jobID)
	}
	sess, ok := s.sessions[threadID]
	if !ok {
		return fmt.Errorf("runtimestate: finish for unknown session %q", threadID)
	}

	finished := ts
	job.State = state
	job.FinishedAt = &finished
	job.ErrorCode = errCode
	job.ErrorMessage = errMsg
	if resultExcerpt != "" {
		job.ResultExcerpt = resultExcerpt
	}

	sess.RunningJobID = nil
	jobID2 := jobID
	sess.LastJobID = &jobID2
	sess.UpdatedAt = ts

	if adapterState != nil {
		if sess.AdapterState == nil {
			sess.AdapterState = map[string]string{}
		}
		for k, v := range adapterState {
			sess.AdapterState[k] = v
		}
	}
	return nil
}

func removeFirst(xs []string, v string) []string {
	out := make([]string, 0, len(xs))
	removed := false
	for _, x := range xs {
		if !removed && x == v {
			removed = true
			continue
		}
		out = append(out, x)
	}
	return out
}
