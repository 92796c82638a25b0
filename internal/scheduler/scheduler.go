// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scheduler implements C3: per-thread FIFO ordering, the global
// concurrency cap, enqueue dedup, and backpressure. It holds no event-log
// or adapter knowledge — it only decides what is runnable next given a
// runtimestate snapshot, and tracks which threads are currently running.
package scheduler

import (
	"sort"
	"sync"

	"orc/internal/errcode"
	"orc/internal/runtimestate"
)

// GlobalMaxRunning is the frozen constant: at most this many jobs run
// concurrently across every thread.
const GlobalMaxRunning = 2

// MaxQueuePerSession is the frozen backpressure threshold.
const MaxQueuePerSession = 20

// Scheduler tracks which threads currently have a job running, so pick-next
// can enforce "at most one running job per thread" alongside the global
// cap. It does not own the queue contents — those live in runtimestate and
// are read fresh on every PickNext call.
type Scheduler struct {
	mu             sync.Mutex
	runningThreads map[string]struct{}
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{runningThreads: make(map[string]struct{})}
}

// Running reports the current number of in-flight jobs.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runningThreads)
}

// MarkRunning records that threadID now owns a running job. Called by the
// coordinator when it admits a job, before processJob emits JobStarted.
func (s *Scheduler) MarkRunning(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningThreads[threadID] = struct{}{}
}

// MarkIdle records that threadID's job has finished. Called by the
// coordinator once processJob for that job has returned, whether or not a
// terminal event was appended.
func (s *Scheduler) MarkIdle(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runningThreads, threadID)
}

// PickNext chooses, among threads with a non-empty queue and no running
// job, the one with the smallest last_activity_at, tie-broken
// lexicographically by thread id. Returns ("", "", false) if nothing is
// runnable — either every queue is empty or the global cap is already
// saturated.
func (s *Scheduler) PickNext(snap runtimestate.Snapshot) (threadID, jobID string, ok bool) {
	s.mu.Lock()
	running := len(s.runningThreads)
	alreadyRunning := make(map[string]struct{}, len(s.runningThreads))
	for t := range s.runningThreads {
		alreadyRunning[t] = struct{}{}
	}
	s.mu.Unlock()

	if running >= GlobalMaxRunning {
		return "", "", false
	}

	var candidates []*runtimestate.Session
	for _, sess := range snap.Sessions {
		if len(sess.Queue) == 0 {
			continue
		}
		if sess.RunningJobID != nil {
			continue
		}
		if _, busy := alreadyRunning[sess.ThreadID]; busy {
			continue
		}
		candidates = append(candidates, sess)
	}
	if len(candidates) == 0 {
		return "", "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.Before(b.LastActivityAt)
		}
		return a.ThreadID < b.ThreadID
	})

	chosen := candidates[0]
	return chosen.ThreadID, chosen.Queue[0], true
}

// CheckEnqueue applies dedup and backpressure ahead of an enqueue attempt.
// deduped=true means the caller must not emit JobEnqueued — existingJobID
// is the answer. A non-nil error means the enqueue must be rejected with no
// event written.
func CheckEnqueue(snap runtimestate.Snapshot, threadID, messageID string) (existingJobID string, deduped bool, err error) {
	key := threadID + ":" + messageID
	if id, ok := snap.Dedupe[key]; ok {
		return id, true, nil
	}
	sess, ok := snap.Sessions[threadID]
	if !ok {
		return "", false, errcode.New(errcode.ESessionNotFound, "no session for thread "+threadID)
	}
	if len(sess.Queue) >= MaxQueuePerSession {
		return "", false, errcode.New(errcode.EQueueFull, "queue full for thread "+threadID)
	}
	return "", false, nil
}
