// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package statusapi is the read-only operator surface: a JSON status
// endpoint, a health check, a server-rendered HTML status page, and a
// websocket stream of job-progress events. It never mutates engine state —
// chat-surface commands stay out of scope, but an external dashboard
// still needs somewhere to look.
package statusapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"orc/internal/adapter"
	"orc/internal/coordinator"
	"orc/internal/logx"
	"orc/internal/runtimestate"
	"orc/internal/scheduler"
)

// ProgressEvent is one message pushed over the /events websocket.
type ProgressEvent struct {
	ThreadID string `json:"thread_id"`
	JobID    string `json:"job_id"`
	Kind     string `json:"kind"` // "progress" | "finished"
	State    string `json:"state,omitempty"`
	Activity string `json:"activity,omitempty"`
	Label    string `json:"label,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Server exposes the status surface over HTTP, guarded by a shared-secret
// bearer token — the simplest possible auth consistent with a single-owner,
// non-distributed deployment.
type Server struct {
	state   *runtimestate.State
	sched   *scheduler.Scheduler
	ownerID string
	secret  string
	log     *logx.Logger

	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan ProgressEvent]struct{}
}

// New builds a Server. ownerID is reported in /status; secret is the
// bearer token every route except /healthz must present. An empty secret
// disables the check.
func New(state *runtimestate.State, sched *scheduler.Scheduler, ownerID, secret string) *Server {
	return &Server{
		state:   state,
		sched:   sched,
		ownerID: ownerID,
		secret:  secret,
		log:     logx.New("statusapi"),
		subs:    make(map[chan ProgressEvent]struct{}),
	}
}

// Hooks returns coordinator.Hooks that fan progress/completion out to
// every connected websocket subscriber.
func (s *Server) Hooks() coordinator.Hooks {
	return coordinator.Hooks{
		OnJobProgress: func(threadID, jobID string, p adapter.Progress) {
			s.Broadcast(ProgressEvent{
				ThreadID: threadID,
				JobID:    jobID,
				Kind:     "progress",
				Activity: p.Activity,
				Label:    p.Label,
				Text:     p.Text,
			})
		},
		OnJobFinished: func(threadID, jobID, state string) {
			s.Broadcast(ProgressEvent{
				ThreadID: threadID,
				JobID:    jobID,
				Kind:     "finished",
				State:    state,
			})
		},
	}
}

// Router builds the mux.Router serving /healthz, /status, /status.json,
// /sessions/{thread_id}, /jobs/{job_id}, and /events.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	auth := r.NewRoute().Subrouter()
	auth.Use(s.authMiddleware)
	auth.HandleFunc("/status", s.handleStatusHTML).Methods(http.MethodGet)
	auth.HandleFunc("/status.json", s.handleStatusJSON).Methods(http.MethodGet)
	auth.HandleFunc("/sessions/{thread_id}", s.handleSession).Methods(http.MethodGet)
	auth.HandleFunc("/jobs/{job_id}", s.handleJob).Methods(http.MethodGet)
	auth.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("Authorization")
		if got != "Bearer "+s.secret {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	retryHints := make(map[string]bool, len(snap.Sessions))
	for threadID, sess := range snap.Sessions {
		if isRetryable(snap, sess) {
			retryHints[threadID] = true
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"running_jobs": s.sched.Running(),
		"sessions":     snap.Sessions,
		"retry_hints":  retryHints,
	})
}

// isRetryable reports whether sess's last job ended in a state that
// advertises itself as retryable.
func isRetryable(snap runtimestate.Snapshot, sess *runtimestate.Session) bool {
	if sess.LastJobID == nil {
		return false
	}
	job, ok := snap.Jobs[*sess.LastJobID]
	if !ok {
		return false
	}
	return job.State == runtimestate.JobFailed || job.State == runtimestate.JobUnknownAfterCrash
}

func (s *Server) handleStatusHTML(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	data := PageData{OwnerID: s.ownerID, RunningJobs: s.sched.Running()}

	threadIDs := make([]string, 0, len(snap.Sessions))
	for id := range snap.Sessions {
		threadIDs = append(threadIDs, id)
	}
	sort.Strings(threadIDs)

	for _, id := range threadIDs {
		sess := snap.Sessions[id]
		row := SessionRow{
			ThreadID:    sess.ThreadID,
			ProjectName: sess.ProjectName,
			Tool:        sess.Tool,
			QueueLen:    len(sess.Queue),
		}
		if sess.RunningJobID != nil {
			row.RunningJob = *sess.RunningJobID
		}
		if sess.LastJobID != nil {
			row.LastJob = *sess.LastJobID
		}
		row.RetryHint = isRetryable(snap, sess)
		data.Sessions = append(data.Sessions, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	WritePage(w, data)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["thread_id"]
	snap := s.state.Snapshot()
	sess, ok := snap.Sessions[threadID]
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	snap := s.state.Snapshot()
	job, ok := snap.Jobs[jobID]
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := make(chan ProgressEvent, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Broadcast fans ev out to every connected subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the caller.
func (s *Server) Broadcast(ev ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
