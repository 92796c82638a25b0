// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package eventlog is the durable state layer: an append-only NDJSON event
// log plus a periodic snapshot, with replay and crash recovery on startup.
// It owns all on-disk state for the orchestrator; everything else holds a
// derived, in-memory projection.
package eventlog

import (
	"encoding/json"
	"time"
)

// EventType is one of the fixed event kinds the engine ever appends.
type EventType string

const (
	ProjectCreated             EventType = "ProjectCreated"
	SessionCreated             EventType = "SessionCreated"
	ToolChanged                EventType = "ToolChanged"
	JobEnqueued                EventType = "JobEnqueued"
	JobStarted                 EventType = "JobStarted"
	JobProgress                EventType = "JobProgress"
	JobCompleted               EventType = "JobCompleted"
	JobFailed                  EventType = "JobFailed"
	JobMarkedUnknownAfterCrash EventType = "JobMarkedUnknownAfterCrash"
)

// Envelope is one line of events.ndjson: seq must increase by exactly 1
// with no gaps; ts is UTC ISO-8601.
type Envelope struct {
	Seq     uint64          `json:"seq"`
	TS      time.Time       `json:"ts"`
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps it with seq/ts/type. Callers never
// set Seq themselves — the Store assigns it at append time.
func NewEnvelope(typ EventType, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{TS: time.Now().UTC(), Type: typ, Payload: raw}, nil
}

// Decode unmarshals the envelope's payload into dst.
func (e Envelope) Decode(dst interface{}) error {
	return json.Unmarshal(e.Payload, dst)
}

// ProjectCreatedPayload is informational only: project configuration lives
// in the project store, not the event log. This event is an audit trail.
type ProjectCreatedPayload struct {
	ProjectName  string   `json:"project_name"`
	Path         string   `json:"path"`
	EnabledTools []string `json:"enabled_tools"`
}

// SessionCreatedPayload payload for SessionCreated.
type SessionCreatedPayload struct {
	ThreadID     string            `json:"thread_id"`
	ProjectName  string            `json:"project_name"`
	Tool         string            `json:"tool"`
	AdapterState map[string]string `json:"adapter_state"`
}

// ToolChangedPayload payload for ToolChanged.
type ToolChangedPayload struct {
	ThreadID string `json:"thread_id"`
	Tool     string `json:"tool"`
}

// JobEnqueuedPayload payload for JobEnqueued.
type JobEnqueuedPayload struct {
	ThreadID         string `json:"thread_id"`
	JobID            string `json:"job_id"`
	DiscordMessageID string `json:"discord_message_id"`
	Prompt           string `json:"prompt"`
	Tool             string `json:"tool"`
	Attempt          int    `json:"attempt"`
}

// JobStartedPayload payload for JobStarted.
type JobStartedPayload struct {
	ThreadID string `json:"thread_id"`
	JobID    string `json:"job_id"`
}

// JobProgressPayload payload for JobProgress. Optional/informational; the
// coordinator may elide appending these to keep the log compact.
type JobProgressPayload struct {
	ThreadID string          `json:"thread_id"`
	JobID    string          `json:"job_id"`
	Kind     string          `json:"kind,omitempty"`
	Detail   json.RawMessage `json:"detail,omitempty"`
}

// JobCompletedPayload payload for JobCompleted.
type JobCompletedPayload struct {
	ThreadID      string            `json:"thread_id"`
	JobID         string            `json:"job_id"`
	ResultExcerpt string            `json:"result_excerpt"`
	AdapterState  map[string]string `json:"adapter_state"`
}

// JobFailedPayload payload for JobFailed.
type JobFailedPayload struct {
	ThreadID     string            `json:"thread_id"`
	JobID        string            `json:"job_id"`
	ErrorCode    string            `json:"error_code"`
	ErrorMessage string            `json:"error_message"`
	AdapterState map[string]string `json:"adapter_state,omitempty"`
}

// JobMarkedUnknownAfterCrashPayload payload for JobMarkedUnknownAfterCrash.
type JobMarkedUnknownAfterCrashPayload struct {
	ThreadID string `json:"thread_id"`
	JobID    string `json:"job_id"`
}
