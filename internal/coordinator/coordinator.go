// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package coordinator is C5: the run loop that turns queued jobs into
// adapter invocations and adapter invocations back into events. It is the
// only component that calls scheduler.PickNext and adapter.Adapter.Run.
package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"orc/internal/adapter"
	"orc/internal/errcode"
	"orc/internal/eventlog"
	"orc/internal/ids"
	"orc/internal/joblog"
	"orc/internal/logx"
	"orc/internal/metrics"
	"orc/internal/projectstore"
	"orc/internal/runtimestate"
	"orc/internal/scheduler"
)

// CLITimeoutSec is the frozen per-adapter-invocation deadline.
const CLITimeoutSec = 900

// Hooks are fired as jobs progress, toward whatever chat surface sits
// above the coordinator. A nil hook is simply not called.
type Hooks struct {
	OnJobStarted  func(threadID, jobID string)
	OnJobProgress func(threadID, jobID string, p adapter.Progress)
	OnJobFinished func(threadID, jobID, state string)
}

// Coordinator wires the event log, runtime state, scheduler, project
// registry, and tool adapters together and drives jobs to completion.
type Coordinator struct {
	store    *eventlog.Store
	state    *runtimestate.State
	sched    *scheduler.Scheduler
	projects *projectstore.Store
	adapters map[string]adapter.Adapter
	dataDir  string
	log      *logx.Logger

	mu    sync.Mutex
	hooks Hooks

	kickCh   chan struct{}
	admitMu  sync.Mutex // enforces "mutually exclusive" admission sweep
	admitting bool

	inFlight sync.WaitGroup
}

// New wires a Coordinator. adapters maps tool letter ("A","B","C") to its
// Adapter implementation.
func New(store *eventlog.Store, state *runtimestate.State, sched *scheduler.Scheduler, projects *projectstore.Store, adapters map[string]adapter.Adapter, dataDir string) *Coordinator {
	return &Coordinator{
		store:    store,
		state:    state,
		sched:    sched,
		projects: projects,
		adapters: adapters,
		dataDir:  dataDir,
		log:      logx.New("coordinator"),
		kickCh:   make(chan struct{}, 1),
	}
}

// SetHooks installs the coordinator's event hooks. Not safe to call
// concurrently with Run.
func (c *Coordinator) SetHooks(h Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = h
}

func (c *Coordinator) getHooks() Hooks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hooks
}

// Run drives the kick loop until ctx is canceled. Call once, in its own
// goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	c.notifyNewWork()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kickCh:
			c.kick()
		}
	}
}

// notifyNewWork schedules an admission sweep. Safe to call from any
// goroutine, any number of times — the channel buffer of 1 makes repeated
// signals collapse into a single re-evaluation (edge-triggered).
func (c *Coordinator) notifyNewWork() {
	select {
	case c.kickCh <- struct{}{}:
	default:
	}
}

// NotifyNewWork is the external-facing alias for notifyNewWork, for
// callers outside this package (e.g. after Enqueue).
func (c *Coordinator) NotifyNewWork() { c.notifyNewWork() }

// kick is the admission sweep: while under the global cap and something is
// runnable, admit it and spawn processJob. Re-entrant calls while a sweep
// is already in progress return immediately — the in-progress sweep (or
// the job it just admitted, via its own re-kick on completion) will pick
// up anything new.
func (c *Coordinator) kick() {
	c.admitMu.Lock()
	if c.admitting {
		c.admitMu.Unlock()
		return
	}
	c.admitting = true
	c.admitMu.Unlock()
	defer func() {
		c.admitMu.Lock()
		c.admitting = false
		c.admitMu.Unlock()
	}()

	for {
		snap := c.state.Snapshot()
		c.reportQueueMetrics(snap)
		threadID, jobID, ok := c.sched.PickNext(snap)
		if !ok {
			return
		}
		c.sched.MarkRunning(threadID)
		c.inFlight.Add(1)
		go func() {
			defer c.inFlight.Done()
			defer func() {
				c.sched.MarkIdle(threadID)
				c.notifyNewWork()
			}()
			if err := c.processJob(threadID, jobID); err != nil {
				c.log.Error("processJob(%s,%s): %v", threadID, jobID, err)
			}
		}()
	}
}

// reportQueueMetrics publishes the same running/queued counts the status
// API computes on demand, so RunningJobs and QueueDepth stay live without
// a separate polling goroutine.
func (c *Coordinator) reportQueueMetrics(snap runtimestate.Snapshot) {
	metrics.RunningJobs.Set(float64(c.sched.Running()))
	queued := 0
	for _, sess := range snap.Sessions {
		queued += len(sess.Queue)
	}
	metrics.QueueDepth.Set(float64(queued))
}

// WaitForIdle blocks until no job is running and every session queue is
// empty, or ctx is canceled. Intended for tests and graceful shutdown.
func (c *Coordinator) WaitForIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) idle() bool {
	if c.sched.Running() != 0 {
		return false
	}
	snap := c.state.Snapshot()
	for _, sess := range snap.Sessions {
		if len(sess.Queue) != 0 || sess.RunningJobID != nil {
			return false
		}
	}
	return true
}

// CreateProject registers a new project in the durable registry, then
// appends ProjectCreated as an audit-trail record — the event carries no
// authoritative state of its own; config.json remains the source of
// truth for project definitions.
func (c *Coordinator) CreateProject(name, path string, enabledTools []string, defaultTool string) (projectstore.ProjectConfig, error) {
	cfg, err := c.projects.Create(name, path, enabledTools, defaultTool)
	if err != nil {
		return projectstore.ProjectConfig{}, err
	}
	if _, err := c.store.Append(eventlog.ProjectCreated, eventlog.ProjectCreatedPayload{
		ProjectName:  name,
		Path:         path,
		EnabledTools: enabledTools,
	}); err != nil {
		return projectstore.ProjectConfig{}, err
	}
	return cfg, nil
}

// CreateSession appends SessionCreated for a brand-new thread.
func (c *Coordinator) CreateSession(threadID, projectName, tool string) error {
	_, err := c.store.Append(eventlog.SessionCreated, eventlog.SessionCreatedPayload{
		ThreadID:     threadID,
		ProjectName:  projectName,
		Tool:         tool,
		AdapterState: map[string]string{},
	})
	return err
}

// ChangeTool appends ToolChanged for an existing session.
func (c *Coordinator) ChangeTool(threadID, tool string) error {
	if c.state.Session(threadID) == nil {
		return errcode.New(errcode.ESessionNotFound, "no session for thread "+threadID)
	}
	_, err := c.store.Append(eventlog.ToolChanged, eventlog.ToolChangedPayload{ThreadID: threadID, Tool: tool})
	return err
}

// Enqueue checks dedup, then backpressure, then appends JobEnqueued.
// Returns the job id (existing, if deduped) and whether this call was a
// dedup hit.
func (c *Coordinator) Enqueue(threadID, discordMessageID, prompt string) (jobID string, deduped bool, err error) {
	snap := c.state.Snapshot()
	existing, isDup, err := scheduler.CheckEnqueue(snap, threadID, discordMessageID)
	if err != nil {
		return "", false, err
	}
	if isDup {
		return existing, true, nil
	}

	sess := snap.Sessions[threadID]
	jobID = ids.NewJobID()
	_, err = c.store.Append(eventlog.JobEnqueued, eventlog.JobEnqueuedPayload{
		ThreadID:         threadID,
		JobID:            jobID,
		DiscordMessageID: discordMessageID,
		Prompt:           prompt,
		Tool:             sess.Tool,
		Attempt:          1,
	})
	if err != nil {
		return "", false, err
	}
	c.notifyNewWork()
	return jobID, false, nil
}

// Retry re-enqueues a failed or crash-marked job as a fresh job with
// attempt = prev.attempt + 1. Non-retryable states fail with
// E_JOB_NOT_RETRYABLE.
func (c *Coordinator) Retry(oldJobID string) (jobID string, err error) {
	old := c.state.Job(oldJobID)
	if old == nil {
		return "", errcode.New(errcode.ESessionNotFound, "no such job "+oldJobID)
	}
	if old.State != runtimestate.JobFailed && old.State != runtimestate.JobUnknownAfterCrash {
		return "", errcode.New(errcode.EJobNotRetryable, "job "+oldJobID+" is not in a retryable state")
	}

	snap := c.state.Snapshot()
	sess, ok := snap.Sessions[old.ThreadID]
	if !ok {
		return "", errcode.New(errcode.ESessionNotFound, "no session for thread "+old.ThreadID)
	}
	if len(sess.Queue) >= scheduler.MaxQueuePerSession {
		return "", errcode.New(errcode.EQueueFull, "queue full for thread "+old.ThreadID)
	}

	newJobID := ids.NewJobID()
	syntheticMessageID := ids.RetryJobID(oldJobID, newJobID)
	_, err = c.store.Append(eventlog.JobEnqueued, eventlog.JobEnqueuedPayload{
		ThreadID:         old.ThreadID,
		JobID:            newJobID,
		DiscordMessageID: syntheticMessageID,
		Prompt:           old.Prompt,
		Tool:             old.Tool,
		Attempt:          old.Attempt + 1,
	})
	if err != nil {
		return "", err
	}
	c.notifyNewWork()
	return newJobID, nil
}

// processJob starts the job, resolves its context, invokes the adapter,
// logs captured output, and appends the terminal event.
func (c *Coordinator) processJob(threadID, jobID string) error {
	if _, err := c.store.Append(eventlog.JobStarted, eventlog.JobStartedPayload{ThreadID: threadID, JobID: jobID}); err != nil {
		return err
	}
	if hook := c.getHooks().OnJobStarted; hook != nil {
		hook(threadID, jobID)
	}

	sess := c.state.Session(threadID)
	job := c.state.Job(jobID)
	if sess == nil || job == nil {
		_, err := c.store.Append(eventlog.JobFailed, eventlog.JobFailedPayload{
			ThreadID:     threadID,
			JobID:        jobID,
			ErrorCode:    string(errcode.EAdapterParse),
			ErrorMessage: "session or job vanished after JobStarted",
		})
		c.finishHook(threadID, jobID, "failed")
		return err
	}

	proj, ok := c.projects.Get(sess.ProjectName)
	if !ok {
		_, err := c.store.Append(eventlog.JobFailed, eventlog.JobFailedPayload{
			ThreadID:     threadID,
			JobID:        jobID,
			ErrorCode:    string(errcode.EProjectNotFound),
			ErrorMessage: "project not found: " + sess.ProjectName,
		})
		c.finishHook(threadID, jobID, "failed")
		return err
	}

	a, ok := c.adapters[job.Tool]
	if !ok {
		_, err := c.store.Append(eventlog.JobFailed, eventlog.JobFailedPayload{
			ThreadID:     threadID,
			JobID:        jobID,
			ErrorCode:    string(errcode.EToolNotEnabled),
			ErrorMessage: "no adapter registered for tool " + job.Tool,
		})
		c.finishHook(threadID, jobID, "failed")
		return err
	}

	resumeKey := resolveResumeKey(job.Tool, sess.AdapterState)

	logw, err := joblog.Open(c.dataDir, jobID)
	if err != nil {
		return err
	}
	defer logw.Close()

	hooks := c.getHooks()
	onProgress := func(p adapter.Progress) {
		if hooks.OnJobProgress != nil {
			hooks.OnJobProgress(threadID, jobID, p)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), CLITimeoutSec*time.Second)
	defer cancel()

	start := time.Now()
	result, runErr := a.Run(ctx, adapter.Request{
		Prompt:     job.Prompt,
		Cwd:        proj.Path,
		TimeoutSec: CLITimeoutSec,
		ResumeKey:  resumeKey,
		OnProgress: onProgress,
		OnLine:     logw.Line,
		OnPID:      func(pid int) { writePIDHint(c.dataDir, jobID, pid) },
	})
	removePIDHint(c.dataDir, jobID)
	metrics.AdapterDuration.WithLabelValues(job.Tool).Observe(time.Since(start).Seconds())

	if runErr != nil {
		code, _ := errcode.As(runErr)
		metrics.AdapterInvocations.WithLabelValues(job.Tool, "failed").Inc()
		metrics.JobOutcomes.WithLabelValues("failed", string(code)).Inc()
		_, err := c.store.Append(eventlog.JobFailed, eventlog.JobFailedPayload{
			ThreadID:     threadID,
			JobID:        jobID,
			ErrorCode:    string(code),
			ErrorMessage: runErr.Error(),
			AdapterState: result.AdapterState,
		})
		c.finishHook(threadID, jobID, "failed")
		return err
	}

	metrics.AdapterInvocations.WithLabelValues(job.Tool, "success").Inc()
	metrics.JobOutcomes.WithLabelValues("success", "").Inc()
	_, err = c.store.Append(eventlog.JobCompleted, eventlog.JobCompletedPayload{
		ThreadID:      threadID,
		JobID:         jobID,
		ResultExcerpt: adapter.Excerpt(result.AssistantText),
		AdapterState:  result.AdapterState,
	})
	c.finishHook(threadID, jobID, "success")
	return err
}

func (c *Coordinator) finishHook(threadID, jobID, state string) {
	if hook := c.getHooks().OnJobFinished; hook != nil {
		hook(threadID, jobID, state)
	}
}

// resolveResumeKey picks the resume key out of adapter state: tool B keys
// off thread_id, tools A and C key off session_id; empty/missing means "no
// resume".
func resolveResumeKey(tool string, adapterState map[string]string) string {
	key := "session_id"
	if strings.EqualFold(tool, "B") {
		key = "thread_id"
	}
	return adapterState[key]
}
