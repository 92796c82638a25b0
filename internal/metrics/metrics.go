// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus instrumentation for the scheduler and
// adapters, the way maestro's pkg/metrics instruments its own dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunningJobs is the current count of jobs in state running, across
	// all threads — should never exceed scheduler.GlobalMaxRunning.
	RunningJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orc",
		Name:      "running_jobs",
		Help:      "Number of jobs currently running across all sessions.",
	})

	// QueueDepth is the total count of queued jobs across all sessions.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orc",
		Name:      "queue_depth",
		Help:      "Total number of queued jobs across all sessions.",
	})

	// AdapterInvocations counts adapter runs by tool and outcome.
	AdapterInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orc",
		Name:      "adapter_invocations_total",
		Help:      "Adapter invocations by tool and outcome (success|failed).",
	}, []string{"tool", "outcome"})

	// AdapterDuration observes wall-clock seconds per adapter invocation.
	AdapterDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orc",
		Name:      "adapter_duration_seconds",
		Help:      "Adapter invocation duration in seconds, by tool.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34min
	}, []string{"tool"})

	// JobOutcomes counts terminal job states by error code (empty for
	// success).
	JobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orc",
		Name:      "job_outcomes_total",
		Help:      "Terminal job outcomes by state and error_code.",
	}, []string{"state", "error_code"})
)
