// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAdapterInvocationsCountsByToolAndOutcome(t *testing.T) {
	AdapterInvocations.WithLabelValues("A", "success").Inc()
	AdapterInvocations.WithLabelValues("A", "success").Inc()
	AdapterInvocations.WithLabelValues("A", "failed").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(AdapterInvocations.WithLabelValues("A", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(AdapterInvocations.WithLabelValues("A", "failed")))
}

func TestJobOutcomesCountsByStateAndErrorCode(t *testing.T) {
	JobOutcomes.WithLabelValues("failed", "E_CLI_TIMEOUT").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(JobOutcomes.WithLabelValues("failed", "E_CLI_TIMEOUT")))
}

func TestRunningJobsGauge(t *testing.T) {
	RunningJobs.Set(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(RunningJobs))
}
