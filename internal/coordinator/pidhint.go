// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"orc/internal/logx"
)

const pidHintDir = "pidhints"

// writePIDHint records which OS pid is currently running a job, purely as
// an informational crash-diagnostics aid — the event log's crash recovery
// is unconditional and does not consult this file.
func writePIDHint(dataDir, jobID string, pid int) error {
	dir := filepath.Join(dataDir, pidHintDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, jobID), []byte(strconv.Itoa(pid)), 0o644)
}

func removePIDHint(dataDir, jobID string) {
	os.Remove(filepath.Join(dataDir, pidHintDir, jobID))
}

// CrossCheckStalePIDs inspects any pid hints left over from a prior run
// (jobs that were mid-flight when the process died) and logs whether that
// pid is still alive. It never changes engine state — by the time this
// runs, eventlog.Store.Open has already unconditionally marked those jobs
// unknown_after_crash; this only tells the operator whether the old child
// process also needs a manual kill.
func CrossCheckStalePIDs(dataDir string) {
	log := logx.New("coordinator")
	dir := filepath.Join(dataDir, pidHintDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			os.Remove(filepath.Join(dir, e.Name()))
			continue
		}
		if proc, err := ps.FindProcess(pid); err == nil && proc != nil {
			log.Warn("job %s: pid %d from prior run is still alive (%s) — consider a manual kill", e.Name(), pid, proc.Executable())
		} else {
			log.Debug("job %s: pid %d from prior run is gone", e.Name(), pid)
		}
		os.Remove(filepath.Join(dir, e.Name()))
	}
}
