// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"orc/internal/errcode"
	"orc/internal/logx"
)

const killGrace = 5 * time.Second

// maxLineBytes truncates any single captured line, guarding against a
// runaway child that never emits a newline.
const maxLineBytes = 1 << 20

// RunProcess spawns argv in cwd as its own process group, feeds stdin (if
// non-empty) and closes it, and streams stdout/stderr line-by-line to
// onLine. ctx's deadline is the hard per-invocation timeout: on expiry the
// child itself is killed through ctx (SIGKILL), the rest of its process
// group is sent SIGTERM, and the group is sent SIGKILL killGrace later.
// Returns errcode.ECLITimeout or errcode.ECLIExitNonzero on failure, nil on
// a zero exit.
func RunProcess(ctx context.Context, argv []string, cwd string, stdin string, onLine LineSink, onPID func(int)) error {
	if len(argv) == 0 {
		return errcode.New(errcode.EAdapterParse, "empty argv")
	}
	log := logx.New("adapter.process")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return errcode.Wrap(errcode.EAdapterParse, "stdout pipe", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return errcode.Wrap(errcode.EAdapterParse, "stderr pipe", err)
	}
	var stdinPipe io.WriteCloser
	if stdin != "" {
		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			return errcode.Wrap(errcode.EAdapterParse, "stdin pipe", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return errcode.Wrap(errcode.ECLIExitNonzero, "start", err)
	}
	if onPID != nil {
		onPID(cmd.Process.Pid)
	}

	if stdinPipe != nil {
		go func() {
			io.WriteString(stdinPipe, stdin)
			stdinPipe.Close()
		}()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); captureLines(stdoutPipe, StreamStdout, onLine) }()
	go func() { defer wg.Done(); captureLines(stderrPipe, StreamStderr, onLine) }()

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout(ctx), func() {
		timedOut.Store(true)
		log.Warn("adapter process %q exceeded timeout, sending SIGTERM to pgid", argv[0])
		killGroup(cmd, syscall.SIGTERM)
		time.AfterFunc(killGrace, func() {
			killGroup(cmd, syscall.SIGKILL)
		})
	})
	defer timer.Stop()

	wg.Wait()
	waitErr := cmd.Wait()

	if timedOut.Load() || ctx.Err() == context.DeadlineExceeded {
		return errcode.New(errcode.ECLITimeout, fmt.Sprintf("%s exceeded timeout", argv[0]))
	}
	if waitErr != nil {
		return errcode.Wrap(errcode.ECLIExitNonzero, "adapter process exited non-zero", waitErr)
	}
	return nil
}

func timeout(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		return time.Until(dl)
	}
	return 15 * time.Minute
}

func killGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		cmd.Process.Signal(sig)
		return
	}
	syscall.Kill(-pgid, sig)
}

// captureLines scans r for lines, splitting on \n (CR is trimmed), feeding
// each to onLine. A final partial fragment with no trailing newline is
// still delivered once the pipe closes.
func captureLines(r io.Reader, stream Stream, onLine LineSink) {
	if onLine == nil {
		io.Copy(io.Discard, r)
		return
	}
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			if len(line) > maxLineBytes {
				line = line[:maxLineBytes] + "... [truncated]"
			}
			onLine(stream, line)
		}
		if err != nil {
			return
		}
	}
}
