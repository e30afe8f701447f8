package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/orrn/printconnect/internal/logger"
)

const (
	fileArgPlaceholder = "{file}"
	maxStderrBytes     = 512
	processWaitDelay   = 2 * time.Second
)

// PrimaryExecutor prints synchronously: success means the process exited
// cleanly within timeout.
type PrimaryExecutor interface {
	Run(ctx context.Context, path string, timeout time.Duration) error
}

// FallbackExecutor only reports whether the print process could be started.
type FallbackExecutor interface {
	Launch(ctx context.Context, path string) error
}

type CommandSpec struct {
	Path string
	Args []string
}

func (c CommandSpec) args(file string) []string {
	args := make([]string, 0, len(c.Args)+1)
	substituted := false
	for _, a := range c.Args {
		if strings.Contains(a, fileArgPlaceholder) {
			a = strings.ReplaceAll(a, fileArgPlaceholder, file)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, file)
	}
	return args
}

func (c CommandSpec) name() string {
	return filepath.Base(c.Path)
}

func classifyStartError(executor string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %v", ErrExecutorNotFound, executor, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrExecutorLaunch, executor, err)
}

// CommandPrimary runs a silent, auto-exiting document printer such as
// SumatraPDF with -print-to-default -silent -exit-on-print.
type CommandPrimary struct {
	spec CommandSpec
}

func NewCommandPrimary(spec CommandSpec) *CommandPrimary {
	return &CommandPrimary{spec: spec}
}

func (e *CommandPrimary) Run(ctx context.Context, path string, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.spec.Path, e.spec.args(path)...)
	cmd.WaitDelay = processWaitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrExecutorTimeout, e.spec.name(), timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrBytes {
			msg = msg[:maxStderrBytes]
		}
		return &ExecutorExitError{
			Executor: e.spec.name(),
			Code:     exitErr.ExitCode(),
			Stderr:   msg,
		}
	}

	return classifyStartError(e.spec.name(), err)
}

// CommandFallback starts a browser in kiosk-printing mode and does not wait
// for it. The child is reaped in the background and killed once reapAfter
// elapses; zero means wait indefinitely.
type CommandFallback struct {
	spec      CommandSpec
	reapAfter time.Duration
}

func NewCommandFallback(spec CommandSpec, reapAfter time.Duration) *CommandFallback {
	return &CommandFallback{spec: spec, reapAfter: reapAfter}
}

func (e *CommandFallback) Launch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExecutorLaunch, e.spec.name(), err)
	}

	// not bound to ctx: the browser outlives the request
	cmd := exec.Command(e.spec.Path, e.spec.args(abs)...)
	if err := cmd.Start(); err != nil {
		return classifyStartError(e.spec.name(), err)
	}

	go e.reap(ctx, cmd)
	return nil
}

func (e *CommandFallback) reap(ctx context.Context, cmd *exec.Cmd) {
	log := logger.WithContext(ctx).With("executor", e.spec.name(), "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	if e.reapAfter <= 0 {
		err := <-done
		log.Debug("fallback process exited", "error", err)
		return
	}

	timer := time.NewTimer(e.reapAfter)
	defer timer.Stop()

	select {
	case err := <-done:
		log.Debug("fallback process exited", "error", err)
	case <-timer.C:
		log.Warn("fallback process still running, killing", "after", e.reapAfter)
		cmd.Process.Kill()
		<-done
	}
}
