// Package toolchain runs the build tool against students' working copies.
//
// A Runner executes one process, either on the host or inside a container.
// Gradle turns runner results into build, test and documentation checks.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Command is one process invocation. Dir is a host directory; runners that
// isolate the process make it available as the working directory.
type Command struct {
	Dir  string
	Name string
	Args []string
	Env  []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a process that ran to completion. A non-zero exit
// code is a Result, not an error.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Success reports whether the process exited with code 0.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Tail returns the last n lines of the output.
func (r Result) Tail(n int) string {
	lines := strings.Split(strings.TrimRight(r.Output, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Runner executes commands. An error means the process could not be run or
// waited for.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// maxOutput bounds how much process output is kept in a Result.
const maxOutput = 64 << 10

// waitDelay bounds how long output pipes are drained after the process is
// killed, in case it left children holding them.
const waitDelay = 5 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// LocalRunner runs commands directly on the host.
type LocalRunner struct {
	timeout time.Duration
	env     []string
}

// NewLocalRunner creates a runner. A zero timeout means no limit. env is
// appended to every command's environment.
func NewLocalRunner(timeout time.Duration, env ...string) *LocalRunner {
	return &LocalRunner{timeout: timeout, env: env}
}

// Run implements Runner.
func (r *LocalRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = waitDelay
	if len(r.env) > 0 || len(cmd.Env) > 0 {
		c.Env = append(append(c.Environ(), r.env...), cmd.Env...)
	}
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	start := time.Now()
	err := c.Run()
	res := Result{Output: truncate(out.String()), Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("run %q: %w", cmd.String(), ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("run %q: %w", cmd.String(), err)
	}
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return s[len(s)-maxOutput:]
}
