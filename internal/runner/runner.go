// Package runner executes a job's Ruby script as a child process,
// enforcing its timeout, sanitizing its environment, and capturing its
// combined output, with a SIGTERM-then-SIGKILL escalation on timeout.
package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/cronsentinel/cronsentinel/internal/errs"
	"github.com/cronsentinel/cronsentinel/internal/job"
)

// GraceWindow is how long a job is given to exit after SIGTERM before
// SIGKILL is sent.
const GraceWindow = 2 * time.Second

// sanitizedPrefixes are environment variable prefixes stripped from the
// child's environment before it is launched, preventing the supervisor's
// own Ruby/RubyGems environment from leaking into jobs.
var sanitizedPrefixes = []string{"RUBY_", "GEM_"}

// Result is the outcome of one job execution.
type Result struct {
	Success       bool
	ExitCode      int
	Output        string
	TimedOut      bool
	ExecutionTime time.Duration
}

// Interpreter is the command used to run a job's execute.rb. It is a var
// rather than a constant so tests can substitute a fake interpreter.
var Interpreter = "ruby"

// Run executes d's executable under a timeout derived from
// d.TimeoutSeconds, re-validating the executable immediately before
// spawning it, guarding against the executable being swapped out
// between load and fire.
//
// A non-nil error means the job did not succeed (timeout, non-zero
// exit, or a lower-level spawn failure). The returned Result is still
// populated on error so the caller can record output and execution
// time in history.
func Run(ctx context.Context, d *job.Descriptor, env map[string]string) (Result, error) {
	if err := d.RevalidateExecutable(); err != nil {
		return Result{}, err
	}

	timeout := time.Duration(d.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, Interpreter, d.ExecutablePath())
	cmd.Dir = d.Path
	cmd.Env = buildEnv(env)

	// CommandContext's default cancel behavior is an immediate Process.Kill,
	// which would race the SIGTERM-then-grace escalation below. Override it
	// to send SIGTERM instead, and bound how long Wait gives the process to
	// exit on its own before os/exec forces a SIGKILL.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = GraceWindow

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, errs.Wrap(errs.Execution, err, "Execution failed: %s", err)
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	res := Result{
		Output:        output.String(),
		ExecutionTime: elapsed,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, errs.New(errs.Timeout, "Job timed out after %d seconds", d.TimeoutSeconds)
	}

	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode == 0 {
			res.Success = true
			return res, nil
		}
		return res, errs.New(errs.Execution, "Job failed with exit code %d: %s", res.ExitCode, res.Output)
	}
	if waitErr != nil {
		return res, errs.Wrap(errs.Execution, waitErr, "Execution failed: %s", waitErr)
	}

	res.ExitCode = 0
	res.Success = true
	return res, nil
}

// buildEnv merges the process environment with env, stripping any
// variable whose name carries one of sanitizedPrefixes, then appending
// env's resolved entries last so they take precedence on name collision.
func buildEnv(env map[string]string) []string {
	base := filteredOSEnviron()
	for k, v := range env {
		base = append(base, k+"="+v)
	}
	return base
}

func filteredOSEnviron() []string {
	var out []string
	for _, kv := range os.Environ() {
		name := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			name = kv[:idx]
		}
		if hasSanitizedPrefix(name) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func hasSanitizedPrefix(name string) bool {
	for _, prefix := range sanitizedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
