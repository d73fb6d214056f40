package operation

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/merge"
)

// killGrace is how long a killed command gets to exit before it is
// abandoned.
const killGrace = time.Second

// CommandLine runs an external merge command. The first parameter is the
// command template, the optional second one a timeout in seconds.
//
// Placeholders %BASE%, %CURRENT%, %OTHER%, %OUTPUT% and %FILE% are replaced
// with the corresponding paths; the placeholder of an absent revision is left
// as is. Exit status 0 means merged, 1 means conflicts, anything else is an
// error.
type CommandLine struct {
	deps Deps
}

func (*CommandLine) Name() string { return "command-line-merge" }

func (*CommandLine) Description() string {
	return "Merges files using a specified command line tool or script"
}

func (o *CommandLine) Execute(ctx *merge.Context, params []string) (merge.Result, error) {
	if len(params) == 0 || strings.TrimSpace(params[0]) == "" {
		return merge.Failure("no command specified for command-line merge", errors.ErrInvalidInput), nil
	}

	timeout := o.deps.CommandTimeout
	if len(params) > 1 {
		secs, err := strconv.Atoi(strings.TrimSpace(params[1]))
		if err != nil || secs <= 0 {
			o.deps.Logger.Warn("invalid timeout, using default",
				"timeout", params[1], "default_seconds", int(o.deps.CommandTimeout/time.Second))
		} else {
			timeout = time.Duration(secs) * time.Second
		}
	}

	command := expandPlaceholders(params[0], ctx)
	o.deps.Logger.Debug("executing merge command", "command", command, "timeout", timeout)

	run, err := runCommand(command, timeout)
	if err != nil {
		return merge.Result{}, errors.Wrap(err, "failed to execute command")
	}
	if run.timedOut {
		o.deps.Logger.Error("merge command timed out", "command", command, "timeout", timeout, "stderr", run.stderr)
		msg := fmt.Sprintf("command timed out after %d seconds", int(timeout/time.Second))
		if stderr := strings.TrimSpace(run.stderr); stderr != "" {
			msg += ": " + stderr
		}
		return merge.Failure(msg, errors.NewTimeoutError("command-line-merge", timeout)), nil
	}

	switch run.exitCode {
	case 0:
		o.deps.Logger.Debug("merge command successful")
		return merge.Success("command-line merge successful: "+run.stdout, ctx.OutputPath()), nil
	case 1:
		o.deps.Logger.Debug("merge command reported conflicts")
		r := merge.Conflict("command-line merge resulted in conflicts: "+run.stderr, "")
		r.Err = errors.ErrMergeConflict
		return r, nil
	default:
		o.deps.Logger.Error("merge command failed", "exit_code", run.exitCode, "stderr", run.stderr)
		return merge.Failure(
			fmt.Sprintf("command-line merge failed with exit code %d: %s", run.exitCode, run.stderr),
			errors.ErrOperationFailed,
		), nil
	}
}

func expandPlaceholders(template string, ctx *merge.Context) string {
	var pairs []string
	add := func(placeholder, value string) {
		if value != "" {
			pairs = append(pairs, placeholder, value)
		}
	}
	add("%BASE%", ctx.BasePath)
	add("%CURRENT%", ctx.CurrentPath)
	add("%OTHER%", ctx.OtherPath)
	add("%OUTPUT%", ctx.OutputPath())
	add("%FILE%", ctx.RelativePath)
	return strings.NewReplacer(pairs...).Replace(template)
}

// syncBuffer collects a pipe's output. It may be read while the drain is
// still writing, which happens when a killed command outlives the grace
// period.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type commandRun struct {
	exitCode int
	stdout   string
	stderr   string
	timedOut bool
}

// runCommand runs command through the platform shell in its own process
// group. Both output pipes are drained concurrently so a chatty command
// cannot block on a full pipe. On timeout the whole group is killed.
func runCommand(command string, timeout time.Duration) (commandRun, error) {
	cmd := shellCommand(command)
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return commandRun{}, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return commandRun{}, err
	}
	if err := cmd.Start(); err != nil {
		return commandRun{}, err
	}

	var stdout, stderr syncBuffer
	var drains conc.WaitGroup
	drains.Go(func() { _, _ = io.Copy(&stdout, stdoutPipe) })
	drains.Go(func() { _, _ = io.Copy(&stderr, stderrPipe) })

	// Wait must not run before the pipes are fully read. The waiter is a
	// plain goroutine so a timed out run can abandon it.
	done := make(chan error, 1)
	go func() {
		drains.Wait()
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		run := commandRun{stdout: stdout.String(), stderr: stderr.String()}
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return commandRun{}, err
			}
			run.exitCode = exitErr.ExitCode()
		}
		return run, nil
	case <-timer.C:
		killProcessGroup(cmd)
		select {
		case <-done:
		case <-time.After(killGrace):
		}
		return commandRun{stdout: stdout.String(), stderr: stderr.String(), timedOut: true}, nil
	}
}
