package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shellbot/shellbot/internal/container"
	"github.com/shellbot/shellbot/internal/metrics"
	"github.com/shellbot/shellbot/pkg/types"
)

const (
	// DefaultMaxOutput keeps a rendered result inside a 2000 character chat message.
	DefaultMaxOutput = 1900
	minMaxOutput     = 64

	// TimeoutExitCode is reported for commands cancelled by deadline, like timeout(1).
	TimeoutExitCode = 124

	// ExecIDEnv tags every process a command starts so it can be found later.
	ExecIDEnv = "SHELLBOT_EXEC_ID"

	truncationMarker = "\n… (output truncated)"
	killTimeout      = 5 * time.Second
)

// RepairNotice is shown to the user when a command had to wait for a rebuild.
const RepairNotice = "🧹 The container environment was unhealthy. Rebuilding…"

// ErrEmptyCommand is returned for a blank command line.
var ErrEmptyCommand = errors.New("command is empty")

// ExecutorConfig tunes command execution.
type ExecutorConfig struct {
	MaxOutput int           // bytes of output kept, default 1900
	Timeout   time.Duration // 0 means no deadline beyond the caller's context
	// Validate, when set, may reject a command before it reaches the sandbox.
	Validate func(command string) error
}

// Executor runs user commands in the sandbox the Manager keeps ready.
type Executor struct {
	mgr       *Manager
	maxOutput int
	timeout   time.Duration
	validate  func(string) error
}

// NewExecutor creates an executor bound to mgr.
func NewExecutor(mgr *Manager, cfg ExecutorConfig) *Executor {
	maxOutput := cfg.MaxOutput
	if maxOutput == 0 {
		maxOutput = DefaultMaxOutput
	}
	if maxOutput < minMaxOutput {
		maxOutput = minMaxOutput
	}
	return &Executor{
		mgr:       mgr,
		maxOutput: maxOutput,
		timeout:   cfg.Timeout,
		validate:  cfg.Validate,
	}
}

// Run executes command through /bin/sh inside the sandbox. A nonzero exit is
// reported in the result, not as an error. If the container disappears while
// the command is being sent, the sandbox is repaired and the command retried
// once.
func (e *Executor) Run(ctx context.Context, command string) (*types.ExecutionResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrEmptyCommand
	}
	if e.validate != nil {
		if err := e.validate(command); err != nil {
			return nil, err
		}
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	execID := uuid.New().String()
	env := map[string]string{ExecIDEnv: execID}
	start := time.Now()
	repaired := false

	for attempt := 0; ; attempt++ {
		r, release, err := e.mgr.acquire(runCtx)
		if err != nil {
			return nil, err
		}
		repaired = repaired || r.Repaired

		out, err := e.mgr.rt.Exec(runCtx, r.ContainerID, []string{"/bin/sh", "-c", command}, env)
		if err != nil && runCtx.Err() != nil {
			e.killExec(r.ContainerID, execID)
			release()
			if ctx.Err() != nil {
				metrics.ExecTotal.WithLabelValues(r.Distro.Name, "error").Inc()
				return nil, ctx.Err()
			}
			log.Printf("sandbox: exec %s timed out after %s", shortID(execID), e.timeout)
			metrics.ExecTotal.WithLabelValues(r.Distro.Name, "timeout").Inc()
			res := e.result(execID, command, r.Distro.Name, out, start, repaired)
			res.ExitCode = TimeoutExitCode
			res.TimedOut = true
			return res, nil
		}
		if errors.Is(err, container.ErrContainerMissing) && out != nil {
			// The diagnostic may have been printed by the command itself.
			if healthy, herr := e.mgr.rt.Healthy(runCtx, r.ContainerID); herr == nil && healthy {
				err = nil
			}
		}
		release()

		if errors.Is(err, container.ErrContainerMissing) && attempt == 0 {
			log.Printf("sandbox: container %s vanished during exec, repairing", r.ContainerName)
			e.mgr.Invalidate(r.ContainerID)
			continue
		}
		if err != nil {
			metrics.ExecTotal.WithLabelValues(r.Distro.Name, "error").Inc()
			return nil, fmt.Errorf("exec in %s: %w", r.ContainerName, err)
		}

		outcome := "ok"
		if out.ExitCode != 0 {
			outcome = "nonzero"
		}
		metrics.ExecTotal.WithLabelValues(r.Distro.Name, outcome).Inc()
		metrics.ExecDuration.WithLabelValues(r.Distro.Name).Observe(time.Since(start).Seconds())
		return e.result(execID, command, r.Distro.Name, out, start, repaired), nil
	}
}

func (e *Executor) result(execID, command, distroName string, out *container.ExecOutput, start time.Time, repaired bool) *types.ExecutionResult {
	res := &types.ExecutionResult{
		ExecID:     execID,
		Command:    command,
		Distro:     distroName,
		Repaired:   repaired,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if out != nil {
		res.ExitCode = out.ExitCode
		res.Output, res.Truncated = truncate(strings.ToValidUTF8(out.Output, "�"), e.maxOutput)
	}
	if res.Truncated {
		metrics.OutputTruncatedTotal.Inc()
	}
	if repaired {
		res.Notice = RepairNotice
	}
	return res
}

// killExec kills every process in the container whose environment carries
// execID. Failures are logged; the container may already be gone.
func (e *Executor) killExec(containerID, execID string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	script := fmt.Sprintf(
		`for p in /proc/[0-9]*; do grep -q "%s=%s" "$p/environ" 2>/dev/null && kill -9 ${p#/proc/}; done; true`,
		ExecIDEnv, execID)
	if _, err := e.mgr.rt.Exec(ctx, containerID, []string{"/bin/sh", "-c", script}, nil); err != nil {
		log.Printf("sandbox: kill exec %s: %v", shortID(execID), err)
	}
}

// truncate caps s at max bytes, marker included, without splitting a rune.
func truncate(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	cut := max - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker, true
}
