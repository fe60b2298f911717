package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shellbot/shellbot/internal/metrics"
)

// ExecOutput is the result of a command run inside a container.
type ExecOutput struct {
	// Output holds stdout and stderr interleaved in arrival order.
	Output   string
	ExitCode int
}

// Exec runs command inside a running container and blocks until it exits or
// ctx is done. A nonzero exit of the command is not an error; a missing
// container or unreachable runtime is.
func (c *Client) Exec(ctx context.Context, containerID string, command []string, env map[string]string) (*ExecOutput, error) {
	defer metrics.ObserveRuntimeOp("exec", time.Now())

	args := execArgs(containerID, command, env)
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)

	// os/exec copies each pipe on its own goroutine.
	var stderr bytes.Buffer
	combined := &lockedBuffer{}
	cmd.Stdout = combined
	cmd.Stderr = io.MultiWriter(combined, &stderr)

	err := cmd.Run()
	out := &ExecOutput{Output: combined.String()}

	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return out, fmt.Errorf("%w: %s exec: %v", ErrRuntimeUnavailable, c.binary, err)
		}
		out.ExitCode = exitErr.ExitCode()
		if cause := classifyExec(stderr.String()); cause != nil {
			return out, fmt.Errorf("%w: exec in %s: %s", cause, containerID, firstLine(stderr.String()))
		}
	}

	return out, nil
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execArgs(containerID string, command []string, env map[string]string) []string {
	args := []string{"exec"}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, env[k]))
	}
	args = append(args, containerID)
	return append(args, command...)
}

// execMissingMarkers is narrower than missingMarkers: the stderr of an
// exec belongs to the user's command, which may well print "is not running".
var execMissingMarkers = []string{
	"no such container",
	"no container with name or id",
}

// classifyExec only trusts runtime diagnostics on the first stderr line, so
// a user command printing similar text later in its output is not mistaken
// for a runtime failure. Callers still have to confirm a missing container,
// since the command itself may have written that first line.
func classifyExec(stderr string) error {
	line := firstLine(stderr)
	lower := strings.ToLower(line)
	if !strings.HasPrefix(lower, "error") && !strings.HasPrefix(lower, "cannot connect") {
		return nil
	}
	for _, m := range unavailableMarkers {
		if strings.Contains(lower, m) {
			return ErrRuntimeUnavailable
		}
	}
	for _, m := range execMissingMarkers {
		if strings.Contains(lower, m) {
			return ErrContainerMissing
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
