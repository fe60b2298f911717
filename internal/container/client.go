package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shellbot/shellbot/internal/metrics"
)

var (
	// ErrRuntimeUnavailable means the runtime daemon or binary cannot be reached.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	// ErrContainerMissing means the runtime does not know the requested container.
	ErrContainerMissing = errors.New("container not found")
)

// Client wraps the docker (or podman) CLI for container operations.
// Both binaries accept the same subset of commands used here.
type Client struct {
	binary     string
	binaryPath string
}

// NewClient creates a client for the given runtime binary ("docker" or "podman").
func NewClient(binary string) (*Client, error) {
	if binary == "" {
		binary = "docker"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH: %v", ErrRuntimeUnavailable, binary, err)
	}
	return &Client{binary: binary, binaryPath: path}, nil
}

// ExecResult holds the output from a runtime command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes a runtime command and returns the result. A nonzero exit is
// reported in ExitCode, not as an error.
func (c *Client) Run(ctx context.Context, args ...string) (*ExecResult, error) {
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("%w: %s %s: %v", ErrRuntimeUnavailable, c.binary, firstArg(args), err)
	}

	return result, nil
}

// RunJSON executes a runtime command and parses JSON output into dest.
func (c *Client) RunJSON(ctx context.Context, dest interface{}, args ...string) error {
	result, err := c.Run(ctx, args...)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return c.failure(args, result)
	}
	if err := json.Unmarshal([]byte(result.Stdout), dest); err != nil {
		return fmt.Errorf("failed to parse %s output: %w", c.binary, err)
	}
	return nil
}

// Version returns the runtime server version, which requires a reachable daemon.
func (c *Client) Version(ctx context.Context) (string, error) {
	defer metrics.ObserveRuntimeOp("version", time.Now())

	result, err := c.Run(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		if classify(result.Stderr) == ErrRuntimeUnavailable {
			return "", c.failure([]string{"version"}, result)
		}
		// podman without a service has no Server section.
		result, err = c.Run(ctx, "version", "--format", "{{.Client.Version}}")
		if err != nil {
			return "", err
		}
		if result.ExitCode != 0 {
			return "", c.failure([]string{"version"}, result)
		}
	}
	return strings.TrimSpace(result.Stdout), nil
}

// failure converts a nonzero runtime exit into a classified error.
func (c *Client) failure(args []string, result *ExecResult) error {
	msg := strings.TrimSpace(result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(result.Stdout)
	}
	err := fmt.Errorf("%s %s failed (exit %d): %s", c.binary, firstArg(args), result.ExitCode, msg)
	switch classify(msg) {
	case ErrRuntimeUnavailable:
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	case ErrContainerMissing:
		return fmt.Errorf("%w: %v", ErrContainerMissing, err)
	}
	return err
}

var unavailableMarkers = []string{
	"cannot connect to the docker daemon",
	"is the docker daemon running",
	"permission denied while trying to connect",
	"error during connect",
	"unable to connect to podman",
	"cannot connect to podman",
}

var missingMarkers = []string{
	"no such container",
	"no such object",
	"no container with name or id",
	"no such id",
	"is not running",
}

// classify maps runtime diagnostics to sentinel errors. It returns nil when
// the message matches neither category.
func classify(msg string) error {
	lower := strings.ToLower(msg)
	for _, m := range unavailableMarkers {
		if strings.Contains(lower, m) {
			return ErrRuntimeUnavailable
		}
	}
	for _, m := range missingMarkers {
		if strings.Contains(lower, m) {
			return ErrContainerMissing
		}
	}
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
