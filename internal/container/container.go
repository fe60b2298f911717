package container

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shellbot/shellbot/internal/metrics"
	"github.com/shellbot/shellbot/pkg/types"
)

const (
	// LabelManaged marks containers owned by shellbot.
	LabelManaged = "shellbot.managed"
	// LabelDistro records the distro a container was created for.
	LabelDistro = "shellbot.distro"
)

// ContainerConfig defines how to create a container.
type ContainerConfig struct {
	Name        string
	Image       string
	Labels      map[string]string
	Env         map[string]string
	Memory      string // e.g. "256m"
	CPUQuota    int64
	PidsLimit   int
	NetworkMode string
	ReadOnly    bool
	TmpFS       map[string]string // mount -> options
	CapDrop     []string
	Entrypoint  string
	Command     []string
}

// SandboxConfig builds the container config for a sandbox from its hardening
// limits. The keep-alive process keeps the container from exiting on its own.
func SandboxConfig(name, image string, h types.Hardening) ContainerConfig {
	return ContainerConfig{
		Name:        name,
		Image:       image,
		Labels:      map[string]string{LabelManaged: "true"},
		Env:         h.ContainerEnv(),
		Memory:      h.Memory,
		CPUQuota:    h.CPUQuota,
		PidsLimit:   h.PidsLimit,
		NetworkMode: h.NetworkMode,
		ReadOnly:    h.ReadOnlyRoot,
		TmpFS:       h.TmpFS,
		CapDrop:     h.CapDrop,
		Entrypoint:  "tail",
		Command:     []string{"-f", "/dev/null"},
	}
}

// createArgs renders cfg as runtime CLI arguments. Map-valued options are
// emitted in sorted order.
func createArgs(cfg ContainerConfig) []string {
	args := []string{"create", "--name", cfg.Name}

	for _, k := range sortedKeys(cfg.Labels) {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, cfg.Labels[k]))
	}
	for _, k := range sortedKeys(cfg.Env) {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, cfg.Env[k]))
	}

	if cfg.Memory != "" {
		args = append(args, "--memory", cfg.Memory)
	}
	if cfg.CPUQuota > 0 {
		args = append(args, "--cpu-quota", strconv.FormatInt(cfg.CPUQuota, 10))
	}
	if cfg.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(cfg.PidsLimit))
	}
	if cfg.NetworkMode != "" {
		args = append(args, "--network", cfg.NetworkMode)
	}
	if cfg.ReadOnly {
		args = append(args, "--read-only")
	}
	for _, mount := range sortedKeys(cfg.TmpFS) {
		spec := mount
		if opts := cfg.TmpFS[mount]; opts != "" {
			spec = mount + ":" + opts
		}
		args = append(args, "--tmpfs", spec)
	}
	for _, c := range cfg.CapDrop {
		args = append(args, "--cap-drop", c)
	}
	if cfg.Entrypoint != "" {
		args = append(args, "--entrypoint", cfg.Entrypoint)
	}

	args = append(args, cfg.Image)
	args = append(args, cfg.Command...)
	return args
}

// Create creates (but does not start) a hardened sandbox container and
// returns its ID. The image is pulled first when it is not present locally.
func (c *Client) Create(ctx context.Context, name, image string, h types.Hardening) (string, error) {
	exists, err := c.ImageExists(ctx, image)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := c.PullImage(ctx, image); err != nil {
			return "", err
		}
	}

	cfg := SandboxConfig(name, image, h)
	cfg.Labels[LabelDistro] = distroLabel(name)

	defer metrics.ObserveRuntimeOp("create", time.Now())
	args := createArgs(cfg)
	result, err := c.Run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", name, err)
	}
	if result.ExitCode != 0 {
		return "", c.failure(args, result)
	}

	return strings.TrimSpace(result.Stdout), nil
}

// distroLabel extracts the distro suffix from a "<prefix>-<distro>" name.
func distroLabel(name string) string {
	if i := strings.LastIndex(name, "-"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Start starts a container by name or ID. Starting a running container is a no-op.
func (c *Client) Start(ctx context.Context, nameOrID string) error {
	defer metrics.ObserveRuntimeOp("start", time.Now())
	return c.lifecycle(ctx, "start", nameOrID)
}

// Stop stops a container. A missing container counts as stopped.
func (c *Client) Stop(ctx context.Context, nameOrID string, timeoutSec int) error {
	defer metrics.ObserveRuntimeOp("stop", time.Now())
	args := []string{"stop"}
	if timeoutSec > 0 {
		args = append(args, "--time", strconv.Itoa(timeoutSec))
	}
	args = append(args, nameOrID)
	err := c.lifecycle(ctx, args...)
	if errors.Is(err, ErrContainerMissing) {
		return nil
	}
	return err
}

// Remove force-removes a container. Removing an unknown container is not an error.
func (c *Client) Remove(ctx context.Context, nameOrID string) error {
	defer metrics.ObserveRuntimeOp("remove", time.Now())
	err := c.lifecycle(ctx, "rm", "--force", nameOrID)
	if errors.Is(err, ErrContainerMissing) {
		return nil
	}
	return err
}

func (c *Client) lifecycle(ctx context.Context, args ...string) error {
	result, err := c.Run(ctx, args...)
	if err != nil {
		return fmt.Errorf("failed to %s container %s: %w", args[0], args[len(args)-1], err)
	}
	if result.ExitCode != 0 {
		return c.failure(args, result)
	}
	return nil
}

// ContainerInfo holds inspect output for a container.
type ContainerInfo struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status    string `json:"Status"`
		Running   bool   `json:"Running"`
		StartedAt string `json:"StartedAt"`
	} `json:"State"`
	Config struct {
		Labels map[string]string `json:"Labels"`
		Image  string            `json:"Image"`
	} `json:"Config"`
}

// Inspect returns detailed info about a container. A missing container
// yields ErrContainerMissing.
func (c *Client) Inspect(ctx context.Context, nameOrID string) (*ContainerInfo, error) {
	defer metrics.ObserveRuntimeOp("inspect", time.Now())

	var infos []ContainerInfo
	if err := c.RunJSON(ctx, &infos, "container", "inspect", nameOrID); err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", nameOrID, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrContainerMissing, nameOrID)
	}
	return &infos[0], nil
}

// Healthy reports whether the container is known to the runtime and running.
// Only an unreachable runtime is returned as an error.
func (c *Client) Healthy(ctx context.Context, nameOrID string) (bool, error) {
	info, err := c.Inspect(ctx, nameOrID)
	if err != nil {
		if errors.Is(err, ErrRuntimeUnavailable) {
			return false, err
		}
		return false, nil
	}
	return info.State.Running, nil
}

// PullImage pulls a container image.
func (c *Client) PullImage(ctx context.Context, image string) error {
	defer metrics.ObserveRuntimeOp("pull", time.Now())
	result, err := c.Run(ctx, "pull", image)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	if result.ExitCode != 0 {
		return c.failure([]string{"pull", image}, result)
	}
	return nil
}

// ImageExists checks whether an image is available locally.
func (c *Client) ImageExists(ctx context.Context, image string) (bool, error) {
	result, err := c.Run(ctx, "image", "inspect", "--format", "{{.Id}}", image)
	if err != nil {
		return false, err
	}
	if result.ExitCode != 0 && classify(result.Stderr) == ErrRuntimeUnavailable {
		return false, c.failure([]string{"image"}, result)
	}
	return result.ExitCode == 0, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
