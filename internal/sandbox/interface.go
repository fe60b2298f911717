package sandbox

import (
	"context"

	"github.com/shellbot/shellbot/internal/container"
	"github.com/shellbot/shellbot/pkg/types"
)

// Runtime is the container capability the lifecycle manager depends on.
// *container.Client implements it; tests substitute a fake.
type Runtime interface {
	Create(ctx context.Context, name, image string, h types.Hardening) (string, error)
	Start(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string, timeoutSec int) error
	Remove(ctx context.Context, containerID string) error
	Exec(ctx context.Context, containerID string, command []string, env map[string]string) (*container.ExecOutput, error)
	Healthy(ctx context.Context, containerID string) (bool, error)
	Inspect(ctx context.Context, nameOrID string) (*container.ContainerInfo, error)
}

// Observer receives lifecycle transitions. Implementations must not call
// back into the Manager.
type Observer interface {
	SandboxEvent(ctx context.Context, ev types.SandboxEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev types.SandboxEvent)

// SandboxEvent calls f.
func (f ObserverFunc) SandboxEvent(ctx context.Context, ev types.SandboxEvent) { f(ctx, ev) }

// Observers fans an event out to every observer in order.
type Observers []Observer

// SandboxEvent delivers ev to each observer.
func (o Observers) SandboxEvent(ctx context.Context, ev types.SandboxEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.SandboxEvent(ctx, ev)
		}
	}
}
