package sandbox

import (
	"fmt"

	"github.com/shellbot/shellbot/pkg/types"
)

// DefaultNamePrefix prefixes every sandbox container name.
const DefaultNamePrefix = "discord-linux-shell"

// ContainerName derives the deterministic container name for a distro.
func ContainerName(prefix, distro string) string {
	return fmt.Sprintf("%s-%s", prefix, distro)
}

// state is the single sandbox record. Only the Manager reads or writes it,
// always under Manager.mu.
type state struct {
	distro        types.DistroEntry
	containerID   string // empty when no container is recorded
	containerName string
	hardening     types.Hardening
	phase         types.SandboxPhase
}

func newState(prefix string, d types.DistroEntry, h types.Hardening) state {
	return state{
		distro:        d,
		containerName: ContainerName(prefix, d.Name),
		hardening:     h,
		phase:         types.SandboxPhaseAbsent,
	}
}

func (s state) status() types.SandboxStatus {
	return types.SandboxStatus{
		Phase:         s.phase,
		Distro:        s.distro.Name,
		Image:         s.distro.Image,
		ContainerID:   s.containerID,
		ContainerName: s.containerName,
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
