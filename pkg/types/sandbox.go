package types

import "time"

// SandboxPhase is the lifecycle manager's view of the sandbox container.
type SandboxPhase string

const (
	SandboxPhaseAbsent    SandboxPhase = "absent"
	SandboxPhaseRunning   SandboxPhase = "running"
	SandboxPhaseUnhealthy SandboxPhase = "unhealthy"
)

// SandboxStatus is a read-only snapshot of the sandbox for display.
type SandboxStatus struct {
	Phase         SandboxPhase `json:"phase"`
	Distro        string       `json:"distro"`
	Image         string       `json:"image"`
	ContainerID   string       `json:"containerID,omitempty"`
	ContainerName string       `json:"containerName"`
}

// Hardening is the set of resource and isolation limits applied to every
// sandbox container. It is built once at startup and never mutated.
type Hardening struct {
	Memory       string            `json:"memory,omitempty"`   // e.g. "256m"
	CPUQuota     int64             `json:"cpuQuota,omitempty"` // microseconds per 100ms period
	PidsLimit    int               `json:"pidsLimit,omitempty"`
	ReadOnlyRoot bool              `json:"readOnlyRoot"`
	CapDrop      []string          `json:"capDrop,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	AllowedEnv   []string          `json:"allowedEnv,omitempty"`
	TmpFS        map[string]string `json:"tmpfs,omitempty"` // mount -> options
	NetworkMode  string            `json:"networkMode,omitempty"`
}

// ContainerEnv returns the subset of Env whose names are allow-listed.
func (h Hardening) ContainerEnv() map[string]string {
	allowed := make(map[string]bool, len(h.AllowedEnv))
	for _, name := range h.AllowedEnv {
		allowed[name] = true
	}
	env := make(map[string]string)
	for k, v := range h.Env {
		if allowed[k] {
			env[k] = v
		}
	}
	return env
}

// DefaultHardening mirrors the limits the sandbox has always run with.
func DefaultHardening() Hardening {
	return Hardening{
		Memory:       "256m",
		CPUQuota:     20000,
		PidsLimit:    256,
		ReadOnlyRoot: true,
		CapDrop:      []string{"ALL"},
		Env: map[string]string{
			"PATH": "/usr/bin:/bin",
			"LANG": "C.UTF-8",
			"TERM": "xterm",
		},
		AllowedEnv: []string{"PATH", "LANG", "TERM"},
		TmpFS:      map[string]string{"/tmp": "rw,size=64m"},
	}
}

// SandboxEventType names a lifecycle transition.
type SandboxEventType string

const (
	SandboxEventCreated      SandboxEventType = "created"
	SandboxEventAdopted      SandboxEventType = "adopted"
	SandboxEventRepaired     SandboxEventType = "repaired"
	SandboxEventRemoved      SandboxEventType = "removed"
	SandboxEventSwitched     SandboxEventType = "switched"
	SandboxEventSwitchFailed SandboxEventType = "switch_failed"
)

// SandboxEvent describes a lifecycle transition reported to observers.
type SandboxEvent struct {
	ID            string           `json:"id"`
	Type          SandboxEventType `json:"type"`
	Distro        string           `json:"distro"`
	ContainerID   string           `json:"containerID,omitempty"`
	ContainerName string           `json:"containerName"`
	Previous      string           `json:"previous,omitempty"` // previous distro on switch
	Error         string           `json:"error,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}
