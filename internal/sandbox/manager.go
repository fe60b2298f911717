package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shellbot/shellbot/internal/container"
	"github.com/shellbot/shellbot/internal/distro"
	"github.com/shellbot/shellbot/internal/metrics"
	"github.com/shellbot/shellbot/pkg/types"
)

const defaultStopTimeout = 5 // seconds

// Config wires a Manager.
type Config struct {
	Runtime        Runtime
	Registry       *distro.Registry
	Hardening      types.Hardening
	NamePrefix     string // default DefaultNamePrefix
	StopTimeoutSec int    // grace period when tearing a container down, default 5
	Observers      []Observer
}

// Readiness describes the container an EnsureReady call left running and
// what it had to do to get there.
type Readiness struct {
	Distro        types.DistroEntry
	ContainerID   string
	ContainerName string
	Created       bool
	Adopted       bool
	Repaired      bool
}

// SwitchResult reports the outcome of SwitchDistro.
type SwitchResult struct {
	Previous  types.DistroEntry
	Current   types.DistroEntry
	Changed   bool
	Readiness Readiness
}

// Manager owns the sandbox state and is the only component that creates,
// repairs, switches or removes the sandbox container.
//
// Lock order is inflight before mu. Commands hold inflight shared while they
// exec; SwitchDistro holds it exclusively so the container it replaces has
// no command running in it.
type Manager struct {
	rt          Runtime
	registry    *distro.Registry
	prefix      string
	stopTimeout int
	observers   Observers

	inflight sync.RWMutex
	mu       sync.Mutex
	state    state

	statusMu sync.RWMutex
	status   types.SandboxStatus
}

// NewManager creates a manager for the registry's active distro. No runtime
// calls are made until the first EnsureReady.
func NewManager(cfg Config) *Manager {
	prefix := cfg.NamePrefix
	if prefix == "" {
		prefix = DefaultNamePrefix
	}
	stopTimeout := cfg.StopTimeoutSec
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}

	m := &Manager{
		rt:          cfg.Runtime,
		registry:    cfg.Registry,
		prefix:      prefix,
		stopTimeout: stopTimeout,
		observers:   Observers(cfg.Observers),
		state:       newState(prefix, cfg.Registry.Active(), cfg.Hardening),
	}
	m.publishLocked()
	return m
}

// Registry returns the distro registry the manager switches between.
func (m *Manager) Registry() *distro.Registry {
	return m.registry
}

// AddObserver registers obs for all later transitions.
func (m *Manager) AddObserver(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Status returns the last recorded sandbox state. It makes no runtime calls
// and does not wait for an in-progress create or switch.
func (m *Manager) Status() types.SandboxStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// EnsureReady guarantees a running container for the active distro,
// creating, adopting or rebuilding it as needed.
func (m *Manager) EnsureReady(ctx context.Context) (Readiness, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(ctx)
}

// acquire ensures readiness and returns a shared lease on the container.
// The caller must call release once its exec has finished.
func (m *Manager) acquire(ctx context.Context) (Readiness, func(), error) {
	m.inflight.RLock()

	m.mu.Lock()
	r, err := m.ensureLocked(ctx)
	m.mu.Unlock()

	if err != nil {
		m.inflight.RUnlock()
		return Readiness{}, nil, err
	}
	return r, m.inflight.RUnlock, nil
}

// Invalidate marks containerID unhealthy if it is still the recorded
// container, so the next EnsureReady verifies and rebuilds it.
func (m *Manager) Invalidate(containerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if containerID == "" || m.state.containerID != containerID {
		return
	}
	m.state.phase = types.SandboxPhaseUnhealthy
	m.publishLocked()
}

// SwitchDistro replaces the sandbox with a container for the named distro.
// An unknown name returns distro.ErrNotFound and leaves everything as it was.
// If the replacement cannot be created, the previous distro stays active
// (without a container, which the next EnsureReady recreates).
func (m *Manager) SwitchDistro(ctx context.Context, name string) (SwitchResult, error) {
	entry, err := m.registry.Resolve(name)
	if err != nil {
		return SwitchResult{}, err
	}

	m.inflight.Lock()
	defer m.inflight.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	if entry.Name == prev.distro.Name {
		r, err := m.ensureLocked(ctx)
		if err != nil {
			return SwitchResult{}, err
		}
		return SwitchResult{Previous: prev.distro, Current: entry, Readiness: r}, nil
	}

	log.Printf("sandbox: switching distro %s -> %s (%s)", prev.distro.Name, entry.Name, entry.Image)

	if prev.containerID != "" {
		m.teardownLocked(ctx, prev.containerID, prev.containerName)
		m.emitLocked(ctx, types.SandboxEventRemoved, prev.containerID, "", nil)
	}

	m.state = newState(m.prefix, entry, prev.hardening)
	m.publishLocked()

	r, err := m.ensureLocked(ctx)
	if err != nil {
		m.state = newState(m.prefix, prev.distro, prev.hardening)
		m.publishLocked()
		metrics.DistroSwitchesTotal.WithLabelValues(entry.Name, "error").Inc()
		log.Printf("sandbox: switch to %s failed, staying on %s: %v", entry.Name, prev.distro.Name, err)
		m.emitLocked(ctx, types.SandboxEventSwitchFailed, "", entry.Name, err)
		return SwitchResult{Previous: prev.distro, Current: prev.distro}, fmt.Errorf("switch to %s: %w", entry.Name, err)
	}

	if err := m.registry.SetActive(entry.Name); err != nil {
		return SwitchResult{}, err
	}
	metrics.DistroSwitchesTotal.WithLabelValues(entry.Name, "ok").Inc()
	log.Printf("sandbox: switched to %s (container %s)", entry.Name, shortID(r.ContainerID))
	m.emitLocked(ctx, types.SandboxEventSwitched, r.ContainerID, prev.distro.Name, nil)

	return SwitchResult{Previous: prev.distro, Current: entry, Changed: true, Readiness: r}, nil
}

func (m *Manager) ensureLocked(ctx context.Context) (Readiness, error) {
	st := &m.state
	if st.containerID == "" {
		return m.adoptOrCreateLocked(ctx)
	}

	healthy, err := m.rt.Healthy(ctx, st.containerID)
	if err != nil {
		if errors.Is(err, container.ErrRuntimeUnavailable) || ctx.Err() != nil {
			return Readiness{}, err
		}
		log.Printf("sandbox: health check of %s failed: %v", st.containerName, err)
	}
	if healthy && err == nil {
		if st.phase != types.SandboxPhaseRunning {
			st.phase = types.SandboxPhaseRunning
			m.publishLocked()
		}
		return m.readinessLocked(), nil
	}

	stale := st.containerID
	st.phase = types.SandboxPhaseUnhealthy
	m.publishLocked()
	metrics.SandboxUp.WithLabelValues(st.distro.Name).Set(0)
	log.Printf("sandbox: container %s (%s) is unhealthy, rebuilding", st.containerName, shortID(stale))

	m.teardownLocked(ctx, stale, st.containerName)

	r, err := m.createLocked(ctx)
	if err != nil {
		return Readiness{}, err
	}
	r.Repaired = true
	metrics.SandboxRepairsTotal.WithLabelValues(st.distro.Name).Inc()
	m.emitLocked(ctx, types.SandboxEventRepaired, r.ContainerID, "", nil)
	return r, nil
}

// adoptOrCreateLocked runs when no container is recorded, e.g. after a
// restart. A running container with the deterministic name and the active
// image is adopted; anything else under that name is replaced.
func (m *Manager) adoptOrCreateLocked(ctx context.Context) (Readiness, error) {
	st := &m.state

	info, err := m.rt.Inspect(ctx, st.containerName)
	switch {
	case err == nil:
		if info.State.Running && imageMatches(info.Config.Image, st.distro.Image) {
			st.containerID = info.ID
			st.phase = types.SandboxPhaseRunning
			m.publishLocked()
			metrics.SandboxUp.WithLabelValues(st.distro.Name).Set(1)
			log.Printf("sandbox: adopted existing container %s (%s)", st.containerName, shortID(info.ID))
			m.emitLocked(ctx, types.SandboxEventAdopted, info.ID, "", nil)

			r := m.readinessLocked()
			r.Adopted = true
			return r, nil
		}
		log.Printf("sandbox: replacing stale container %s (status=%s image=%s)",
			st.containerName, info.State.Status, info.Config.Image)
		m.teardownLocked(ctx, info.ID, st.containerName)
	case errors.Is(err, container.ErrRuntimeUnavailable):
		return Readiness{}, err
	case !errors.Is(err, container.ErrContainerMissing):
		log.Printf("sandbox: inspect %s: %v", st.containerName, err)
	}

	return m.createLocked(ctx)
}

func (m *Manager) createLocked(ctx context.Context) (Readiness, error) {
	st := &m.state
	start := time.Now()

	id, err := m.rt.Create(ctx, st.containerName, st.distro.Image, st.hardening)
	if err != nil {
		metrics.ContainerCreatesTotal.WithLabelValues(st.distro.Name, "error").Inc()
		return Readiness{}, fmt.Errorf("create sandbox %s: %w", st.containerName, err)
	}

	if err := m.rt.Start(ctx, id); err != nil {
		if rmErr := m.rt.Remove(ctx, id); rmErr != nil {
			log.Printf("sandbox: cleanup of unstarted container %s failed: %v", shortID(id), rmErr)
		}
		metrics.ContainerCreatesTotal.WithLabelValues(st.distro.Name, "error").Inc()
		return Readiness{}, fmt.Errorf("start sandbox %s: %w", st.containerName, err)
	}

	st.containerID = id
	st.phase = types.SandboxPhaseRunning
	m.publishLocked()

	metrics.ContainerCreatesTotal.WithLabelValues(st.distro.Name, "ok").Inc()
	metrics.ContainerCreateDuration.WithLabelValues(st.distro.Name).Observe(time.Since(start).Seconds())
	metrics.SandboxUp.WithLabelValues(st.distro.Name).Set(1)
	log.Printf("sandbox: created container %s (%s) from %s", st.containerName, shortID(id), st.distro.Image)
	m.emitLocked(ctx, types.SandboxEventCreated, id, "", nil)

	r := m.readinessLocked()
	r.Created = true
	return r, nil
}

// teardownLocked stops and removes a container, logging failures instead of
// returning them. The recorded container, if it is id, is forgotten.
func (m *Manager) teardownLocked(ctx context.Context, id, name string) {
	if err := m.rt.Stop(ctx, id, m.stopTimeout); err != nil {
		log.Printf("sandbox: stop %s (%s): %v", name, shortID(id), err)
	}
	if err := m.rt.Remove(ctx, id); err != nil {
		log.Printf("sandbox: remove %s (%s): %v, retrying by name", name, shortID(id), err)
		if err := m.rt.Remove(ctx, name); err != nil {
			log.Printf("sandbox: remove %s: %v", name, err)
		}
	}

	if m.state.containerID == id {
		metrics.SandboxUp.WithLabelValues(m.state.distro.Name).Set(0)
		m.state.containerID = ""
		m.state.phase = types.SandboxPhaseAbsent
		m.publishLocked()
	}
}

func (m *Manager) readinessLocked() Readiness {
	return Readiness{
		Distro:        m.state.distro,
		ContainerID:   m.state.containerID,
		ContainerName: m.state.containerName,
	}
}

// publishLocked refreshes the snapshot served by Status.
func (m *Manager) publishLocked() {
	m.statusMu.Lock()
	m.status = m.state.status()
	m.statusMu.Unlock()
}

func (m *Manager) emitLocked(ctx context.Context, typ types.SandboxEventType, containerID, previous string, cause error) {
	if len(m.observers) == 0 {
		return
	}
	ev := types.SandboxEvent{
		ID:            uuid.New().String(),
		Type:          typ,
		Distro:        m.state.distro.Name,
		ContainerID:   containerID,
		ContainerName: m.state.containerName,
		Previous:      previous,
		Timestamp:     time.Now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	m.observers.SandboxEvent(ctx, ev)
}

// imageMatches compares an inspected image reference with the configured
// one, tolerating the registry prefix podman adds ("docker.io/library/").
func imageMatches(inspected, want string) bool {
	if inspected == want {
		return true
	}
	return strings.HasSuffix(inspected, "/"+want)
}
