package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shellbot/shellbot/internal/container"
	"github.com/shellbot/shellbot/internal/distro"
	"github.com/shellbot/shellbot/pkg/types"
)

type fakeContainer struct {
	id      string
	name    string
	image   string
	running bool
}

// fakeRuntime is an in-memory container runtime. Scripts passed to
// /bin/sh -c select canned behaviors.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer // by ID
	nextID     int

	creates int
	removes int
	kills   int
	execIn  []string // container IDs, one per user exec

	createDelay      time.Duration
	failCreateImage  string
	unavailable      bool
	vanishOnNextExec bool

	started chan struct{} // signalled when a "wait" exec begins
	gate    chan struct{} // closing it releases "wait" execs
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]*fakeContainer),
		started:    make(chan struct{}, 16),
		gate:       make(chan struct{}),
	}
}

func (f *fakeRuntime) lookupLocked(nameOrID string) *fakeContainer {
	if c, ok := f.containers[nameOrID]; ok {
		return c
	}
	for _, c := range f.containers {
		if c.name == nameOrID {
			return c
		}
	}
	return nil
}

// add registers a container created outside the manager, e.g. by a
// previous process.
func (f *fakeRuntime) add(name, image string, running bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("ext%04d", f.nextID)
	f.containers[id] = &fakeContainer{id: id, name: name, image: image, running: running}
	return id
}

// destroy removes a container behind the manager's back.
func (f *fakeRuntime) destroy(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
}

func (f *fakeRuntime) exists(nameOrID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupLocked(nameOrID) != nil
}

func (f *fakeRuntime) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}

func (f *fakeRuntime) stats() (creates, removes, kills int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.removes, f.kills
}

func (f *fakeRuntime) setUnavailable(v bool) {
	f.mu.Lock()
	f.unavailable = v
	f.mu.Unlock()
}

func (f *fakeRuntime) Create(ctx context.Context, name, image string, h types.Hardening) (string, error) {
	f.mu.Lock()
	delay := f.createDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return "", container.ErrRuntimeUnavailable
	}
	if image == f.failCreateImage {
		return "", fmt.Errorf("pull %s: manifest unknown", image)
	}
	if f.lookupLocked(name) != nil {
		return "", fmt.Errorf("conflict: name %s already in use", name)
	}
	f.creates++
	f.nextID++
	id := fmt.Sprintf("c%04d", f.nextID)
	f.containers[id] = &fakeContainer{id: id, name: name, image: image}
	return id, nil
}

func (f *fakeRuntime) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return container.ErrRuntimeUnavailable
	}
	c := f.lookupLocked(id)
	if c == nil {
		return container.ErrContainerMissing
	}
	c.running = true
	return nil
}

func (f *fakeRuntime) Stop(ctx context.Context, id string, timeoutSec int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return container.ErrRuntimeUnavailable
	}
	if c := f.lookupLocked(id); c != nil {
		c.running = false
	}
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return container.ErrRuntimeUnavailable
	}
	if c := f.lookupLocked(id); c != nil {
		delete(f.containers, c.id)
		f.removes++
	}
	return nil
}

func (f *fakeRuntime) Exec(ctx context.Context, id string, command []string, env map[string]string) (*container.ExecOutput, error) {
	f.mu.Lock()
	if f.unavailable {
		f.mu.Unlock()
		return nil, container.ErrRuntimeUnavailable
	}
	if f.vanishOnNextExec {
		f.vanishOnNextExec = false
		delete(f.containers, id)
	}
	c := f.lookupLocked(id)
	if c == nil || !c.running {
		f.mu.Unlock()
		return &container.ExecOutput{ExitCode: 1}, fmt.Errorf("%w: %s", container.ErrContainerMissing, id)
	}
	script := command[len(command)-1]
	if strings.HasPrefix(script, "for p in /proc") {
		f.kills++
		f.mu.Unlock()
		return &container.ExecOutput{}, nil
	}
	f.execIn = append(f.execIn, id)
	f.mu.Unlock()

	switch {
	case script == "sleep 100":
		<-ctx.Done()
		return &container.ExecOutput{ExitCode: -1}, ctx.Err()
	case script == "wait":
		f.started <- struct{}{}
		select {
		case <-f.gate:
			return &container.ExecOutput{Output: "done\n"}, nil
		case <-ctx.Done():
			return &container.ExecOutput{ExitCode: -1}, ctx.Err()
		}
	case script == "svc":
		// A runtime-looking diagnostic from a healthy container.
		out := &container.ExecOutput{Output: "Error: service nginx is not running\n", ExitCode: 3}
		return out, fmt.Errorf("%w: exec in %s: Error: service nginx is not running", container.ErrContainerMissing, id)
	case script == "fail":
		return &container.ExecOutput{Output: "boom\n", ExitCode: 3}, nil
	case script == "big":
		return &container.ExecOutput{Output: strings.Repeat("é", 2000)}, nil
	case script == "binary":
		return &container.ExecOutput{Output: "ok\xff\xfe"}, nil
	case strings.HasPrefix(script, "echo "):
		return &container.ExecOutput{Output: strings.TrimPrefix(script, "echo ") + "\n"}, nil
	}
	return &container.ExecOutput{}, nil
}

func (f *fakeRuntime) Healthy(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return false, container.ErrRuntimeUnavailable
	}
	c := f.lookupLocked(id)
	return c != nil && c.running, nil
}

func (f *fakeRuntime) Inspect(ctx context.Context, nameOrID string) (*container.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, container.ErrRuntimeUnavailable
	}
	c := f.lookupLocked(nameOrID)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", container.ErrContainerMissing, nameOrID)
	}
	info := &container.ContainerInfo{ID: c.id, Name: "/" + c.name}
	info.State.Running = c.running
	if c.running {
		info.State.Status = "running"
	} else {
		info.State.Status = "exited"
	}
	info.Config.Image = c.image
	return info, nil
}

func newTestManager(t *testing.T, rt *fakeRuntime, observers ...Observer) *Manager {
	t.Helper()
	reg, err := distro.New(distro.DefaultEntries(), distro.DefaultActive)
	if err != nil {
		t.Fatalf("distro.New: %v", err)
	}
	return NewManager(Config{
		Runtime:   rt,
		Registry:  reg,
		Hardening: types.DefaultHardening(),
		Observers: observers,
	})
}
