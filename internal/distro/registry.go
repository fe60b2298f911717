package distro

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shellbot/shellbot/pkg/types"
)

// ErrNotFound is returned when a distro name has no registry entry.
var ErrNotFound = errors.New("distro not found")

// DefaultActive is the distro a fresh process starts with.
const DefaultActive = "arch"

// maxCompletions is the most choices a chat autocomplete response may carry.
const maxCompletions = 25

// DefaultEntries returns the built-in distro table.
func DefaultEntries() []types.DistroEntry {
	return []types.DistroEntry{
		{Name: "alpine", Image: "alpine:latest"},
		{Name: "debian", Image: "debian:bookworm-slim"},
		{Name: "ubuntu", Image: "ubuntu:24.04"},
		{Name: "fedora", Image: "fedora:latest"},
		{Name: "arch", Image: "archlinux:latest"},
	}
}

// Registry is the static, ordered name-to-image mapping. Only the active
// marker changes after construction.
type Registry struct {
	mu      sync.RWMutex
	entries []types.DistroEntry
	index   map[string]int
	active  string
}

// New builds a registry from entries and marks active. Names are normalized
// to lower case and must be unique.
func New(entries []types.DistroEntry, active string) (*Registry, error) {
	if len(entries) == 0 {
		return nil, errors.New("distro registry needs at least one entry")
	}

	r := &Registry{
		entries: make([]types.DistroEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		name := normalize(e.Name)
		image := strings.TrimSpace(e.Image)
		if name == "" {
			return nil, errors.New("distro entry with empty name")
		}
		if image == "" {
			return nil, fmt.Errorf("distro %q has no image", name)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("duplicate distro %q", name)
		}
		r.index[name] = len(r.entries)
		r.entries = append(r.entries, types.DistroEntry{Name: name, Image: image})
	}

	active = normalize(active)
	if _, ok := r.index[active]; !ok {
		return nil, fmt.Errorf("default distro %q: %w", active, ErrNotFound)
	}
	r.active = active
	return r, nil
}

// Resolve returns the entry for name.
func (r *Registry) Resolve(name string) (types.DistroEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[normalize(name)]
	if !ok {
		return types.DistroEntry{}, fmt.Errorf("%q: %w", strings.TrimSpace(name), ErrNotFound)
	}
	return r.entries[i], nil
}

// List returns all entries in registration order.
func (r *Registry) List() []types.DistroEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.DistroEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Listings returns all entries with the active one marked.
func (r *Registry) Listings() []types.DistroListing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.DistroListing, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, types.DistroListing{Name: e.Name, Image: e.Image, Active: e.Name == r.active})
	}
	return out
}

// Names returns the distro names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	return names
}

// Complete returns names containing current (case-insensitive), for autocomplete.
func (r *Registry) Complete(current string) []string {
	current = normalize(current)
	var out []string
	for _, name := range r.Names() {
		if strings.Contains(name, current) {
			out = append(out, name)
		}
		if len(out) == maxCompletions {
			break
		}
	}
	return out
}

// ActiveName returns the name of the active distro.
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Active returns the active entry.
func (r *Registry) Active() types.DistroEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[r.index[r.active]]
}

// SetActive moves the active marker. Only the lifecycle manager calls this,
// after a switch has produced a running container.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = normalize(name)
	if _, ok := r.index[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	r.active = name
	return nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
