// Package devices holds the capability adapters for non-TV devices on the
// network. Each adapter speaks its device's native protocol behind a small
// shared interface so the HTTP layer never sees protocol details.
package devices

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("device not found")

// State is the readable state common to all light-type devices.
type State struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	On         bool   `json:"on"`
	Brightness int    `json:"brightness"` // 0-100, -1 when the device does not report it
	Reachable  bool   `json:"reachable"`
}

// Capability is the operation set every adapter implements.
type Capability interface {
	State(ctx context.Context) (State, error)
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	SetBrightness(ctx context.Context, percent int) error
}

// Registry maps device ids to their adapters.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Capability)}
}

func (r *Registry) Add(id string, c Capability) {
	r.mu.Lock()
	r.entries[id] = c
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// IDs returns the registered device ids in stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
