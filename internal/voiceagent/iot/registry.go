package iot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/autopeer-io/voicepeer/internal/pkg/metrics"
)

// Registry holds the things the device exposes to the backend.
type Registry struct {
	mu     sync.Mutex
	things []*Thing

	// last reported state per thing, as encoded JSON
	lastStates map[string][]byte
}

func NewRegistry() *Registry {
	return &Registry{lastStates: make(map[string][]byte)}
}

// Register appends t. Names are unique.
func (r *Registry) Register(t *Thing) error {
	if t == nil || t.name == "" {
		return fmt.Errorf("thing must have a name: %w", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lookup(t.name) != nil {
		return fmt.Errorf("%q: %w", t.name, ErrAlreadyRegistered)
	}
	r.things = append(r.things, t)
	return nil
}

// Names returns the registered thing names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.things))
	for _, t := range r.things {
		names = append(names, t.name)
	}
	return names
}

func (r *Registry) Descriptors() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.things))
	for _, t := range r.things {
		out = append(out, t.Descriptor())
	}
	return out
}

// States snapshots every thing. The baseline used for deltas is refreshed on
// every call. With delta set, only things whose state changed since the
// previous call are returned, together with whether anything changed.
func (r *Registry) States(delta bool) ([]ThingState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]ThingState, 0, len(r.things))
	changed := false
	for _, t := range r.things {
		s := t.State()
		encoded, err := json.Marshal(s)
		if err != nil {
			// unencodable values never compare equal
			encoded = nil
		}

		prev, seen := r.lastStates[t.name]
		r.lastStates[t.name] = encoded

		if delta && seen && encoded != nil && bytes.Equal(prev, encoded) {
			continue
		}
		changed = true
		states = append(states, s)
	}

	if !delta {
		return states, true
	}
	return states, changed
}

// Invoke dispatches cmd to the first thing with a matching name.
func (r *Registry) Invoke(cmd Command) error {
	r.mu.Lock()
	t := r.lookup(cmd.Name)
	r.mu.Unlock()

	if t == nil {
		metrics.CapabilityCommands.WithLabelValues("not_found").Inc()
		return fmt.Errorf("thing %q: %w", cmd.Name, ErrNotFound)
	}

	err := t.Invoke(cmd.Method, cmd.Parameters)
	switch {
	case err == nil:
		metrics.CapabilityCommands.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.CapabilityCommands.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrInvalidArgument):
		metrics.CapabilityCommands.WithLabelValues("invalid_argument").Inc()
	default:
		metrics.CapabilityCommands.WithLabelValues("error").Inc()
	}
	return err
}

func (r *Registry) lookup(name string) *Thing {
	for _, t := range r.things {
		if t.name == name {
			return t
		}
	}
	return nil
}
