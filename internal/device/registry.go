package device

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/banshee-data/robosim/internal/simerr"
)

// Registry maps device types to the factories that build their samplers.
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Type]Factory)}
}

// Register adds a factory for t. Registering the same type twice is an
// error.
func (r *Registry) Register(t Type, f Factory) error {
	if t == "" || f == nil {
		return simerr.Configf("registry", "Register", "type and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[t]; exists {
		return simerr.Configf("registry", "Register", "type %s already registered", t)
	}
	r.factories[t] = f
	return nil
}

// Has reports whether t is registered.
func (r *Registry) Has(t Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[t]
	return ok
}

// Types lists registered types, sorted.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unknownType(desc Descriptor) error {
	return simerr.Wrap(simerr.Fatal,
		fmt.Errorf("%w: %w %q for device %q", simerr.ErrConfiguration, simerr.ErrUnknownDeviceType, desc.Type, desc.ID),
		"registry", "Instantiate")
}

func validate(desc Descriptor) error {
	if desc.ID == "" {
		return simerr.Configf("registry", "Instantiate", "device of type %s has no id", desc.Type)
	}
	if _, err := ParseMode(string(desc.Mode)); err != nil {
		return simerr.Configf("registry", "Instantiate", "device %q: %v", desc.ID, err)
	}
	if desc.Hz < 0 || math.IsNaN(desc.Hz) || math.IsInf(desc.Hz, 0) {
		return simerr.Configf("registry", "Instantiate", "device %q: invalid hz %v", desc.ID, desc.Hz)
	}
	if desc.QueueSize < 0 {
		return simerr.Configf("registry", "Instantiate", "device %q: invalid queue size %d", desc.ID, desc.QueueSize)
	}
	if desc.Enabled && (desc.Hz == 0 || desc.QueueSize == 0) {
		return simerr.Configf("registry", "Instantiate", "device %q is enabled but has hz=%v queue_size=%d", desc.ID, desc.Hz, desc.QueueSize)
	}
	if desc.MaxRange < 0 {
		return simerr.Configf("registry", "Instantiate", "device %q: negative max range", desc.ID)
	}
	return nil
}

// Instantiate builds a disabled Controller for desc. Real-mode devices have
// their driver opened through env.Drivers. The descriptor's Enabled flag is
// left for the caller to act on; see Fleet.EnableConfigured.
func (r *Registry) Instantiate(desc Descriptor, env Env) (*Controller, error) {
	if err := validate(desc); err != nil {
		return nil, err
	}
	desc.Mode, _ = ParseMode(string(desc.Mode))

	r.mu.RLock()
	factory, ok := r.factories[desc.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, unknownType(desc)
	}

	sampler, err := factory(desc, env)
	if err != nil {
		return nil, simerr.Configf("registry", "Instantiate", "device %q: %v", desc.ID, err)
	}

	var driver Driver
	if desc.Mode == Real {
		if env.Drivers == nil {
			return nil, simerr.Configf("registry", "Instantiate", "device %q is in real mode but no driver opener is configured", desc.ID)
		}
		driver, err = env.Drivers.Open(desc)
		if err != nil {
			return nil, simerr.Configf("registry", "Instantiate", "device %q: open driver %q: %v", desc.ID, desc.Driver, err)
		}
	}

	return newController(desc, sampler, driver, env), nil
}

// InstantiateAll builds a controller for every descriptor. It is
// all-or-nothing: on an unknown type, a duplicate id or any other
// configuration error, controllers already built are closed and none are
// returned.
func (r *Registry) InstantiateAll(descs []Descriptor, env Env) ([]*Controller, error) {
	seen := make(map[string]bool, len(descs))
	for _, d := range descs {
		if seen[d.ID] {
			return nil, simerr.Configf("registry", "InstantiateAll", "duplicate device id %q", d.ID)
		}
		seen[d.ID] = true
		if !r.Has(d.Type) {
			return nil, unknownType(d)
		}
	}

	out := make([]*Controller, 0, len(descs))
	for _, d := range descs {
		c, err := r.Instantiate(d, env)
		if err != nil {
			for _, built := range out {
				_ = built.Close()
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
