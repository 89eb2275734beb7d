package device

import (
	"errors"
	"fmt"
	"sync"
)

// Fleet is the set of controllers attached to one robot, in configuration
// order.
type Fleet struct {
	mu    sync.RWMutex
	order []*Controller
	byID  map[string]*Controller
}

// NewFleet groups controllers. IDs must be unique.
func NewFleet(controllers ...*Controller) (*Fleet, error) {
	f := &Fleet{byID: make(map[string]*Controller, len(controllers))}
	for _, c := range controllers {
		id := c.ID()
		if _, dup := f.byID[id]; dup {
			return nil, fmt.Errorf("duplicate device id %q", id)
		}
		f.byID[id] = c
		f.order = append(f.order, c)
	}
	return f, nil
}

// Get returns the controller with the given id.
func (f *Fleet) Get(id string) (*Controller, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.byID[id]
	return c, ok
}

// Controllers returns the controllers in configuration order.
func (f *Fleet) Controllers() []*Controller {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*Controller(nil), f.order...)
}

// Descriptors snapshots every descriptor in configuration order.
func (f *Fleet) Descriptors() []Descriptor {
	cs := f.Controllers()
	out := make([]Descriptor, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Descriptor())
	}
	return out
}

// EnableConfigured enables every controller whose configured descriptor
// was marked enabled, using its configured rate and queue size.
func (f *Fleet) EnableConfigured(configured []Descriptor) error {
	var errs []error
	for _, d := range configured {
		if !d.Enabled {
			continue
		}
		c, ok := f.Get(d.ID)
		if !ok {
			errs = append(errs, fmt.Errorf("device %q not in fleet", d.ID))
			continue
		}
		if err := c.Enable(d.Hz, d.QueueSize); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnSample registers fn on every controller.
func (f *Fleet) OnSample(fn func(Descriptor, Sample)) {
	for _, c := range f.Controllers() {
		c.OnSample(fn)
	}
}

// Close disables every device and closes their drivers.
func (f *Fleet) Close() error {
	var errs []error
	for _, c := range f.Controllers() {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.ID(), err))
		}
	}
	return errors.Join(errs...)
}
