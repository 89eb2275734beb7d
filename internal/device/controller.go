package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/robosim/internal/history"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/simerr"
	"github.com/banshee-data/robosim/internal/timeutil"
)

// RangeQuery selects a slice of a device's history by logical index
// (0 = newest). From is the exclusive upper bound and To the inclusive lower
// bound, so {From: 5, To: 0} returns the five newest samples. Both bounds
// are required.
type RangeQuery struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

// Range builds a RangeQuery from concrete bounds.
func Range(from, to int) RangeQuery {
	return RangeQuery{From: &from, To: &to}
}

// Controller owns one device: its sampler, its history buffer and the
// goroutine that fills it. States move Disabled -> Enabled via Enable and
// back via Disable. Methods are safe for concurrent use.
type Controller struct {
	// mu serializes Enable and Disable. It is held while waiting for the
	// sampling goroutine, so nothing reachable from that goroutine may
	// take it.
	mu     sync.Mutex
	cancel context.CancelFunc

	// view guards desc, state and ring. Readers take only view, so a
	// sample observer may call back into the controller.
	view  sync.RWMutex
	desc  Descriptor
	state State
	ring  *history.Ring[Sample]

	id      string
	done    chan struct{}
	sampler Sampler
	driver  Driver
	env     Env
	logf    monitoring.LogFunc

	obsMu     sync.RWMutex
	observers []func(Descriptor, Sample)
}

func newController(desc Descriptor, sampler Sampler, driver Driver, env Env) *Controller {
	d := desc
	d.Enabled = false
	return &Controller{
		id:      desc.ID,
		desc:    d,
		sampler: sampler,
		driver:  driver,
		env:     env,
		logf:    monitoring.Prefixed("device " + desc.ID),
	}
}

// ID returns the device id.
func (c *Controller) ID() string {
	return c.id
}

// Descriptor returns a snapshot of the device descriptor.
func (c *Controller) Descriptor() Descriptor {
	c.view.RLock()
	defer c.view.RUnlock()
	return c.desc
}

// State reports whether the device is sampling.
func (c *Controller) State() State {
	c.view.RLock()
	defer c.view.RUnlock()
	return c.state
}

// OnSample registers fn to be called from the sampling goroutine after each
// successful write. fn must not block. It may call the controller's read
// methods (Descriptor, State, Query, Latest, Len) but not Enable, Disable or
// Close.
func (c *Controller) OnSample(fn func(Descriptor, Sample)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Enable starts sampling at hz with a history capacity of queueSize. If the
// device is already running, the running sampler is stopped and awaited
// first; the history is always reallocated empty.
func (c *Controller) Enable(hz float64, queueSize int) error {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return simerr.Recoverablef(simerr.ErrInvalidArgument, "device", "Enable", "hz must be a positive number, got %v", hz)
	}
	period := time.Duration(float64(time.Second) / hz)
	if period <= 0 {
		return simerr.Recoverablef(simerr.ErrInvalidArgument, "device", "Enable", "hz %v is above the clock resolution", hz)
	}
	if queueSize <= 0 {
		return simerr.Recoverablef(simerr.ErrInvalidArgument, "device", "Enable", "queue size must be positive, got %d", queueSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wasEnabled := c.state == Enabled
	c.stopLocked()

	ring := history.NewRing[Sample](queueSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.view.Lock()
	c.ring = ring
	c.state = Enabled
	c.desc.Enabled = true
	c.desc.Hz = hz
	c.desc.QueueSize = queueSize
	desc := c.desc
	c.view.Unlock()
	c.cancel = cancel
	c.done = done

	// the ticker is created here so a mock clock advanced right after
	// Enable returns is never missed
	ticker := c.env.clock().NewTicker(period)
	go c.run(ctx, desc, ring, ticker, done)

	if !wasEnabled && c.env.Metrics != nil {
		c.env.Metrics.DevicesEnabled.Inc()
	}
	c.logf("enabled at %.2f Hz, queue size %d", hz, queueSize)
	return nil
}

// Disable stops sampling and waits for the sampling goroutine to exit. No
// write to the history happens after Disable returns. Disabling a disabled
// device is a no-op.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Enabled {
		return
	}
	c.stopLocked()
	c.view.Lock()
	c.ring = nil
	c.state = Disabled
	c.desc.Enabled = false
	c.view.Unlock()
	if c.env.Metrics != nil {
		c.env.Metrics.DevicesEnabled.Dec()
	}
	c.logf("disabled")
}

// stopLocked cancels the running goroutine, if any, and waits for it.
// The goroutine must never take c.mu; c.view is not held here.
func (c *Controller) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

// Close disables the device and closes its driver if it has one.
func (c *Controller) Close() error {
	c.Disable()
	if closer, ok := c.driver.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Query returns history entries with logical indices in [To, From),
// newest first. From is clamped to the current length. A missing or
// negative bound, or From < To, yields an empty result and a logged
// malformed-query error. A disabled device returns nothing.
func (c *Controller) Query(q RangeQuery) []Sample {
	samples, err := c.QueryErr(q)
	if err != nil {
		c.logf("%v", err)
	}
	return samples
}

// QueryErr is Query with the malformed-query error returned rather than
// logged.
func (c *Controller) QueryErr(q RangeQuery) ([]Sample, error) {
	if q.From == nil || q.To == nil {
		return nil, simerr.Recoverablef(simerr.ErrMalformedQuery, "device", "Query", "both from and to are required")
	}
	from, to := *q.From, *q.To
	if from < 0 || to < 0 {
		return nil, simerr.Recoverablef(simerr.ErrMalformedQuery, "device", "Query", "negative bound from=%d to=%d", from, to)
	}
	if from < to {
		return nil, simerr.Recoverablef(simerr.ErrMalformedQuery, "device", "Query", "from=%d is below to=%d", from, to)
	}

	c.view.RLock()
	ring := c.ring
	c.view.RUnlock()
	if ring == nil {
		return nil, nil
	}
	return ring.Slice(to, from), nil
}

// Latest returns the newest sample.
func (c *Controller) Latest() (Sample, bool) {
	c.view.RLock()
	ring := c.ring
	c.view.RUnlock()
	if ring == nil {
		return Sample{}, false
	}
	return ring.At(0)
}

// Len returns the number of samples held.
func (c *Controller) Len() int {
	c.view.RLock()
	ring := c.ring
	c.view.RUnlock()
	if ring == nil {
		return 0
	}
	return ring.Len()
}

// Command forwards v to an actuator. Sensors return simerr.ErrNotActuator.
func (c *Controller) Command(v any) error {
	act, ok := c.sampler.(Actuator)
	if !ok {
		return simerr.Recoverablef(simerr.ErrNotActuator, "device", "Command", "%s is a %s", c.ID(), c.Descriptor().Type)
	}
	return act.Command(v)
}

func (c *Controller) run(ctx context.Context, desc Descriptor, ring *history.Ring[Sample], ticker timeutil.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			c.tick(ctx, desc, ring, now)
		}
	}
}

func (c *Controller) tick(ctx context.Context, desc Descriptor, ring *history.Ring[Sample], now time.Time) {
	id := desc.ID

	value, err := c.read(ctx, desc.Mode, now)
	if err != nil {
		kind := "error"
		if errors.Is(err, simerr.ErrSensorNotReady) {
			kind = "not_ready"
		} else if errors.Is(err, errPanic) {
			kind = "panic"
		}
		if c.env.Metrics != nil {
			c.env.Metrics.DeviceErrors.WithLabelValues(id, kind).Inc()
		}
		c.logf("skipping tick: %v", err)
		return
	}

	s := Sample{Timestamp: now, Value: value}
	ring.Push(s)
	if c.env.Metrics != nil {
		c.env.Metrics.DeviceSamples.WithLabelValues(id).Inc()
	}

	c.obsMu.RLock()
	observers := c.observers
	c.obsMu.RUnlock()
	for _, fn := range observers {
		fn(desc, s)
	}
}

var errPanic = errors.New("sampler panic")

func (c *Controller) read(ctx context.Context, mode Mode, now time.Time) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	switch mode {
	case Mock:
		return c.sampler.Mock()
	case Real:
		if c.driver == nil {
			return nil, simerr.Recoverablef(simerr.ErrSensorNotReady, "device", "read", "no driver attached")
		}
		return c.driver.Read(ctx)
	case Simulation:
		return c.sampler.Simulate(now)
	default:
		return nil, simerr.Configf("device", "read", "unknown mode %q", mode)
	}
}
