// Package robot runs the fixed-tick motion loop: integrate the commanded
// velocity, validate the step against the world map, commit or reject it,
// and publish the resulting pose.
package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/robosim/internal/collision"
	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/kinematics"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/simerr"
	"github.com/banshee-data/robosim/internal/timeutil"
	"github.com/banshee-data/robosim/internal/worldmap"
)

// DefaultTickInterval is the motion loop period when none is configured.
const DefaultTickInterval = 50 * time.Millisecond

// State is the robot's kinematic state.
type State struct {
	InitialPose     kinematics.Pose `json:"initial_pose"`
	CurrentPose     kinematics.Pose `json:"current_pose"`
	LinearVelocity  float64         `json:"linear_velocity"`
	AngularVelocity float64         `json:"angular_velocity"`
}

// EventKind classifies an Event.
type EventKind int

const (
	// EventPose carries a newly committed pose.
	EventPose EventKind = iota
	// EventCollision reports a rejected step.
	EventCollision
	// EventReset carries the pose restored by Reset.
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventPose:
		return "pose"
	case EventCollision:
		return "collision"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is what the robot reports to its publishers.
type Event struct {
	Kind EventKind
	At   time.Time
	// Pose is the robot's pose after the event.
	Pose kinematics.Pose
	// Resolution is the map's cell size, so consumers can rasterize Pose.
	Resolution float64

	// Set for EventCollision only.
	Status    collision.Status
	Reason    string
	Candidate kinematics.Pose
}

// Publisher receives robot events. Publish is called from the motion loop
// goroutine (and from Reset's caller) and must not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

// Config configures a Robot.
type Config struct {
	Map          *worldmap.Map
	Start        kinematics.Pose
	TickInterval time.Duration
	Clock        timeutil.Clock
	Metrics      *monitoring.Metrics
}

// Robot owns the robot state. The pose is only changed by Tick and Reset;
// a candidate pose is computed, checked and committed under one lock, so a
// rejected pose is never observable.
type Robot struct {
	m        *worldmap.Map
	clock    timeutil.Clock
	interval time.Duration
	metrics  *monitoring.Metrics
	logf     monitoring.LogFunc

	mu          sync.RWMutex
	state       State
	lastTick    time.Time
	published   bool
	publishedAt time.Time
	lastPose    kinematics.Pose

	pubMu sync.RWMutex
	pubs  []Publisher

	fleet *device.Fleet
}

// New validates cfg and returns a robot at rest at cfg.Start.
func New(cfg Config) (*Robot, error) {
	if cfg.Map == nil {
		return nil, simerr.Configf("robot", "New", "a map is required")
	}
	if cfg.TickInterval < 0 {
		return nil, simerr.Configf("robot", "New", "negative tick interval %s", cfg.TickInterval)
	}
	if !cfg.Map.Contains(cfg.Start.X, cfg.Start.Y) {
		return nil, simerr.Configf("robot", "New", "start pose %v is outside the map", cfg.Start)
	}
	if c := cfg.Map.Cell(cfg.Start.X, cfg.Start.Y); cfg.Map.Query(c.X, c.Y) == worldmap.Occupied {
		return nil, simerr.Configf("robot", "New", "start pose %v is inside an obstacle", cfg.Start)
	}

	r := &Robot{
		m:        cfg.Map,
		clock:    cfg.Clock,
		interval: cfg.TickInterval,
		metrics:  cfg.Metrics,
		logf:     monitoring.Prefixed("robot"),
		state:    State{InitialPose: cfg.Start, CurrentPose: cfg.Start},
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	if r.interval == 0 {
		r.interval = DefaultTickInterval
	}
	r.lastTick = r.clock.Now()
	return r, nil
}

// Map returns the world map the robot drives in.
func (r *Robot) Map() *worldmap.Map { return r.m }

// Subscribe adds a publisher.
func (r *Robot) Subscribe(p Publisher) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.pubs = append(r.pubs, p)
}

func (r *Robot) publish(e Event) {
	e.Resolution = r.m.Resolution()
	r.pubMu.RLock()
	pubs := r.pubs
	r.pubMu.RUnlock()
	for _, p := range pubs {
		p.Publish(e)
	}
}

// AttachFleet sets the devices reported by ConnectedDevices.
func (r *Robot) AttachFleet(f *device.Fleet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fleet = f
}

// ConnectedDevices snapshots the descriptor of every attached device.
func (r *Robot) ConnectedDevices() []device.Descriptor {
	r.mu.RLock()
	f := r.fleet
	r.mu.RUnlock()
	if f == nil {
		return nil
	}
	return f.Descriptors()
}

// State returns a snapshot of the robot state.
func (r *Robot) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Pose returns the current pose.
func (r *Robot) Pose() kinematics.Pose {
	return r.State().CurrentPose
}

// Motion implements device.PoseSource. It reports ok=false until the robot
// has published its first pose.
func (r *Robot) Motion() (device.Motion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return device.Motion{
		Pose:            r.state.CurrentPose,
		LinearVelocity:  r.state.LinearVelocity,
		AngularVelocity: r.state.AngularVelocity,
		At:              r.publishedAt,
	}, r.published
}

// SetVelocity implements device.Drive. The new velocity applies from the
// next tick.
func (r *Robot) SetVelocity(linear, angular float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.LinearVelocity = linear
	r.state.AngularVelocity = angular
}

// Tick advances the robot by the time elapsed since the previous tick.
// A step that leaves the map or crosses an obstacle is discarded: the pose
// stays where it was and a collision event is published. The candidate is
// never retried.
func (r *Robot) Tick(now time.Time) collision.Result {
	r.mu.Lock()
	dt := now.Sub(r.lastTick).Seconds()
	if dt < 0 {
		dt = 0
	}
	r.lastTick = now

	prev := r.state.CurrentPose
	candidate := kinematics.Step(prev, r.state.LinearVelocity, r.state.AngularVelocity, dt)
	res := collision.Check(r.m, prev, candidate)
	if res.OK() {
		r.state.CurrentPose = candidate
	}
	pose := r.state.CurrentPose
	changed := res.OK() && (!r.published || pose != r.lastPose)
	if changed {
		r.markPublishedLocked(pose, now)
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RobotTick.Observe(dt)
	}

	if !res.OK() {
		r.logf("step rejected: %v", res.Err())
		if r.metrics != nil {
			r.metrics.RobotCollisions.WithLabelValues(res.Status.String()).Inc()
		}
		r.publish(Event{
			Kind:      EventCollision,
			At:        now,
			Pose:      pose,
			Status:    res.Status,
			Reason:    res.Reason,
			Candidate: candidate,
		})
		return res
	}
	if changed {
		r.publish(Event{Kind: EventPose, At: now, Pose: pose})
	}
	return res
}

func (r *Robot) markPublishedLocked(pose kinematics.Pose, at time.Time) {
	r.published = true
	r.publishedAt = at
	r.lastPose = pose
}

// Reset restores the initial pose, zeroes both velocities and publishes.
// Device history is untouched.
func (r *Robot) Reset() {
	now := r.clock.Now()

	r.mu.Lock()
	r.state.CurrentPose = r.state.InitialPose
	r.state.LinearVelocity = 0
	r.state.AngularVelocity = 0
	r.lastTick = now
	pose := r.state.CurrentPose
	r.markPublishedLocked(pose, now)
	r.mu.Unlock()

	r.logf("reset to %v", pose)
	r.publish(Event{Kind: EventReset, At: now, Pose: pose})
}

// Run publishes the current pose once, then ticks every TickInterval until
// ctx is done.
func (r *Robot) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	now := r.clock.Now()
	r.mu.Lock()
	r.lastTick = now
	pose := r.state.CurrentPose
	r.markPublishedLocked(pose, now)
	r.mu.Unlock()
	r.publish(Event{Kind: EventPose, At: now, Pose: pose})
	r.logf("motion loop started at %v, tick %s", pose, r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logf("motion loop stopped")
			return nil
		case now := <-ticker.C():
			r.Tick(now)
		}
	}
}
