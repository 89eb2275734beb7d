package device

import (
	"context"
	"time"

	"github.com/banshee-data/robosim/internal/actor"
	"github.com/banshee-data/robosim/internal/kinematics"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/timeutil"
	"github.com/banshee-data/robosim/internal/worldmap"
)

// Motion is the robot's kinematic state as seen by samplers.
type Motion struct {
	Pose            kinematics.Pose
	LinearVelocity  float64
	AngularVelocity float64
	// At is when the pose was last committed.
	At time.Time
}

// PoseSource provides read-only access to the robot's latest published
// motion. ok is false until the robot has published at least once.
type PoseSource interface {
	Motion() (m Motion, ok bool)
}

// Drive accepts velocity commands from actuators that move the robot.
type Drive interface {
	SetVelocity(linear, angular float64)
}

// Driver produces values for a device in Real mode.
type Driver interface {
	Read(ctx context.Context) (any, error)
}

// DriverOpener opens the Driver named by a descriptor.
type DriverOpener interface {
	Open(desc Descriptor) (Driver, error)
}

// Sampler produces a device's values. Mock and Simulate are only ever
// called from the device's own sampling goroutine.
type Sampler interface {
	Mock() (any, error)
	Simulate(now time.Time) (any, error)
}

// Actuator is implemented by samplers that accept commands. Command may be
// called from any goroutine.
type Actuator interface {
	Command(v any) error
}

// Factory builds the Sampler for one descriptor.
type Factory func(desc Descriptor, env Env) (Sampler, error)

// Env is the shared context handed to every device. Every field is
// optional; samplers that need a missing collaborator report
// simerr.ErrSensorNotReady.
type Env struct {
	Pose    PoseSource
	Map     *worldmap.Map
	Actors  *actor.Set
	Drive   Drive
	Drivers DriverOpener
	Clock   timeutil.Clock
	Metrics *monitoring.Metrics
	// Seed makes mock distributions reproducible. Zero picks a random seed
	// per device.
	Seed uint64
}

func (e Env) clock() timeutil.Clock {
	if e.Clock == nil {
		return timeutil.RealClock{}
	}
	return e.Clock
}
