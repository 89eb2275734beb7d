package sensors

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/robosim/internal/actor"
	"github.com/banshee-data/robosim/internal/device"
)

// IMUReading holds orientation in radians, yaw rate in rad/s and forward
// acceleration in m/s².
type IMUReading struct {
	Roll   float64 `json:"roll"`
	Pitch  float64 `json:"pitch"`
	Yaw    float64 `json:"yaw"`
	GyroZ  float64 `json:"gyro_z"`
	AccelX float64 `json:"accel_x"`
}

type imu struct {
	base
	noise distuv.Normal

	// only touched by the sampling goroutine
	lastV  float64
	lastAt time.Time
}

func newIMU(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &imu{base: b, noise: distuv.Normal{Mu: 0, Sigma: 0.01, Src: b.src}}, nil
}

func (s *imu) Mock() (any, error) {
	return IMUReading{
		Roll:   s.noise.Rand(),
		Pitch:  s.noise.Rand(),
		Yaw:    s.noise.Rand(),
		GyroZ:  s.noise.Rand(),
		AccelX: s.noise.Rand(),
	}, nil
}

// Simulate reports the robot heading, the commanded yaw rate, and the
// forward acceleration implied by the change in commanded linear velocity
// since the previous sample.
func (s *imu) Simulate(now time.Time) (any, error) {
	m, err := s.motion()
	if err != nil {
		return nil, err
	}
	r := IMUReading{
		Yaw:   actor.NormalizeAngle(s.heading(m)),
		GyroZ: m.AngularVelocity,
	}
	if !s.lastAt.IsZero() {
		if dt := now.Sub(s.lastAt).Seconds(); dt > 0 {
			r.AccelX = (m.LinearVelocity - s.lastV) / dt
		}
	}
	s.lastV, s.lastAt = m.LinearVelocity, now
	return r, nil
}

// Wheel geometry used to convert motion into encoder ticks.
const (
	WheelRadius   = 0.05 // metres
	TrackWidth    = 0.30 // metres between wheel centres
	TicksPerRev   = 360
	metresPerTick = 2 * math.Pi * WheelRadius / TicksPerRev
)

// EncoderReading holds cumulative wheel ticks since the device was created.
// Reverse motion counts down.
type EncoderReading struct {
	Left  int64 `json:"left"`
	Right int64 `json:"right"`
}

type encoder struct {
	base
	step distuv.Uniform

	left, right float64
	lastAt      time.Time
}

func newEncoder(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &encoder{base: b, step: distuv.Uniform{Min: 0, Max: 10, Src: b.src}}, nil
}

func (e *encoder) reading() EncoderReading {
	return EncoderReading{Left: int64(math.Round(e.left)), Right: int64(math.Round(e.right))}
}

func (e *encoder) Mock() (any, error) {
	e.left += math.Floor(e.step.Rand())
	e.right += math.Floor(e.step.Rand())
	return e.reading(), nil
}

// Simulate integrates each wheel's surface speed under the differential
// drive model over the time since the previous sample.
func (e *encoder) Simulate(now time.Time) (any, error) {
	m, err := e.motion()
	if err != nil {
		return nil, err
	}
	if !e.lastAt.IsZero() {
		dt := now.Sub(e.lastAt).Seconds()
		half := m.AngularVelocity * TrackWidth / 2
		e.left += (m.LinearVelocity - half) * dt / metresPerTick
		e.right += (m.LinearVelocity + half) * dt / metresPerTick
	}
	e.lastAt = now
	return e.reading(), nil
}
