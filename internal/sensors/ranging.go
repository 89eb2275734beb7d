package sensors

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/robosim/internal/device"
)

// LidarBeams is the number of evenly spaced beams in one LIDAR sweep.
const LidarBeams = 36

// ranger serves SONAR, IR and TOF: a single beam along the device heading.
type ranger struct {
	base
	noise distuv.Uniform
}

func newRanger(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &ranger{base: b, noise: distuv.Uniform{Min: 10, Max: 30, Src: b.src}}, nil
}

func (r *ranger) Mock() (any, error) {
	return r.noise.Rand(), nil
}

// Simulate returns the distance in metres to the first obstacle along the
// beam, or the maximum range when nothing is hit.
func (r *ranger) Simulate(time.Time) (any, error) {
	if r.env.Map == nil {
		return nil, r.notReady("no map")
	}
	m, err := r.motion()
	if err != nil {
		return nil, err
	}
	dist, _ := r.env.Map.CastRay(m.Pose.X, m.Pose.Y, r.heading(m), maxRange(r.desc))
	return dist, nil
}

// lidar sweeps LidarBeams rays starting at the device heading and turning
// anticlockwise.
type lidar struct {
	base
	noise distuv.Uniform
}

func newLidar(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &lidar{base: b, noise: distuv.Uniform{Min: 10, Max: 30, Src: b.src}}, nil
}

func (l *lidar) Mock() (any, error) {
	out := make([]float64, LidarBeams)
	for i := range out {
		out[i] = l.noise.Rand()
	}
	return out, nil
}

func (l *lidar) Simulate(time.Time) (any, error) {
	if l.env.Map == nil {
		return nil, l.notReady("no map")
	}
	m, err := l.motion()
	if err != nil {
		return nil, err
	}
	start, rng := l.heading(m), maxRange(l.desc)
	out := make([]float64, LidarBeams)
	for i := range out {
		theta := start + float64(i)*2*math.Pi/LidarBeams
		out[i], _ = l.env.Map.CastRay(m.Pose.X, m.Pose.Y, theta, rng)
	}
	return out, nil
}
