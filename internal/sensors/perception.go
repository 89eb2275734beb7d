package sensors

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/robosim/internal/actor"
	"github.com/banshee-data/robosim/internal/device"
)

// CameraFOV is the camera's horizontal field of view in radians.
const CameraFOV = 60 * math.Pi / 180

// Detection is one actor recognised by the camera.
type Detection struct {
	ID       string     `json:"id"`
	Kind     actor.Kind `json:"kind"`
	Payload  string     `json:"payload,omitempty"`
	Distance float64    `json:"distance"`
	Bearing  float64    `json:"bearing"`
}

var visualKinds = []actor.Kind{actor.Human, actor.QR, actor.Barcode, actor.Color, actor.Text}

// cameraNearRange is the closest mock detection, capped by max_range.
const cameraNearRange = 0.5

type camera struct {
	base
	seen    distuv.Bernoulli
	bearing distuv.Uniform
	dist    distuv.Uniform
}

func newCamera(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	far := maxRange(desc)
	return &camera{
		base:    b,
		seen:    distuv.Bernoulli{P: 0.5, Src: b.src},
		bearing: distuv.Uniform{Min: -CameraFOV / 2, Max: CameraFOV / 2, Src: b.src},
		dist:    distuv.Uniform{Min: math.Min(cameraNearRange, far), Max: far, Src: b.src},
	}, nil
}

// Mock sees either nothing or a single person somewhere in view.
func (c *camera) Mock() (any, error) {
	out := []Detection{}
	if c.seen.Rand() == 1 {
		out = append(out, Detection{ID: "mock-human", Kind: actor.Human, Distance: c.dist.Rand(), Bearing: c.bearing.Rand()})
	}
	return out, nil
}

func (c *camera) Simulate(time.Time) (any, error) {
	m, err := c.motion()
	if err != nil {
		return nil, err
	}
	sightings := c.env.Actors.InFieldOfView(position(m), c.heading(m), CameraFOV, maxRange(c.desc), visualKinds...)
	out := make([]Detection, 0, len(sightings))
	for _, s := range sightings {
		out = append(out, Detection{ID: s.ID, Kind: s.Kind, Payload: s.Payload, Distance: s.Distance, Bearing: s.Bearing})
	}
	return out, nil
}

// AmbientNoiseDB is the sound level reported when nothing louder is near.
const AmbientNoiseDB = 30.0

// SoundReading is the loudest sound heard and where it came from.
type SoundReading struct {
	LevelDB float64 `json:"level_db"`
	Source  string  `json:"source,omitempty"`
	Payload string  `json:"payload,omitempty"`
}

type microphone struct {
	base
	noise distuv.Uniform
}

func newMicrophone(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &microphone{base: b, noise: distuv.Uniform{Min: AmbientNoiseDB, Max: 50, Src: b.src}}, nil
}

func (mic *microphone) Mock() (any, error) {
	return SoundReading{LevelDB: mic.noise.Rand()}, nil
}

// Simulate applies inverse-square attenuation (6 dB per doubling, clamped
// at one metre) to every sound actor in range and reports the loudest.
func (mic *microphone) Simulate(time.Time) (any, error) {
	m, err := mic.motion()
	if err != nil {
		return nil, err
	}
	best := SoundReading{LevelDB: AmbientNoiseDB}
	for _, s := range mic.env.Actors.Within(position(m), 0, maxRange(mic.desc), actor.Sound) {
		level := s.Intensity - 20*math.Log10(math.Max(s.Distance, 1))
		if level > best.LevelDB {
			best = SoundReading{LevelDB: level, Source: s.ID, Payload: s.Payload}
		}
	}
	return best, nil
}

type rfidReader struct {
	base
}

func newRFIDReader(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	return &rfidReader{base: newBase(desc, env)}, nil
}

// Mock never finds a tag.
func (r *rfidReader) Mock() (any, error) {
	return []string{}, nil
}

// Simulate lists the payloads of RFID actors within range, nearest first.
// A tag without a payload reports its actor id.
func (r *rfidReader) Simulate(time.Time) (any, error) {
	m, err := r.motion()
	if err != nil {
		return nil, err
	}
	tags := []string{}
	for _, s := range r.env.Actors.Within(position(m), 0, maxRange(r.desc), actor.RFID) {
		tag := s.Payload
		if tag == "" {
			tag = s.ID
		}
		tags = append(tags, tag)
	}
	return tags, nil
}
