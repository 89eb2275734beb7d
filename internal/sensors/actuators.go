package sensors

import (
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/robosim/internal/device"
)

// Actuators report their commanded state as their sample in every mode.

// LEDState is the state of an indicator light.
type LEDState struct {
	On    bool   `json:"on"`
	Color string `json:"color,omitempty"`
}

type led struct {
	base
	mu    sync.Mutex
	state LEDState
}

func newLED(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	return &led{base: newBase(desc, env)}, nil
}

func (l *led) current() (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, nil
}

func (l *led) Mock() (any, error) { return l.current() }
func (l *led) Simulate(time.Time) (any, error) { return l.current() }

// Command accepts a LEDState, a bool, or a colour name ("off" turns the
// light off).
func (l *led) Command(v any) error {
	var next LEDState
	switch c := v.(type) {
	case bool:
		l.mu.Lock()
		next = LEDState{On: c, Color: l.state.Color}
		l.mu.Unlock()
	case string:
		color := strings.ToLower(strings.TrimSpace(c))
		if color == "" {
			return l.invalidCommand(v, "a colour")
		}
		next = LEDState{On: color != "off"}
		if next.On {
			next.Color = color
		}
	default:
		s, err := decodeCommand[LEDState](v)
		if err != nil {
			return l.invalidCommand(v, "an LED state")
		}
		next = s
	}
	l.mu.Lock()
	l.state = next
	l.mu.Unlock()
	return nil
}

// Utterance is the last thing the speaker was asked to say.
type Utterance struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type speaker struct {
	base
	mu   sync.Mutex
	last Utterance
}

func newSpeaker(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	return &speaker{base: newBase(desc, env)}, nil
}

func (s *speaker) current() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

func (s *speaker) Mock() (any, error) { return s.current() }
func (s *speaker) Simulate(time.Time) (any, error) { return s.current() }

// Command takes the text to speak.
func (s *speaker) Command(v any) error {
	text, ok := v.(string)
	if !ok {
		return s.invalidCommand(v, "a string")
	}
	now := time.Now()
	if s.env.Clock != nil {
		now = s.env.Clock.Now()
	}
	s.mu.Lock()
	s.last = Utterance{Text: text, At: now}
	s.mu.Unlock()
	return nil
}

// Pan and tilt travel limits in degrees.
const (
	PanLimitDeg = 170.0
	TiltMinDeg  = -30.0
	TiltMaxDeg  = 90.0
)

// PanTiltState is a gimbal orientation in degrees.
type PanTiltState struct {
	PanDeg  float64 `json:"pan_deg"`
	TiltDeg float64 `json:"tilt_deg"`
}

type panTilt struct {
	base
	mu    sync.Mutex
	state PanTiltState
}

func newPanTilt(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	return &panTilt{base: newBase(desc, env)}, nil
}

func (p *panTilt) current() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *panTilt) Mock() (any, error) { return p.current() }
func (p *panTilt) Simulate(time.Time) (any, error) { return p.current() }

// Command moves the gimbal. Targets beyond the travel limits are clamped.
func (p *panTilt) Command(v any) error {
	target, err := decodeCommand[PanTiltState](v)
	if err != nil {
		return p.invalidCommand(v, "pan and tilt angles")
	}
	p.mu.Lock()
	p.state = PanTiltState{
		PanDeg:  clampf(target.PanDeg, -PanLimitDeg, PanLimitDeg),
		TiltDeg: clampf(target.TiltDeg, TiltMinDeg, TiltMaxDeg),
	}
	p.mu.Unlock()
	return nil
}

// Velocity is a drive command: linear in m/s, angular in rad/s.
type Velocity struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

type skidSteer struct {
	base
	mu   sync.Mutex
	last Velocity
}

func newSkidSteer(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	return &skidSteer{base: newBase(desc, env)}, nil
}

func (s *skidSteer) current() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

func (s *skidSteer) Mock() (any, error) { return s.current() }
func (s *skidSteer) Simulate(time.Time) (any, error) { return s.current() }

// Command records the velocity and forwards it to the robot drive.
func (s *skidSteer) Command(v any) error {
	vel, err := decodeCommand[Velocity](v)
	if err != nil {
		return s.invalidCommand(v, "a velocity")
	}
	s.mu.Lock()
	s.last = vel
	s.mu.Unlock()
	if s.env.Drive != nil {
		s.env.Drive.SetVelocity(vel.Linear, vel.Angular)
	}
	return nil
}
