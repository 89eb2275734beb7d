package sensors

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/robosim/internal/device"
)

// button reports a pressed state. In simulation it is pressed only while a
// command says so, which lets tests and operators inject presses.
type button struct {
	base
	press distuv.Bernoulli

	mu      sync.Mutex
	pressed bool
}

func newButton(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &button{base: b, press: distuv.Bernoulli{P: 0.1, Src: b.src}}, nil
}

func (b *button) Mock() (any, error) {
	return b.press.Rand() == 1, nil
}

func (b *button) Simulate(time.Time) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed, nil
}

// Command takes a bool.
func (b *button) Command(v any) error {
	pressed, ok := v.(bool)
	if !ok {
		return b.invalidCommand(v, "a bool")
	}
	b.mu.Lock()
	b.pressed = pressed
	b.mu.Unlock()
	return nil
}

// Touch screen resolution in pixels.
const (
	ScreenWidth  = 800
	ScreenHeight = 480
)

// Touch is a point on the touch screen.
type Touch struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type touchScreen struct {
	base
	touched distuv.Bernoulli
	x, y    distuv.Uniform

	mu   sync.Mutex
	last *Touch
}

func newTouchScreen(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &touchScreen{
		base:    b,
		touched: distuv.Bernoulli{P: 0.3, Src: b.src},
		x:       distuv.Uniform{Min: 0, Max: ScreenWidth, Src: b.src},
		y:       distuv.Uniform{Min: 0, Max: ScreenHeight, Src: b.src},
	}, nil
}

// Mock returns a *Touch or nil when the screen is untouched.
func (s *touchScreen) Mock() (any, error) {
	if s.touched.Rand() == 0 {
		return (*Touch)(nil), nil
	}
	return &Touch{X: int(s.x.Rand()), Y: int(s.y.Rand())}, nil
}

func (s *touchScreen) Simulate(time.Time) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return (*Touch)(nil), nil
	}
	t := *s.last
	return &t, nil
}

// Command sets the current touch point. nil releases the screen.
func (s *touchScreen) Command(v any) error {
	if v == nil {
		s.mu.Lock()
		s.last = nil
		s.mu.Unlock()
		return nil
	}
	t, err := decodeCommand[Touch](v)
	if err != nil || t.X < 0 || t.X >= ScreenWidth || t.Y < 0 || t.Y >= ScreenHeight {
		return s.invalidCommand(v, "a point on the screen")
	}
	s.mu.Lock()
	s.last = &t
	s.mu.Unlock()
	return nil
}
