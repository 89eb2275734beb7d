// Package device implements the generic device lifecycle shared by every
// simulated sensor and actuator: descriptors, the type registry, and the
// sampling controller that fills each device's history buffer.
package device

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type names a device family. Values match the upper-case names used in
// configuration files.
type Type string

const (
	Sonar       Type = "SONAR"
	IR          Type = "IR"
	TOF         Type = "TOF"
	Lidar       Type = "LIDAR"
	IMU         Type = "IMU"
	Environment Type = "ENV"
	Gas         Type = "GAS"
	Button      Type = "BUTTON"
	TouchScreen Type = "TOUCH_SCREEN"
	Camera      Type = "CAMERA"
	Microphone  Type = "MICROPHONE"
	RFIDReader  Type = "RFID_READER"
	Encoder     Type = "ENCODER"
	LED         Type = "LED"
	Speaker     Type = "SPEAKER"
	PanTilt     Type = "PAN_TILT"
	SkidSteer   Type = "SKID_STEER"
)

var builtinTypes = []Type{
	Sonar, IR, TOF, Lidar, IMU, Environment, Gas, Button, TouchScreen,
	Camera, Microphone, RFIDReader, Encoder, LED, Speaker, PanTilt, SkidSteer,
}

// BuiltinTypes returns every type the simulator ships a sampler for, sorted.
func BuiltinTypes() []Type {
	out := append([]Type(nil), builtinTypes...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NormalizeType upper-cases a configuration name. It does not check that
// the type is registered.
func NormalizeType(name string) Type {
	return Type(strings.ToUpper(strings.TrimSpace(name)))
}

// Mode selects where a device's values come from.
type Mode string

const (
	// Mock returns values from a random distribution.
	Mock Mode = "mock"
	// Simulation derives values from the robot pose, the map and the actors.
	Simulation Mode = "simulation"
	// Real reads from an injected hardware driver.
	Real Mode = "real"
)

// ParseMode validates a mode name. The empty string selects Simulation.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return Simulation, nil
	case Mock, Simulation, Real:
		return m, nil
	default:
		return "", fmt.Errorf("unknown device mode %q: expected mock, simulation or real", name)
	}
}

// Descriptor is the static identity of a device plus its sampling settings.
// Enabled, Hz and QueueSize describe the desired state at startup; once a
// Controller owns the descriptor they change only through Enable and
// Disable.
type Descriptor struct {
	ID             string  `json:"id"`
	Type           Type    `json:"type"`
	Place          string  `json:"place"`
	OrientationDeg float64 `json:"orientation_deg"`
	Mode           Mode    `json:"mode"`
	Hz             float64 `json:"hz"`
	QueueSize      int     `json:"queue_size"`
	Enabled        bool    `json:"enabled"`

	// MaxRange is the sensing range in metres for ranging and proximity
	// devices. Zero selects the type default.
	MaxRange float64 `json:"max_range,omitempty"`
	// Driver is the serial port path read in Real mode.
	Driver string `json:"driver,omitempty"`
}

// Sample is one timestamped reading.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
}

// State is the sampling state of a Controller.
type State int

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// MarshalText renders the state by name in JSON debug output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
