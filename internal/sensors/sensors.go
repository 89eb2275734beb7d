// Package sensors provides the sampler for every built-in device type and
// registers them with a device.Registry.
//
// Mock samplers draw from gonum distributions seeded per device, so a run
// with a fixed seed is reproducible. Simulation samplers read the robot
// pose, the world map and the actor set from the device environment and
// report simerr.ErrSensorNotReady until whatever they depend on exists.
package sensors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/simerr"
)

var builtins = map[device.Type]device.Factory{
	device.Sonar:       newRanger,
	device.IR:          newRanger,
	device.TOF:         newRanger,
	device.Lidar:       newLidar,
	device.IMU:         newIMU,
	device.Environment: newEnv,
	device.Gas:         newGas,
	device.Button:      newButton,
	device.TouchScreen: newTouchScreen,
	device.Camera:      newCamera,
	device.Microphone:  newMicrophone,
	device.RFIDReader:  newRFIDReader,
	device.Encoder:     newEncoder,
	device.LED:         newLED,
	device.Speaker:     newSpeaker,
	device.PanTilt:     newPanTilt,
	device.SkidSteer:   newSkidSteer,
}

// Register adds a factory for every built-in type to reg.
func Register(reg *device.Registry) error {
	for _, t := range device.BuiltinTypes() {
		f, ok := builtins[t]
		if !ok {
			return fmt.Errorf("no sampler for built-in type %s", t)
		}
		if err := reg.Register(t, f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in type.
func NewRegistry() *device.Registry {
	reg := device.NewRegistry()
	if err := Register(reg); err != nil {
		// only reachable if the built-in table is inconsistent
		panic(err)
	}
	return reg
}

// DefaultMaxRange is the sensing range used when a descriptor leaves
// MaxRange at zero.
var DefaultMaxRange = map[device.Type]float64{
	device.Sonar:       4.0,
	device.IR:          1.5,
	device.TOF:         2.0,
	device.Lidar:       8.0,
	device.Camera:      5.0,
	device.RFIDReader:  0.5,
	device.Microphone:  15.0,
	device.Environment: 3.0,
	device.Gas:         3.0,
}

func maxRange(desc device.Descriptor) float64 {
	if desc.MaxRange > 0 {
		return desc.MaxRange
	}
	return DefaultMaxRange[desc.Type]
}

// base carries what every sampler needs: its descriptor, the shared
// environment and a private random source.
type base struct {
	desc device.Descriptor
	env  device.Env
	src  rand.Source
}

func newBase(desc device.Descriptor, env device.Env) base {
	seed := env.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(desc.ID))
	return base{desc: desc, env: env, src: rand.NewPCG(seed, h.Sum64())}
}

// motion returns the robot's latest motion or ErrSensorNotReady.
func (b *base) motion() (device.Motion, error) {
	if b.env.Pose == nil {
		return device.Motion{}, b.notReady("no pose source")
	}
	m, ok := b.env.Pose.Motion()
	if !ok {
		return device.Motion{}, b.notReady("robot pose not published yet")
	}
	return m, nil
}

// heading returns the absolute direction the device faces.
func (b *base) heading(m device.Motion) float64 {
	return m.Pose.Theta + b.desc.OrientationDeg*math.Pi/180
}

func (b *base) notReady(format string, args ...any) error {
	return simerr.Recoverablef(simerr.ErrSensorNotReady, "sensors", string(b.desc.Type), format, args...)
}

func (b *base) invalidCommand(v any, want string) error {
	return simerr.Recoverablef(simerr.ErrInvalidCommand, "sensors", string(b.desc.Type), "%s expects %s, got %T", b.desc.ID, want, v)
}

// decodeCommand accepts either a value of the target type or anything that
// round-trips through JSON into it, such as a map decoded from a request
// body.
func decodeCommand[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	if p, ok := v.(*T); ok && p != nil {
		return *p, nil
	}
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func clampf(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
