package sensors

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/robosim/internal/actor"
	"github.com/banshee-data/robosim/internal/device"
)

// Indoor baselines for the environmental sensors.
const (
	BaseTemperatureC = 21.0
	BaseHumidityPct  = 45.0
	BasePressureHPa  = 1013.25
	BaseCO2PPM       = 420.0
	BaseTVOCPPB      = 50.0
)

// EnvReading is a temperature, humidity and pressure reading.
type EnvReading struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	PressureHPa  float64 `json:"pressure_hpa"`
}

// GasReading is an air-quality reading.
type GasReading struct {
	CO2PPM  float64 `json:"co2_ppm"`
	TVOCPPB float64 `json:"tvoc_ppb"`
}

// influence sums each matching actor's intensity scaled linearly from
// full strength at the sensor down to zero at radius.
func influence(set *actor.Set, pos r2.Vec, radius float64, kind actor.Kind) float64 {
	if radius <= 0 {
		return 0
	}
	var total float64
	for _, s := range set.Within(pos, 0, radius, kind) {
		total += s.Intensity * (1 - s.Distance/radius)
	}
	return total
}

func position(m device.Motion) r2.Vec {
	return r2.Vec{X: m.Pose.X, Y: m.Pose.Y}
}

type envSensor struct {
	base
	temp, humidity, pressure distuv.Uniform
}

func newEnv(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &envSensor{
		base:     b,
		temp:     distuv.Uniform{Min: 18, Max: 26, Src: b.src},
		humidity: distuv.Uniform{Min: 30, Max: 60, Src: b.src},
		pressure: distuv.Uniform{Min: 990, Max: 1030, Src: b.src},
	}, nil
}

func (s *envSensor) Mock() (any, error) {
	return EnvReading{
		TemperatureC: s.temp.Rand(),
		HumidityPct:  s.humidity.Rand(),
		PressureHPa:  s.pressure.Rand(),
	}, nil
}

// Simulate adds heat from nearby fire actors and moisture from nearby
// water actors to the baseline.
func (s *envSensor) Simulate(time.Time) (any, error) {
	m, err := s.motion()
	if err != nil {
		return nil, err
	}
	pos, rng := position(m), maxRange(s.desc)
	return EnvReading{
		TemperatureC: BaseTemperatureC + influence(s.env.Actors, pos, rng, actor.Fire),
		HumidityPct:  clampf(BaseHumidityPct+influence(s.env.Actors, pos, rng, actor.Water), 0, 100),
		PressureHPa:  BasePressureHPa,
	}, nil
}

type gasSensor struct {
	base
	co2, tvoc distuv.Uniform
}

func newGas(desc device.Descriptor, env device.Env) (device.Sampler, error) {
	b := newBase(desc, env)
	return &gasSensor{
		base: b,
		co2:  distuv.Uniform{Min: 400, Max: 1000, Src: b.src},
		tvoc: distuv.Uniform{Min: 0, Max: 500, Src: b.src},
	}, nil
}

func (s *gasSensor) Mock() (any, error) {
	return GasReading{CO2PPM: s.co2.Rand(), TVOCPPB: s.tvoc.Rand()}, nil
}

// Fire intensity is interpreted in degrees for ENV; for gas each degree of
// nearby fire adds 20 ppm CO2 and 5 ppb TVOC.
func (s *gasSensor) Simulate(time.Time) (any, error) {
	m, err := s.motion()
	if err != nil {
		return nil, err
	}
	fire := influence(s.env.Actors, position(m), maxRange(s.desc), actor.Fire)
	return GasReading{CO2PPM: BaseCO2PPM + 20*fire, TVOCPPB: BaseTVOCPPB + 5*fire}, nil
}
