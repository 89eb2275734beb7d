package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/robosim/internal/actor"
	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/kinematics"
	"github.com/banshee-data/robosim/internal/serialmux"
	"github.com/banshee-data/robosim/internal/simerr"
	"github.com/banshee-data/robosim/internal/worldmap"
)

// DefaultConfigPath is the path to the example simulation config shipped
// with the repository.
const DefaultConfigPath = "config/robosim.defaults.yaml"

// SimConfig is the root simulation configuration. Every scalar is optional;
// the Get* accessors supply defaults for anything left out, so partial
// configs are safe.
type SimConfig struct {
	// Seed makes mock and noisy simulated readings reproducible.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	Map            MapConfig       `json:"map" yaml:"map"`
	Robot          RobotConfig     `json:"robot" yaml:"robot"`
	DeviceDefaults DeviceDefaults  `json:"device_defaults" yaml:"device_defaults"`
	Telemetry      TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Admin          AdminConfig     `json:"admin" yaml:"admin"`

	// Devices lists device instances keyed by type name (SONAR, IMU, ...).
	Devices map[string][]DeviceConfig `json:"devices,omitempty" yaml:"devices,omitempty"`
	Actors  []ActorConfig             `json:"actors,omitempty" yaml:"actors,omitempty"`
}

// MapConfig describes the occupancy grid.
type MapConfig struct {
	Width      *int     `json:"width,omitempty" yaml:"width,omitempty"`
	Height     *int     `json:"height,omitempty" yaml:"height,omitempty"`
	Resolution *float64 `json:"resolution,omitempty" yaml:"resolution,omitempty"` // metres per cell
	LineWalk   *string  `json:"line_walk,omitempty" yaml:"line_walk,omitempty"`   // "step" or "bresenham"

	// Obstacles are line segments [x0, y0, x1, y1] in metres.
	Obstacles [][4]float64 `json:"obstacles,omitempty" yaml:"obstacles,omitempty"`
}

// PoseConfig is a pose in metres and radians.
type PoseConfig struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Theta float64 `json:"theta" yaml:"theta"`
}

// RobotConfig holds the start pose and motion loop period.
type RobotConfig struct {
	Start        *PoseConfig `json:"start,omitempty" yaml:"start,omitempty"`
	TickInterval *string     `json:"tick_interval,omitempty" yaml:"tick_interval,omitempty"` // duration string like "50ms"
}

// DeviceDefaults apply to every device that does not set its own value.
type DeviceDefaults struct {
	Mode      *string  `json:"mode,omitempty" yaml:"mode,omitempty"`
	Hz        *float64 `json:"hz,omitempty" yaml:"hz,omitempty"`
	QueueSize *int     `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
}

// DeviceConfig is one device instance.
type DeviceConfig struct {
	ID             string   `json:"id" yaml:"id"`
	Place          string   `json:"place,omitempty" yaml:"place,omitempty"`
	OrientationDeg float64  `json:"orientation_deg,omitempty" yaml:"orientation_deg,omitempty"`
	Mode           string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Hz             *float64 `json:"hz,omitempty" yaml:"hz,omitempty"`
	QueueSize      *int     `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	Enabled        *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxRange       float64  `json:"max_range,omitempty" yaml:"max_range,omitempty"`

	// Driver is the serial port read in real mode.
	Driver string                 `json:"driver,omitempty" yaml:"driver,omitempty"`
	Serial *serialmux.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`
}

// ActorConfig places one actor in the world.
type ActorConfig struct {
	ID        string  `json:"id" yaml:"id"`
	Kind      string  `json:"kind" yaml:"kind"`
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	Payload   string  `json:"payload,omitempty" yaml:"payload,omitempty"`
	Intensity float64 `json:"intensity,omitempty" yaml:"intensity,omitempty"`
}

// TelemetryConfig configures the SQLite recorder. An empty DBPath disables
// it.
type TelemetryConfig struct {
	DBPath *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// AdminConfig configures the debug HTTP server and the gRPC health
// endpoint. An empty address disables the corresponding server.
type AdminConfig struct {
	Listen     *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	GRPCListen *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty"`
}

// EmptySimConfig returns a SimConfig with every field unset.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// LoadSimConfig loads a SimConfig from a .json, .yaml or .yml file under
// 1MB and validates it. Errors are fatal configuration errors.
func LoadSimConfig(path string) (*SimConfig, error) {
	cfg, err := loadSimConfig(path)
	if err != nil {
		return nil, simerr.Wrap(simerr.Fatal, fmt.Errorf("%w: %w", simerr.ErrConfiguration, err), "config", "Load")
	}
	return cfg, nil
}

func loadSimConfig(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded, intended for
// test setup.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *SimConfig) Validate() error {
	if c.Map.Width != nil && *c.Map.Width <= 0 {
		return fmt.Errorf("map.width must be positive, got %d", *c.Map.Width)
	}
	if c.Map.Height != nil && *c.Map.Height <= 0 {
		return fmt.Errorf("map.height must be positive, got %d", *c.Map.Height)
	}
	if c.Map.Resolution != nil && !(*c.Map.Resolution > 0) {
		return fmt.Errorf("map.resolution must be positive, got %f", *c.Map.Resolution)
	}
	if c.Map.LineWalk != nil {
		if _, err := worldmap.ParseWalker(*c.Map.LineWalk); err != nil {
			return fmt.Errorf("map.line_walk: %w", err)
		}
	}
	for i, o := range c.Map.Obstacles {
		for _, v := range o {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("map.obstacles[%d] has a non-finite coordinate", i)
			}
		}
	}

	if c.Robot.TickInterval != nil && *c.Robot.TickInterval != "" {
		d, err := time.ParseDuration(*c.Robot.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid robot.tick_interval '%s': %w", *c.Robot.TickInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("robot.tick_interval must be positive, got %s", d)
		}
	}

	if c.DeviceDefaults.Mode != nil {
		if _, err := device.ParseMode(*c.DeviceDefaults.Mode); err != nil {
			return fmt.Errorf("device_defaults.mode: %w", err)
		}
	}
	if c.DeviceDefaults.Hz != nil && !(*c.DeviceDefaults.Hz > 0) {
		return fmt.Errorf("device_defaults.hz must be positive, got %f", *c.DeviceDefaults.Hz)
	}
	if c.DeviceDefaults.QueueSize != nil && *c.DeviceDefaults.QueueSize <= 0 {
		return fmt.Errorf("device_defaults.queue_size must be positive, got %d", *c.DeviceDefaults.QueueSize)
	}

	builtin := device.BuiltinTypes()
	ids := make(map[string]bool)
	for _, name := range c.deviceTypeNames() {
		t := device.NormalizeType(name)
		if !slices.Contains(builtin, t) {
			return fmt.Errorf("devices: %w %q", simerr.ErrUnknownDeviceType, name)
		}
		for i, d := range c.Devices[name] {
			if d.ID == "" {
				return fmt.Errorf("devices.%s[%d] has no id", name, i)
			}
			if ids[d.ID] {
				return fmt.Errorf("duplicate device id %q", d.ID)
			}
			ids[d.ID] = true
			if _, err := device.ParseMode(d.Mode); err != nil {
				return fmt.Errorf("device %q: %w", d.ID, err)
			}
			if d.Hz != nil && !(*d.Hz > 0) {
				return fmt.Errorf("device %q: hz must be positive, got %f", d.ID, *d.Hz)
			}
			if d.QueueSize != nil && *d.QueueSize <= 0 {
				return fmt.Errorf("device %q: queue_size must be positive, got %d", d.ID, *d.QueueSize)
			}
			if d.MaxRange < 0 {
				return fmt.Errorf("device %q: max_range must be non-negative, got %f", d.ID, d.MaxRange)
			}
			if d.Serial != nil {
				if _, err := d.Serial.Normalize(); err != nil {
					return fmt.Errorf("device %q: serial: %w", d.ID, err)
				}
			}
		}
	}

	actorIDs := make(map[string]bool)
	for i, a := range c.Actors {
		if a.ID == "" {
			return fmt.Errorf("actors[%d] has no id", i)
		}
		if actorIDs[a.ID] {
			return fmt.Errorf("duplicate actor id %q", a.ID)
		}
		actorIDs[a.ID] = true
		if _, err := actor.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("actor %q: %w", a.ID, err)
		}
	}

	if c.Robot.Start != nil {
		w, h := float64(c.GetMapWidth())*c.GetMapResolution(), float64(c.GetMapHeight())*c.GetMapResolution()
		s := c.Robot.Start
		if s.X < 0 || s.Y < 0 || s.X >= w || s.Y >= h {
			return fmt.Errorf("robot.start (%g, %g) is outside the %gx%g m map", s.X, s.Y, w, h)
		}
	}

	return nil
}

func (c *SimConfig) deviceTypeNames() []string {
	names := make([]string, 0, len(c.Devices))
	for name := range c.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSeed returns the seed value or the default.
func (c *SimConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1 // default
	}
	return *c.Seed
}

// GetMapWidth returns the map width in cells or the default.
func (c *SimConfig) GetMapWidth() int {
	if c.Map.Width == nil {
		return 100 // default
	}
	return *c.Map.Width
}

// GetMapHeight returns the map height in cells or the default.
func (c *SimConfig) GetMapHeight() int {
	if c.Map.Height == nil {
		return 100 // default
	}
	return *c.Map.Height
}

// GetMapResolution returns the cell size in metres or the default.
func (c *SimConfig) GetMapResolution() float64 {
	if c.Map.Resolution == nil {
		return 0.1 // default
	}
	return *c.Map.Resolution
}

// GetLineWalk returns the line walker or the default.
func (c *SimConfig) GetLineWalk() worldmap.Walker {
	if c.Map.LineWalk == nil {
		return worldmap.StepWalk // default
	}
	w, err := worldmap.ParseWalker(*c.Map.LineWalk)
	if err != nil {
		return worldmap.StepWalk // default on parse error
	}
	return w
}

// GetStartPose returns the robot start pose or the default.
func (c *SimConfig) GetStartPose() kinematics.Pose {
	if c.Robot.Start == nil {
		return kinematics.Pose{X: 1, Y: 1} // default
	}
	return kinematics.Pose{X: c.Robot.Start.X, Y: c.Robot.Start.Y, Theta: c.Robot.Start.Theta}
}

// GetTickInterval parses and returns the robot tick interval.
func (c *SimConfig) GetTickInterval() time.Duration {
	if c.Robot.TickInterval == nil || *c.Robot.TickInterval == "" {
		return 50 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.Robot.TickInterval)
	if err != nil {
		return 50 * time.Millisecond // default on parse error
	}
	return d
}

// GetDefaultMode returns the device mode used when a device sets none.
func (c *SimConfig) GetDefaultMode() device.Mode {
	if c.DeviceDefaults.Mode == nil {
		return device.Simulation // default
	}
	m, err := device.ParseMode(*c.DeviceDefaults.Mode)
	if err != nil {
		return device.Simulation
	}
	return m
}

// GetDefaultHz returns the sampling rate used when a device sets none.
func (c *SimConfig) GetDefaultHz() float64 {
	if c.DeviceDefaults.Hz == nil {
		return 10 // default
	}
	return *c.DeviceDefaults.Hz
}

// GetDefaultQueueSize returns the history capacity used when a device sets
// none.
func (c *SimConfig) GetDefaultQueueSize() int {
	if c.DeviceDefaults.QueueSize == nil {
		return 5 // default
	}
	return *c.DeviceDefaults.QueueSize
}

// GetTelemetryDBPath returns the recorder database path. Empty disables
// telemetry.
func (c *SimConfig) GetTelemetryDBPath() string {
	if c.Telemetry.DBPath == nil {
		return "" // default: no recorder
	}
	return *c.Telemetry.DBPath
}

// GetAdminListen returns the debug server address. Empty disables it.
func (c *SimConfig) GetAdminListen() string {
	if c.Admin.Listen == nil {
		return "localhost:8081"
	}
	return *c.Admin.Listen
}

// GetGRPCListen returns the gRPC health server address. Empty disables it.
func (c *SimConfig) GetGRPCListen() string {
	if c.Admin.GRPCListen == nil {
		return "localhost:50051"
	}
	return *c.Admin.GRPCListen
}

// MapSegments converts the configured obstacles to world map segments.
func (c *SimConfig) MapSegments() []worldmap.Segment {
	segs := make([]worldmap.Segment, 0, len(c.Map.Obstacles))
	for _, o := range c.Map.Obstacles {
		segs = append(segs, worldmap.Segment{X0: o[0], Y0: o[1], X1: o[2], Y1: o[3]})
	}
	return segs
}

// BuildMap bakes the configured obstacles into a world map.
func (c *SimConfig) BuildMap() (*worldmap.Map, error) {
	return worldmap.Build(c.MapSegments(), c.GetMapWidth(), c.GetMapHeight(), c.GetMapResolution(),
		worldmap.WithWalker(c.GetLineWalk()))
}

// DeviceDescriptors converts the configured devices to descriptors with
// defaults applied. Types are visited in sorted order, devices in the order
// listed.
func (c *SimConfig) DeviceDescriptors() []device.Descriptor {
	var out []device.Descriptor
	for _, name := range c.deviceTypeNames() {
		for _, d := range c.Devices[name] {
			desc := device.Descriptor{
				ID:             d.ID,
				Type:           device.NormalizeType(name),
				Place:          d.Place,
				OrientationDeg: d.OrientationDeg,
				Mode:           c.GetDefaultMode(),
				Hz:             c.GetDefaultHz(),
				QueueSize:      c.GetDefaultQueueSize(),
				Enabled:        true,
				MaxRange:       d.MaxRange,
				Driver:         d.Driver,
			}
			if d.Mode != "" {
				if m, err := device.ParseMode(d.Mode); err == nil {
					desc.Mode = m
				}
			}
			if d.Hz != nil {
				desc.Hz = *d.Hz
			}
			if d.QueueSize != nil {
				desc.QueueSize = *d.QueueSize
			}
			if d.Enabled != nil {
				desc.Enabled = *d.Enabled
			}
			out = append(out, desc)
		}
	}
	return out
}

// SerialOptions returns the serial settings of every device that sets them,
// keyed by device id.
func (c *SimConfig) SerialOptions() map[string]serialmux.PortOptions {
	out := make(map[string]serialmux.PortOptions)
	for _, devices := range c.Devices {
		for _, d := range devices {
			if d.Serial != nil {
				out[d.ID] = *d.Serial
			}
		}
	}
	return out
}

// ActorSet converts the configured actors.
func (c *SimConfig) ActorSet() (*actor.Set, error) {
	actors := make([]actor.Actor, 0, len(c.Actors))
	for _, a := range c.Actors {
		kind, err := actor.ParseKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("actor %q: %w", a.ID, err)
		}
		actors = append(actors, actor.Actor{
			ID:        a.ID,
			Kind:      kind,
			Position:  r2.Vec{X: a.X, Y: a.Y},
			Payload:   a.Payload,
			Intensity: a.Intensity,
		})
	}
	return actor.NewSet(actors...)
}
