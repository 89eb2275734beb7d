// Package admin serves the simulator's debug pages and the outward device
// and robot operations over HTTP, mounted under /debug/ with tsweb.
package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/banshee-data/robosim/internal/actor"
	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/httputil"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/robot"
	"github.com/banshee-data/robosim/internal/simerr"
)

// maxCommandBody caps the JSON body accepted by the command route.
const maxCommandBody = 64 * 1024

// Config wires a Server to the running simulation. Robot is required.
type Config struct {
	Robot   *robot.Robot
	Fleet   *device.Fleet
	Actors  *actor.Set
	Metrics *monitoring.Metrics
}

// Server renders debug views of the robot and its devices.
type Server struct {
	robot   *robot.Robot
	fleet   *device.Fleet
	actors  *actor.Set
	metrics *monitoring.Metrics
	logf    monitoring.LogFunc
}

// NewServer returns a server for cfg.
func NewServer(cfg Config) *Server {
	return &Server{
		robot:   cfg.Robot,
		fleet:   cfg.Fleet,
		actors:  cfg.Actors,
		metrics: cfg.Metrics,
		logf:    monitoring.Prefixed("admin"),
	}
}

// AttachAdminRoutes mounts the debug routes on mux, plus /metrics when the
// server has a metrics registry.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("devices", "connected devices and their sampling state", s.handleDevices)
	debug.HandleFunc("pose", "robot kinematic state", s.handlePose)
	debug.HandleFunc("map.png", "occupancy grid with robot and actors", s.handleMapPNG)
	debug.HandleFunc("history", "device history chart (?device=ID)", s.handleHistory)

	debug.HandleSilentFunc("reset", s.handleReset)
	debug.HandleSilentFunc("enable", s.handleEnable)
	debug.HandleSilentFunc("disable", s.handleDisable)
	debug.HandleSilentFunc("command", s.handleCommand)

	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
}

// DeviceView is one entry of the devices route.
type DeviceView struct {
	device.Descriptor
	State   device.State   `json:"state"`
	Samples int            `json:"samples"`
	Latest  *device.Sample `json:"latest,omitempty"`
}

func (s *Server) controllers() []*device.Controller {
	if s.fleet == nil {
		return nil
	}
	return s.fleet.Controllers()
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	views := []DeviceView{}
	for _, c := range s.controllers() {
		v := DeviceView{Descriptor: c.Descriptor(), State: c.State(), Samples: c.Len()}
		if latest, ok := c.Latest(); ok {
			v.Latest = &latest
		}
		views = append(views, v)
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.robot.State())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.robot.Reset()
	httputil.WriteJSONOK(w, s.robot.State())
}

// lookup resolves a device id, writing the error response itself when it
// fails.
func (s *Server) lookup(w http.ResponseWriter, id string) (*device.Controller, bool) {
	if id == "" {
		httputil.BadRequest(w, "missing device")
		return nil, false
	}
	if s.fleet == nil {
		httputil.NotFound(w, fmt.Sprintf("unknown device %q", id))
		return nil, false
	}
	c, ok := s.fleet.Get(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown device %q", id))
		return nil, false
	}
	return c, true
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	c, ok := s.lookup(w, r.FormValue("device"))
	if !ok {
		return
	}
	desc := c.Descriptor()
	hz, queueSize := desc.Hz, desc.QueueSize
	if v := r.FormValue("hz"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid hz %q", v))
			return
		}
		hz = f
	}
	if v := r.FormValue("queue_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid queue_size %q", v))
			return
		}
		queueSize = n
	}
	if err := c.Enable(hz, queueSize); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, DeviceView{Descriptor: c.Descriptor(), State: c.State()})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	c, ok := s.lookup(w, r.FormValue("device"))
	if !ok {
		return
	}
	c.Disable()
	httputil.WriteJSONOK(w, DeviceView{Descriptor: c.Descriptor(), State: c.State()})
}

// handleCommand forwards the JSON request body to an actuator.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	// the body is the command, so the device comes from the URL only
	c, ok := s.lookup(w, r.URL.Query().Get("device"))
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		httputil.BadRequest(w, "failed to read body")
		return
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		httputil.WriteError(w, simerr.Recoverablef(simerr.ErrInvalidCommand, "admin", "command", "body is not JSON: %v", err))
		return
	}
	if err := c.Command(v); err != nil {
		httputil.WriteError(w, err)
		return
	}
	s.logf("command sent to %s", c.ID())
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}
