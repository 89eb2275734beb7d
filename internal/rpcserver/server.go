// Package rpcserver exposes the simulator's liveness over the standard gRPC
// health protocol. The empty service name reports the process; each device
// is reported as "robosim.device.<id>", SERVING while it is sampling.
package rpcserver

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/monitoring"
)

// DevicePrefix is prepended to a device id to form its health service name.
const DevicePrefix = "robosim.device."

// DefaultRefreshInterval is how often device states are re-read.
const DefaultRefreshInterval = time.Second

// Config holds the server settings.
type Config struct {
	// ListenAddr is the address to listen on (e.g. "localhost:50051").
	ListenAddr string
	// Fleet is polled for device states. Nil reports the process only.
	Fleet *device.Fleet
	// RefreshInterval defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration
}

// Server serves grpc.health.v1.Health and server reflection.
type Server struct {
	cfg      Config
	health   *health.Server
	server   *grpc.Server
	listener net.Listener
	logf     monitoring.LogFunc

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New returns a stopped server.
func New(cfg Config) *Server {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	return &Server{
		cfg:    cfg,
		health: health.NewServer(),
		logf:   monitoring.Prefixed("grpc"),
		stopCh: make(chan struct{}),
	}
}

// Start listens on cfg.ListenAddr and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background. The listener is closed by Stop.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("grpc server already running")
	}
	s.listener = lis
	s.server = grpc.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	s.Refresh()

	s.wg.Add(2)
	go s.refreshLoop()
	go func() {
		defer s.wg.Done()
		s.logf("listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			s.logf("serve error: %v", err)
		}
	}()
	return nil
}

// Refresh republishes the process and device statuses.
func (s *Server) Refresh() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if s.cfg.Fleet == nil {
		return
	}
	for _, c := range s.cfg.Fleet.Controllers() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if c.State() == device.Enabled {
			status = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(DevicePrefix+c.ID(), status)
	}
}

func (s *Server) refreshLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Stop marks every service NOT_SERVING and stops gracefully. Stopping a
// stopped server is a no-op.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.health.Shutdown()
	s.server.GracefulStop()
	s.wg.Wait()
	s.logf("stopped")
}
