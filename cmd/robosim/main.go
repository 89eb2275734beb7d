// Command robosim runs the robot simulation kernel: a differential-drive
// robot moving on an occupancy grid, with every configured device sampling
// in its own goroutine. Debug views are served over HTTP, liveness over the
// gRPC health protocol, and telemetry optionally recorded to SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/robosim/internal/actor"
	"github.com/banshee-data/robosim/internal/admin"
	"github.com/banshee-data/robosim/internal/config"
	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/httputil"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/robot"
	"github.com/banshee-data/robosim/internal/rpcserver"
	"github.com/banshee-data/robosim/internal/sensors"
	"github.com/banshee-data/robosim/internal/serialmux"
	"github.com/banshee-data/robosim/internal/telemetry"
	"github.com/banshee-data/robosim/internal/version"
)

var (
	configFile   = flag.String("config", config.DefaultConfigPath, "Path to the simulation config (JSON or YAML)")
	listen       = flag.String("listen", "", "Debug HTTP listen address (overrides the config; \"off\" disables)")
	grpcListen   = flag.String("grpc-listen", "", "gRPC health listen address (overrides the config; \"off\" disables)")
	telemetryDB  = flag.String("telemetry-db", "", "SQLite telemetry path (overrides the config)")
	duration     = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	printVersion = flag.Bool("version", false, "Print version information and exit")
)

// options are the command line overrides applied on top of the config file.
type options struct {
	Listen      string
	GRPCListen  string
	TelemetryDB string
	Duration    time.Duration
}

// resolve returns the effective address or path: the flag when set, "off"
// meaning disabled, and the config value otherwise.
func resolve(flagValue, configValue string) string {
	switch flagValue {
	case "":
		return configValue
	case "off":
		return ""
	}
	return flagValue
}

func main() {
	flag.Parse()

	if *printVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadSimConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("%s using config %s", version.String(), *configFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		Listen:      resolve(*listen, cfg.GetAdminListen()),
		GRPCListen:  resolve(*grpcListen, cfg.GetGRPCListen()),
		TelemetryDB: resolve(*telemetryDB, cfg.GetTelemetryDBPath()),
		Duration:    *duration,
	}
	if err := run(ctx, cfg, opts); err != nil {
		log.Fatalf("simulation failed: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// simulation is the assembled kernel for one run.
type simulation struct {
	robot    *robot.Robot
	fleet    *device.Fleet
	actors   *actor.Set
	metrics  *monitoring.Metrics
	drivers  *serialmux.Opener
	recorder *telemetry.Recorder
}

// build assembles the robot, its devices and the optional recorder from
// cfg. Devices marked enabled in the config are started.
func build(cfg *config.SimConfig, telemetryDB string) (*simulation, error) {
	m, err := cfg.BuildMap()
	if err != nil {
		return nil, err
	}
	actors, err := cfg.ActorSet()
	if err != nil {
		return nil, err
	}
	metrics := monitoring.NewMetrics()

	r, err := robot.New(robot.Config{
		Map:          m,
		Start:        cfg.GetStartPose(),
		TickInterval: cfg.GetTickInterval(),
		Metrics:      metrics,
	})
	if err != nil {
		return nil, err
	}

	drivers := &serialmux.Opener{Options: cfg.SerialOptions()}
	env := device.Env{
		Pose:    r,
		Map:     m,
		Actors:  actors,
		Drive:   r,
		Drivers: drivers,
		Metrics: metrics,
		Seed:    cfg.GetSeed(),
	}
	descs := cfg.DeviceDescriptors()
	controllers, err := sensors.NewRegistry().InstantiateAll(descs, env)
	if err != nil {
		return nil, err
	}
	fleet, err := device.NewFleet(controllers...)
	if err != nil {
		return nil, err
	}
	r.AttachFleet(fleet)

	s := &simulation{robot: r, fleet: fleet, actors: actors, metrics: metrics, drivers: drivers}

	if telemetryDB != "" {
		rec, err := telemetry.Open(telemetryDB, telemetry.RunInfo{
			StartedAt:  time.Now(),
			Seed:       cfg.GetSeed(),
			MapWidth:   m.Width(),
			MapHeight:  m.Height(),
			Resolution: m.Resolution(),
		})
		if err != nil {
			_ = fleet.Close()
			return nil, err
		}
		r.Subscribe(rec)
		fleet.OnSample(rec.OnSample)
		s.recorder = rec
	}

	if err := fleet.EnableConfigured(descs); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Printf("simulation ready: %d devices, %d actors, map %dx%d at %.2fm",
		len(controllers), actors.Len(), m.Width(), m.Height(), m.Resolution())
	return s, nil
}

// Close stops every device, then flushes and closes the recorder.
func (s *simulation) Close() error {
	err := s.fleet.Close()
	if s.recorder != nil {
		err = errors.Join(err, s.recorder.Close())
	}
	return err
}

// handler builds the debug HTTP handler.
func (s *simulation) handler() (http.Handler, error) {
	mux := http.NewServeMux()
	admin.NewServer(admin.Config{
		Robot:   s.robot,
		Fleet:   s.fleet,
		Actors:  s.actors,
		Metrics: s.metrics,
	}).AttachAdminRoutes(mux)
	s.drivers.AttachAdminRoutes(mux)
	if s.recorder != nil {
		if err := s.recorder.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return httputil.LoggingMiddleware(mux), nil
}

// run drives the simulation until ctx is done or opts.Duration elapses.
func run(ctx context.Context, cfg *config.SimConfig, opts options) error {
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s, err := build(cfg, opts.TelemetryDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	if opts.GRPCListen != "" {
		hs := rpcserver.New(rpcserver.Config{ListenAddr: opts.GRPCListen, Fleet: s.fleet})
		if err := hs.Start(); err != nil {
			return err
		}
		defer hs.Stop()
	}

	var wg sync.WaitGroup
	if opts.Listen != "" {
		h, err := s.handler()
		if err != nil {
			return err
		}
		server := &http.Server{Addr: opts.Listen, Handler: h}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("debug server listening on http://%s/debug/", opts.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("debug server failed: %v", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
				if err := server.Close(); err != nil {
					log.Printf("HTTP server force close error: %v", err)
				}
			}
			log.Printf("HTTP server routine stopped")
		}()
	}

	err = s.robot.Run(ctx)
	wg.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
