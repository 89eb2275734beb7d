package serialmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/simerr"
)

// LineDriver keeps the most recent reading parsed from a SerialMux and
// serves it to a device controller. It implements device.Driver and
// io.Closer.
type LineDriver[T SerialPorter] struct {
	mux    *SerialMux[T]
	logf   monitoring.LogFunc
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	latest  any
	have    bool
	stopped bool
	stopErr error

	closeOnce sync.Once
	closeErr  error
}

// NewLineDriver subscribes to mux and starts monitoring it. Close stops the
// monitor and closes the port.
func NewLineDriver[T SerialPorter](mux *SerialMux[T]) *LineDriver[T] {
	ctx, cancel := context.WithCancel(context.Background())
	d := &LineDriver[T]{
		mux:    mux,
		logf:   monitoring.Prefixed("serial " + mux.Name()),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	_, lines := mux.Subscribe()
	go d.consume(lines)
	go d.monitor(ctx)
	return d
}

func (d *LineDriver[T]) consume(lines <-chan string) {
	for line := range lines {
		v, err := ParseReading(line)
		if err != nil {
			if !errors.Is(err, errEmptyLine) {
				d.logf("dropping line: %v", err)
			}
			continue
		}
		d.mu.Lock()
		d.latest = v
		d.have = true
		d.mu.Unlock()
	}
}

func (d *LineDriver[T]) monitor(ctx context.Context) {
	defer close(d.done)
	err := d.mux.Monitor(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		d.logf("monitor stopped: %v", err)
	}
	d.mu.Lock()
	d.stopped = true
	d.stopErr = err
	d.mu.Unlock()
}

// Read returns the latest reading. It fails with ErrSensorNotReady before the
// first line arrives and after the port stops.
func (d *LineDriver[T]) Read(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		reason := "port closed"
		if d.stopErr != nil {
			reason = fmt.Sprintf("port failed: %v", d.stopErr)
		}
		return nil, simerr.Recoverablef(simerr.ErrSensorNotReady, "serial", "Read", "%s: %s", d.mux.Name(), reason)
	}
	if !d.have {
		return nil, simerr.Recoverablef(simerr.ErrSensorNotReady, "serial", "Read", "%s: no reading yet", d.mux.Name())
	}
	return d.latest, nil
}

// SendCommand writes a command line to the device.
func (d *LineDriver[T]) SendCommand(command string) error {
	return d.mux.SendCommand(command)
}

// Close stops monitoring and closes the port. It is safe to call more than
// once.
func (d *LineDriver[T]) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.closeErr = d.mux.Close()
		<-d.done
	})
	return d.closeErr
}

// Opener opens a LineDriver on each real-mode device's Driver path. It
// implements device.DriverOpener.
type Opener struct {
	// Options holds per-device port settings keyed by device id. Missing
	// entries use the PortOptions defaults.
	Options map[string]PortOptions
	// Port opens the underlying port. Nil selects OpenPort.
	Port PortOpener

	mu    sync.Mutex
	muxes []*SerialMux[SerialPorter]
}

// Open implements device.DriverOpener.
func (o *Opener) Open(desc device.Descriptor) (device.Driver, error) {
	if desc.Driver == "" {
		return nil, fmt.Errorf("device %q has no serial port configured", desc.ID)
	}
	open := o.Port
	if open == nil {
		open = OpenPort
	}
	port, err := open(desc.Driver, o.Options[desc.ID])
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", desc.Driver, err)
	}
	mux := NewSerialMux[SerialPorter](desc.ID, port)

	o.mu.Lock()
	o.muxes = append(o.muxes, mux)
	o.mu.Unlock()

	return NewLineDriver(mux), nil
}

// AttachAdminRoutes mounts the command and tail routes of every port opened
// so far.
func (o *Opener) AttachAdminRoutes(mux *http.ServeMux) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range o.muxes {
		m.AttachAdminRoutes(mux)
	}
}
