package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/simerr"
)

func TestLineDriver_LatestReading(t *testing.T) {
	port := NewTestableSerialPort()
	d := NewLineDriver(NewSerialMux("tof", port))
	t.Cleanup(func() { _ = d.Close() })

	_, err := d.Read(context.Background())
	assert.ErrorIs(t, err, simerr.ErrSensorNotReady)

	port.AddReadData("0.5\nnot a number\n1.75\n")
	require.Eventually(t, func() bool {
		v, err := d.Read(context.Background())
		return err == nil && v == 1.75
	}, 2*time.Second, 5*time.Millisecond)

	port.AddReadData(`{"co2": 612}` + "\n")
	require.Eventually(t, func() bool {
		v, err := d.Read(context.Background())
		m, ok := v.(map[string]any)
		return err == nil && ok && m["co2"] == 612.0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLineDriver_CanceledContext(t *testing.T) {
	d := NewLineDriver(NewSerialMux("tof", NewTestableSerialPort()))
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLineDriver_PortFailure(t *testing.T) {
	port := NewTestableSerialPort()
	d := NewLineDriver(NewSerialMux("imu", port))
	t.Cleanup(func() { _ = d.Close() })

	port.FailReads(errors.New("device unplugged"))
	require.Eventually(t, func() bool {
		_, err := d.Read(context.Background())
		return errors.Is(err, simerr.ErrSensorNotReady) && strings.Contains(err.Error(), "unplugged")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLineDriver_CloseIsIdempotent(t *testing.T) {
	port := NewTestableSerialPort()
	d := NewLineDriver(NewSerialMux("imu", port))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.True(t, port.Closed())

	_, err := d.Read(context.Background())
	assert.ErrorIs(t, err, simerr.ErrSensorNotReady)
}

func TestLineDriver_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	d := NewLineDriver(NewSerialMux("led", port))
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.SendCommand("RED"))
	assert.Equal(t, "RED\n", port.WrittenData())
}

func TestOpener(t *testing.T) {
	port := NewTestableSerialPort()
	var gotPath string
	var gotOpts PortOptions
	o := &Opener{
		Options: map[string]PortOptions{"sonar_front": {BaudRate: 9600}},
		Port: func(path string, opts PortOptions) (SerialPorter, error) {
			gotPath, gotOpts = path, opts
			return port, nil
		},
	}

	drv, err := o.Open(device.Descriptor{ID: "sonar_front", Type: device.Sonar, Mode: device.Real, Driver: "/dev/ttyUSB0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.(*LineDriver[SerialPorter]).Close() })
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 9600, gotOpts.BaudRate)

	port.AddReadData("2.5\n")
	require.Eventually(t, func() bool {
		v, err := drv.Read(context.Background())
		return err == nil && v == 2.5
	}, 2*time.Second, 5*time.Millisecond)

	httpMux := http.NewServeMux()
	o.AttachAdminRoutes(httpMux)
	req := localHostRequest(http.MethodGet, "/debug/serial/sonar_front/send-command", nil)
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOpener_Errors(t *testing.T) {
	o := &Opener{Port: func(string, PortOptions) (SerialPorter, error) {
		return nil, errors.New("no such port")
	}}

	_, err := o.Open(device.Descriptor{ID: "x", Mode: device.Real})
	assert.ErrorContains(t, err, "no serial port")

	_, err = o.Open(device.Descriptor{ID: "x", Mode: device.Real, Driver: "/dev/null0"})
	assert.ErrorContains(t, err, "no such port")
}
