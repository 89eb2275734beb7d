package serialmux

import "io"

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens the port at path. OpenPort is the real implementation.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)
