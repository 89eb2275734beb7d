package serialmux

import (
	"go.bug.st/serial"
)

// OpenPort opens the serial port at path with opts.
func OpenPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// OpenSerial creates a SerialMux backed by the real serial port at path.
func OpenSerial(name, path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialMux[serial.Port](name, port), nil
}
