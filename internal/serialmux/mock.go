package serialmux

import (
	"bytes"
	"errors"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing. Reads block until data is added or the port is closed.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	readErr  error
	writeErr error
	closed   bool

	// CloseError is returned by Close if set
	CloseError error
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && p.readErr == nil && p.readBuf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.closed {
		return 0, errPortClosed
	}
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}
	return p.readBuf.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errPortClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.writeErr = nil
		return 0, err
	}
	return p.writeBuf.Write(b)
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// Closed reports whether Close was called.
func (p *TestableSerialPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// AddReadData queues data for subsequent Read calls.
func (p *TestableSerialPort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.WriteString(data)
	p.readCond.Broadcast()
}

// FailReads makes the next Read return err.
func (p *TestableSerialPort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.readCond.Broadcast()
}

// WrittenData returns everything written to the port.
func (p *TestableSerialPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// FailWrites makes the next Write return err.
func (p *TestableSerialPort) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}
