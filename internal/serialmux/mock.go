package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// TestableSerialPort implements SerialPorter with configurable behaviour for
// tests. Reads block until data is added or the port is closed; once
// EOFWhenEmpty is set an empty buffer reads as io.EOF instead.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	readBuffer  bytes.Buffer
	writeBuffer bytes.Buffer

	closed bool

	// EOFWhenEmpty makes Read return io.EOF once the buffer is drained.
	EOFWhenEmpty bool

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes Write report one byte fewer than it was given.
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error
}

// NewTestableSerialPort creates a new TestableSerialPort.
func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read reads from the read buffer.
func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && p.readBuffer.Len() == 0 && !p.EOFWhenEmpty {
		p.readCond.Wait()
	}
	if p.closed {
		return 0, errors.New("serial port closed")
	}
	if p.readBuffer.Len() == 0 {
		return 0, io.EOF
	}
	return p.readBuffer.Read(b)
}

// Write records b in the write buffer.
func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errors.New("serial port closed")
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	n, err := p.writeBuffer.Write(b)
	if p.ShortWrite && n > 0 {
		n--
	}
	return n, err
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// AddReadData queues data for subsequent Read calls.
func (p *TestableSerialPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readBuffer.Write(data)
	p.readCond.Broadcast()
}

// FinishReads makes Read return io.EOF once the queued data is consumed.
func (p *TestableSerialPort) FinishReads() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EOFWhenEmpty = true
	p.readCond.Broadcast()
}

// WrittenData returns everything written to the port.
func (p *TestableSerialPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.writeBuffer.String()
}
