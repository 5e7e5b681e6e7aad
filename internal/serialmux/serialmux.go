// Package serialmux provides an abstraction over a serial port with the
// ability for multiple clients to subscribe to the lines it produces and send
// commands to the single device behind it.
//
// The typical device is a UART bridge that relays BLE notifications from a
// peripheral as one text line per notification.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/fieldscan/internal/monitoring"
)

var (
	ErrWriteFailed = errors.New("serialmux: short write to serial port")
	ErrClosed      = errors.New("serialmux: closed")
)

// DefaultSubscriberBuffer is the number of lines a subscriber may fall behind
// before Monitor starts dropping lines for it.
const DefaultSubscriberBuffer = 256

// SerialMux fans the lines read from one serial port out to any number of
// subscribers.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool
	dropped      atomic.Uint64

	// Buffer is the channel capacity handed to new subscribers.
	Buffer int
}

// SerialMuxInterface is the behaviour shared by real and test multiplexers.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving lines from the serial
	// port. The returned ID identifies the channel when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe closes and removes a subscriber channel.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Initialize sends a sequence of setup commands.
	Initialize(commands ...string) error
	// Monitor reads lines from the serial port and sends them to subscribers.
	Monitor(context.Context) error
	// Close closes all subscribed channels and the serial port.
	Close() error
}

// NewSerialMux creates a SerialMux around port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
		Buffer:      DefaultSubscriberBuffer,
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, max(s.Buffer, 0))
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize sends each command in order, stopping at the first failure.
func (s *SerialMux[T]) Initialize(commands ...string) error {
	for _, command := range commands {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send init command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand writes command to the serial port, appending a newline if it
// has none.
func (s *SerialMux[T]) SendCommand(command string) error {
	if s.closing.Load() {
		return ErrClosed
	}
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Dropped returns the number of lines discarded because a subscriber's
// buffer was full.
func (s *SerialMux[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Monitor reads the serial port line by line until ctx is done, the port
// reaches EOF or Close is called. Lines are delivered to every subscriber
// without blocking; a subscriber whose buffer is full misses the line.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs on its own goroutine so the loop below can
	// still observe ctx cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if s.closing.Load() {
				return nil
			}
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !s.closing.Load() {
						return err
					}
				default:
				}
				return nil
			}
			if s.closing.Load() {
				return nil
			}
			s.broadcast(line)
		}
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
				monitoring.Logf("serialmux: subscriber %s is behind, %d lines dropped so far", id, n)
			}
		}
	}
}

// Close closes every subscriber channel and then the port.
func (s *SerialMux[T]) Close() error {
	s.closing.Store(true)

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	return s.port.Close()
}
