package driver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gwenya/ethharness/buffer"
)

// DefaultReceiveTimeout bounds how long Receive waits for an inbound frame
// when Options does not say otherwise.
const DefaultReceiveTimeout = 10 * time.Second

// ErrInvalidLength rejects transfers outside [0, buffer.Capacity] before
// any buffer access happens.
var ErrInvalidLength = errors.New("driver: length outside buffer capacity")

// macAddress identifies the virtual endpoint. Locally administered and
// constant for the life of the process.
var macAddress = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

// Device is the virtual interface surface the endpoint drives. *tap.Device
// satisfies it; tests substitute an in-memory implementation. ReadTimeout
// must return tap.ErrTimeout when the deadline expires without data.
type Device interface {
	Write(p []byte) (int, error)
	ReadTimeout(p []byte, timeout time.Duration) (int, error)
	Name() string
	Close() error
}

// Notifier receives the data-available signal for a client once a frame has
// been copied into the driver buffer.
type Notifier interface {
	Notify(clientID int)
}

// Endpoint is the surface the protocol logic calls into. Transmit sends
// length bytes out of the driver buffer; Receive fills the driver buffer
// with the next inbound frame and reports its length.
type Endpoint interface {
	Transmit(length int) error
	Receive() (int, error)
	MACAddress() net.HardwareAddr
	GetStatus() Status
	Close() error
}

type Options struct {
	// OpenDevice allocates the virtual interface. It runs at most once,
	// on the first Transmit or Receive. Required.
	OpenDevice func() (Device, error)
	// Buffers holds the driver-side buffer the endpoint drains on
	// Transmit and fills on Receive. Required.
	Buffers *buffer.Registry
	// Notifier, when set, is signaled with ClientID after every
	// successful Receive.
	Notifier Notifier
	ClientID int
	// ReceiveTimeout bounds the wait for an inbound frame. Zero means
	// DefaultReceiveTimeout.
	ReceiveTimeout time.Duration
}

type endpoint struct {
	opts Options

	mu     sync.Mutex
	status Status
	dev    Device
}

func New(opts Options) (Endpoint, error) {
	if opts.OpenDevice == nil {
		return nil, fmt.Errorf("driver: OpenDevice is required")
	}
	if opts.Buffers == nil {
		return nil, fmt.Errorf("driver: Buffers is required")
	}
	if opts.ReceiveTimeout == 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}

	return &endpoint{
		opts:   opts,
		status: Uninitialized,
	}, nil
}

// ensureInitialized performs the one-time device allocation. Concurrent
// first calls serialize on the mutex; exactly one of them allocates, and
// every caller observes the same device. A failed allocation rolls back to
// Uninitialized so a later call may retry.
func (e *endpoint) ensureInitialized() (Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.status {
	case Ready:
		return e.dev, nil
	case Closed:
		return nil, fmt.Errorf("driver: endpoint is closed")
	}

	e.status = Initializing

	dev, err := e.opts.OpenDevice()
	if err != nil {
		e.status = Uninitialized
		return nil, fmt.Errorf("allocating virtual interface: %w", err)
	}

	e.dev = dev
	e.status = Ready

	return dev, nil
}

// Transmit copies length bytes out of the driver buffer and writes them to
// the virtual interface as one frame.
func (e *endpoint) Transmit(length int) error {
	if length < 0 || length > buffer.Capacity {
		return fmt.Errorf("transmit of %d bytes: %w", length, ErrInvalidLength)
	}

	dev, err := e.ensureInitialized()
	if err != nil {
		return err
	}

	if length == 0 {
		return nil
	}

	frame := make([]byte, length)
	err = e.opts.Buffers.Driver().WithLock(func(content []byte) error {
		copy(frame, content[:length])
		return nil
	})
	if err != nil {
		return err
	}

	_, err = dev.Write(frame)
	if err != nil {
		return fmt.Errorf("transmitting %d bytes: %w", length, err)
	}

	return nil
}

// Receive waits for the next inbound frame, copies it into the driver
// buffer and returns its length. On timeout the buffer is left untouched
// and tap.ErrTimeout comes back unwrapped so callers can retry on it.
func (e *endpoint) Receive() (int, error) {
	dev, err := e.ensureInitialized()
	if err != nil {
		return 0, err
	}

	frame := make([]byte, buffer.Capacity)
	n, err := dev.ReadTimeout(frame, e.opts.ReceiveTimeout)
	if err != nil {
		return 0, err
	}

	err = e.opts.Buffers.Driver().WithLock(func(content []byte) error {
		copy(content, frame[:n])
		return nil
	})
	if err != nil {
		return 0, err
	}

	if e.opts.Notifier != nil {
		e.opts.Notifier.Notify(e.opts.ClientID)
	}

	return n, nil
}

// MACAddress reports the fixed address identifying this endpoint. No I/O
// and no failure mode; callers get a private copy.
func (e *endpoint) MACAddress() net.HardwareAddr {
	addr := make(net.HardwareAddr, len(macAddress))
	copy(addr, macAddress)

	return addr
}

func (e *endpoint) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status
}

func (e *endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasReady := e.status == Ready
	e.status = Closed

	if !wasReady {
		return nil
	}

	return e.dev.Close()
}
