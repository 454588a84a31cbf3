package tap

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const clonePath = "/dev/net/tun"

// ErrTimeout is returned by ReadTimeout when no frame arrives before the
// deadline. It is not an I/O failure; the caller is expected to retry.
var ErrTimeout = errors.New("tap: read timed out")

type Config struct {
	// Name is the requested interface name. Empty means the kernel picks
	// the next free one (tap0, tap1, ...).
	Name string
	// NonBlocking puts the descriptor into non-blocking mode.
	NonBlocking bool
	// SetUp brings the link up right after allocation, so the device
	// passes traffic without a manual ip-link step.
	SetUp bool
}

// Device is an open TAP interface. It delivers and accepts whole ethernet
// frames without the packet-info header.
type Device struct {
	file *os.File
	name string
}

// Open allocates a TAP device from the host. The returned device carries
// the final interface name, which may differ from Config.Name when the
// kernel assigned one.
func Open(cfg Config) (d *Device, retErr error) {
	file, err := os.OpenFile(clonePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", clonePath, err)
	}

	defer func() {
		if retErr != nil {
			_ = file.Close()
		}
	}()

	ifr, err := unix.NewIfreq(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("creating ifreq for %q: %w", cfg.Name, err)
	}

	ifr.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)

	err = unix.IoctlIfreq(int(file.Fd()), unix.TUNSETIFF, ifr)
	if err != nil {
		return nil, fmt.Errorf("configuring tap on %q: %w", cfg.Name, err)
	}

	name := ifr.Name()

	if cfg.NonBlocking {
		err = unix.SetNonblock(int(file.Fd()), true)
		if err != nil {
			return nil, fmt.Errorf("setting %s non-blocking: %w", name, err)
		}
	}

	if cfg.SetUp {
		link, err := netlink.LinkByName(name)
		if err != nil {
			return nil, fmt.Errorf("looking up link %s: %w", name, err)
		}

		err = netlink.LinkSetUp(link)
		if err != nil {
			return nil, fmt.Errorf("bringing up %s: %w", name, err)
		}
	}

	return &Device{
		file: file,
		name: name,
	}, nil
}

// Write sends one frame to the device. A short write is reported through n,
// not as an error.
func (d *Device) Write(p []byte) (int, error) {
	n, err := d.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("writing to %s: %w", d.name, err)
	}

	return n, nil
}

// ReadTimeout waits up to timeout for the device to become readable, then
// reads a single frame into p. Returns ErrTimeout when nothing arrived in
// time.
func (d *Device) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	fds := []unix.PollFd{{Fd: int32(d.file.Fd()), Events: unix.POLLIN}}
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}

		ready, err := unix.Poll(fds, int(remaining.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("polling %s: %w", d.name, err)
		}
		if ready == 0 {
			return 0, ErrTimeout
		}

		break
	}

	n, err := d.file.Read(p)
	if err != nil {
		return 0, fmt.Errorf("reading from %s: %w", d.name, err)
	}

	return n, nil
}

// Name returns the final interface name assigned by the kernel.
func (d *Device) Name() string {
	return d.name
}

// File exposes the underlying descriptor for fd-passing to another process.
func (d *Device) File() *os.File {
	return d.file
}

func (d *Device) Close() error {
	return d.file.Close()
}
