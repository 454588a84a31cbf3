// Package peervm puts a live guest on the far side of the harness. It
// launches a minimal QEMU and hotplugs a virtio-net NIC backed by its own
// tap device, so frames leaving the driver endpoint have a real peer to
// reach.
package peervm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/gwenya/ethharness/cmdbuilder"
	"github.com/gwenya/ethharness/config"
	"github.com/gwenya/ethharness/qmp"
	"github.com/gwenya/ethharness/tap"
	"github.com/gwenya/ethharness/util"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	qmpSocketFileName    = "qmp.sock"
	configFileName       = "peer.conf"
	cloudInitIsoFileName = "cloud-init.iso"
)

type Options struct {
	Id         uuid.UUID
	QemuPath   string
	RuntimeDir string
	CpuCount   int
	MemoryMB   int
	// TapName is the peer's own tap device. It must not be the device the
	// driver endpoint holds; connect the two on the host (bridge or veth)
	// to form the test network.
	TapName    string
	MacAddress net.HardwareAddr
	CloudInit  CloudInit
	// Logf reports asynchronous events (guest exit, reconnects). Nil
	// discards them.
	Logf func(format string, v ...any)
}

type VM struct {
	opts Options

	mu    sync.Mutex
	pidfd int
	mon   qmp.Monitor
	tap   *tap.Device
}

func New(opts Options) (*VM, error) {
	if opts.QemuPath == "" {
		return nil, fmt.Errorf("peervm: QemuPath is required")
	}
	if opts.RuntimeDir == "" {
		return nil, fmt.Errorf("peervm: RuntimeDir is required")
	}
	if opts.TapName == "" {
		return nil, fmt.Errorf("peervm: TapName is required")
	}
	if opts.CpuCount == 0 {
		opts.CpuCount = 1
	}
	if opts.MemoryMB == 0 {
		opts.MemoryMB = 256
	}
	if opts.Logf == nil {
		opts.Logf = func(format string, v ...any) {}
	}

	return &VM{
		opts:  opts,
		pidfd: -1,
	}, nil
}

// Start launches the guest paused, attaches the NIC over QMP and resumes
// it.
func (v *VM) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pidfd != -1 {
		return fmt.Errorf("peer VM is already running")
	}

	socketPath := v.filePath(qmpSocketFileName)
	err := util.RemoveIfExists(socketPath)
	if err != nil {
		return fmt.Errorf("removing old qmp socket: %w", err)
	}

	configPath := v.filePath(configFileName)

	b := &config.Builder{}
	b.AddSection(config.Smp(v.opts.CpuCount))
	b.AddSection(config.Memory(v.opts.MemoryMB))

	err = os.WriteFile(configPath, []byte(b.String()), 0o644)
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	builder := cmdbuilder.New(v.opts.QemuPath)
	builder.AddArgs(
		"-S",
		"-uuid", v.opts.Id.String(),
		"-nographic",
		"-nodefaults",
		"-no-user-config",
		"-machine", "q35",
		"-readconfig", configPath,
		"-qmp", fmt.Sprintf("unix:%s,server=on,wait=off", socketPath),
	)

	if (v.opts.CloudInit != CloudInit{}) {
		isoPath := v.filePath(cloudInitIsoFileName)
		err := v.opts.CloudInit.WriteIso(isoPath)
		if err != nil {
			return fmt.Errorf("creating cloud init iso: %w", err)
		}

		builder.AddArgs("-drive", fmt.Sprintf("file=%s,format=raw,media=cdrom,if=virtio", isoPath))
	}

	builder.ConnectStdio(nil, io.Discard, io.Discard)
	builder.SetSession(true)

	var pidfd int
	builder.SetPidFdReceiver(&pidfd)

	cmd := builder.Build()
	defer builder.CloseFds()

	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("starting qemu process (%s): %w", cmd, err)
	}

	v.pidfd = pidfd

	err = v.startExitWatcher()
	if err != nil {
		return fmt.Errorf("starting qemu exit watcher: %w", err)
	}

	mon, err := v.connectMonitor(socketPath)
	if err != nil {
		return err
	}

	err = v.attachNic(mon)
	if err != nil {
		return fmt.Errorf("attaching peer nic: %w", err)
	}

	err = mon.Continue()
	if err != nil {
		return fmt.Errorf("resuming peer VM: %w", err)
	}

	return nil
}

func (v *VM) connectMonitor(socketPath string) (qmp.Monitor, error) {
	for attempt := 0; ; attempt++ {
		mon, err := qmp.Connect(socketPath)
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED) {
			if attempt >= 10 {
				return nil, fmt.Errorf("qmp socket never became ready: %w", err)
			}

			v.opts.Logf("qmp socket is not ready yet, retrying in a second")
			time.Sleep(time.Second * 1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("connecting to qmp monitor: %w", err)
		}

		v.mon = mon
		return mon, nil
	}
}

// attachNic opens the peer tap and hands its descriptor to qemu, then adds
// the netdev and the virtio NIC on top of it.
func (v *VM) attachNic(mon qmp.Monitor) (retErr error) {
	dev, err := tap.Open(tap.Config{Name: v.opts.TapName, SetUp: true})
	if err != nil {
		return fmt.Errorf("opening peer tap: %w", err)
	}

	v.tap = dev

	fdName := v.opts.TapName + ".0"

	err = mon.SendFd(fdName, dev.File())
	if err != nil {
		return fmt.Errorf("sending tap fd to qemu: %w", err)
	}

	defer func() {
		if retErr != nil {
			_ = mon.CloseFd(fdName)
		}
	}()

	netdevId := fmt.Sprintf("peer-%s-netdev", v.opts.Id)

	err = mon.AddNetworkDevice(map[string]any{
		"id":   netdevId,
		"type": "tap",
		"fd":   fdName,
	})
	if err != nil {
		return fmt.Errorf("adding netdev to qemu: %w", err)
	}

	err = mon.AddDevice(map[string]any{
		"id":     fmt.Sprintf("peer-%s", v.opts.Id),
		"driver": "virtio-net-pci",
		"netdev": netdevId,
		"mac":    v.opts.MacAddress.String(),
	})
	if err != nil {
		return fmt.Errorf("adding nic to qemu: %w", err)
	}

	return nil
}

func (v *VM) startExitWatcher() error {
	pidfd := v.pidfd

	epfd, err := syscall.EpollCreate(1)
	if err != nil {
		return fmt.Errorf("creating epoll: %w", err)
	}

	err = syscall.EpollCtl(epfd, syscall.EPOLL_CTL_ADD, pidfd, &syscall.EpollEvent{
		Events: syscall.EPOLLIN,
	})
	if err != nil {
		return fmt.Errorf("configuring epoll: %w", err)
	}

	go func() {
		events := make([]syscall.EpollEvent, 1)

		for {
			ready, err := syscall.EpollWait(epfd, events, 1000)
			if err != nil {
				v.opts.Logf("epoll_wait failed: %v", err)
				time.Sleep(time.Second)
				continue
			}

			if ready > 0 {
				break
			}
		}

		_ = syscall.Close(epfd)

		v.mu.Lock()
		defer v.mu.Unlock()

		v.pidfd = -1
		if v.mon != nil {
			err := v.mon.Disconnect()
			if err != nil {
				v.opts.Logf("warning: closing qmp socket failed: %v", err)
			}
			v.mon = nil
		}
		if v.tap != nil {
			_ = v.tap.Close()
			v.tap = nil
		}

		v.opts.Logf("peer VM %s exited", v.opts.Id)
	}()

	return nil
}

// Running reports whether the guest process is still alive.
func (v *VM) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.pidfd != -1
}

// Stop asks the guest to quit over QMP. The exit watcher cleans up once the
// process is gone.
func (v *VM) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.mon == nil {
		return nil
	}

	err := v.mon.Quit()
	if err != nil {
		return fmt.Errorf("stopping peer VM: %w", err)
	}

	err = v.mon.Disconnect()
	if err != nil {
		v.opts.Logf("closing qmp: %v", err)
	}

	v.mon = nil

	return nil
}

func (v *VM) filePath(name string) string {
	return path.Join(v.opts.RuntimeDir, name)
}
