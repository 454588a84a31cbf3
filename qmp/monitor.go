package qmp

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/digitalocean/go-qemu/qmp"
)

// Monitor is the slice of the QMP protocol the peer VM needs: hotplugging
// a tap-backed NIC via fd-passing and steering the run state.
type Monitor interface {
	AddNetworkDevice(netDev map[string]any) error
	DeleteNetworkDevice(id string) error
	AddDevice(device map[string]any) error
	DeleteDevice(id string) error
	SendFd(name string, fd *os.File) error
	CloseFd(name string) error
	Status() (RunState, error)
	Continue() error
	Quit() error
	Disconnect() error
}

type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStatePaused    RunState = "paused"
	RunStatePrelaunch RunState = "prelaunch"
	RunStateShutdown  RunState = "shutdown"
)

type monitor struct {
	q *qmp.SocketMonitor
}

func Connect(socketPath string) (Monitor, error) {
	m, err := qmp.NewSocketMonitor("unix", socketPath, time.Second*10)
	if err != nil {
		return nil, fmt.Errorf("creating socket monitor: %w", err)
	}

	err = m.Connect()
	if err != nil {
		return nil, fmt.Errorf("connecting socket monitor: %w", err)
	}

	return &monitor{q: m}, nil
}

func (m *monitor) run(command string, args map[string]any, resp any) error {
	cmd := map[string]any{
		"execute": command,
	}
	if args != nil {
		cmd["arguments"] = args
	}

	raw, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	out, err := m.q.Run(raw)
	if err != nil {
		return err
	}

	if resp == nil {
		return nil
	}

	return json.Unmarshal(out, resp)
}

func (m *monitor) runWithFd(command string, args map[string]any, fd *os.File) error {
	raw, err := json.Marshal(map[string]any{
		"execute":   command,
		"arguments": args,
	})
	if err != nil {
		return err
	}

	_, err = m.q.RunWithFile(raw, fd)
	return err
}

func (m *monitor) AddNetworkDevice(netDev map[string]any) error {
	return m.run("netdev_add", netDev, nil)
}

func (m *monitor) DeleteNetworkDevice(id string) error {
	return m.run("netdev_del", map[string]any{"id": id}, nil)
}

func (m *monitor) AddDevice(device map[string]any) error {
	return m.run("device_add", device, nil)
}

func (m *monitor) DeleteDevice(id string) error {
	return m.run("device_del", map[string]any{"id": id}, nil)
}

// SendFd hands a descriptor to qemu under the given name, for use as a
// netdev fd.
func (m *monitor) SendFd(name string, fd *os.File) error {
	return m.runWithFd("getfd", map[string]any{"fdname": name}, fd)
}

func (m *monitor) CloseFd(name string) error {
	return m.run("closefd", map[string]any{"fdname": name}, nil)
}

func (m *monitor) Status() (RunState, error) {
	var resp struct {
		Return struct {
			Status string `json:"status"`
		} `json:"return"`
	}

	err := m.run("query-status", nil, &resp)
	if err != nil {
		return "", err
	}

	return RunState(resp.Return.Status), nil
}

func (m *monitor) Continue() error {
	return m.run("cont", nil, nil)
}

func (m *monitor) Quit() error {
	return m.run("quit", nil, nil)
}

func (m *monitor) Disconnect() error {
	return m.q.Disconnect()
}
