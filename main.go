package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/gwenya/ethharness/buffer"
	"github.com/gwenya/ethharness/driver"
	"github.com/gwenya/ethharness/notify"
	"github.com/gwenya/ethharness/peervm"
	"github.com/gwenya/ethharness/tap"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const clientID = 1

func main() {
	tapName := flag.String("tap", "tap1", "tap device for the driver endpoint")
	withPeer := flag.Bool("peer", false, "launch a qemu guest on a second tap as traffic peer")
	peerTap := flag.String("peer-tap", "tap2", "tap device for the peer VM")
	qemuPath := flag.String("qemu", "/usr/bin/qemu-system-x86_64", "qemu binary for the peer VM")
	runtimeDir := flag.String("runtime-dir", "/tmp/ethharness", "working directory for peer VM files")
	flag.Parse()

	buffers := buffer.NewRegistry(clientID)

	sink := notify.NewSink(map[int]notify.Signaler{
		clientID: notify.SignalerFunc(func() {
			fmt.Printf("[CLIENT %d] emit: data available\n", clientID)
		}),
	})

	ep, err := driver.New(driver.Options{
		OpenDevice: func() (driver.Device, error) {
			return tap.Open(tap.Config{Name: *tapName, SetUp: true})
		},
		Buffers:  buffers,
		Notifier: sink,
		ClientID: clientID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating endpoint: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("[DRIVER] mac address: %s\n", ep.MACAddress())

	if *withPeer {
		err := startPeer(*qemuPath, *runtimeDir, *peerTap)
		if err != nil {
			fmt.Fprintf(os.Stderr, "starting peer VM: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ep.Close()
			default:
			}

			n, err := ep.Receive()
			if errors.Is(err, tap.ErrTimeout) {
				fmt.Println("[DRIVER] receive timeout, retrying")
				continue
			}
			if err != nil {
				return err
			}

			fmt.Printf("[DRIVER] received %d bytes on %s\n", n, *tapName)

			// Hand the frame to the client's buffer, the way the
			// protocol logic would after the emit signal.
			client, err := buffers.Client(clientID)
			if err != nil {
				return err
			}

			err = buffers.Driver().WithLock(func(content []byte) error {
				client.CopyIn(content[:n])
				return nil
			})
			if err != nil {
				return err
			}
		}
	})

	err = g.Wait()
	if err != nil {
		fmt.Fprintf(os.Stderr, "harness failed: %v\n", err)
		os.Exit(1)
	}
}

func startPeer(qemuPath string, runtimeDir string, peerTap string) error {
	err := os.MkdirAll(runtimeDir, os.ModePerm)
	if err != nil {
		return err
	}

	vm, err := peervm.New(peervm.Options{
		Id:         uuid.New(),
		QemuPath:   qemuPath,
		RuntimeDir: runtimeDir,
		TapName:    peerTap,
		MacAddress: []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		CloudInit: peervm.CloudInit{
			Meta: "instance-id: ethharness-peer",
			User: "#cloud-config\n",
			Network: `version: 2
ethernets:
  eth0:
    addresses: [10.0.0.2/24]
`,
		},
		Logf: func(format string, v ...any) {
			fmt.Printf("[PEER] "+format+"\n", v...)
		},
	})
	if err != nil {
		return err
	}

	return vm.Start()
}
