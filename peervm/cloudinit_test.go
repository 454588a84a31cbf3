package peervm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteIsoProducesVolume(t *testing.T) {
	ci := CloudInit{
		Meta: "instance-id: peer-test",
		User: "#cloud-config\n",
		Network: `version: 2
ethernets:
  eth0:
    addresses: [10.0.0.2/24]
`,
	}

	path := filepath.Join(t.TempDir(), "cidata.iso")
	if err := ci.WriteIso(path); err != nil {
		t.Fatalf("WriteIso failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat on iso: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected a non-empty iso file")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{RuntimeDir: "/tmp", TapName: "tap2"})
	if err == nil {
		t.Error("expected New without QemuPath to fail")
	}

	_, err = New(Options{QemuPath: "/usr/bin/qemu-system-x86_64", TapName: "tap2"})
	if err == nil {
		t.Error("expected New without RuntimeDir to fail")
	}

	_, err = New(Options{QemuPath: "/usr/bin/qemu-system-x86_64", RuntimeDir: "/tmp"})
	if err == nil {
		t.Error("expected New without TapName to fail")
	}

	vm, err := New(Options{QemuPath: "/usr/bin/qemu-system-x86_64", RuntimeDir: "/tmp", TapName: "tap2"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if vm.Running() {
		t.Error("fresh VM reports running")
	}
}
