package buffer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
)

func TestRegistryClientLookup(t *testing.T) {
	r := NewRegistry(1)

	buf, err := r.Client(1)
	if err != nil {
		t.Fatalf("Client(1) failed: %v", err)
	}
	if buf == nil {
		t.Fatal("Client(1) returned nil buffer")
	}

	_, err = r.Client(99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Client(99): expected ErrNotFound, got %v", err)
	}
}

func TestRegistryBuffersAreDistinct(t *testing.T) {
	r := NewRegistry(1, 2)

	one, _ := r.Client(1)
	two, _ := r.Client(2)

	if one == two {
		t.Error("clients 1 and 2 share a buffer")
	}
	if one == r.Driver() || two == r.Driver() {
		t.Error("client buffer aliases the driver buffer")
	}
}

func TestCopyInCopyOut(t *testing.T) {
	s := &Shared{}

	frame := []byte{0xde, 0xad, 0xbe, 0xef}
	n := s.CopyIn(frame)
	if n != len(frame) {
		t.Fatalf("CopyIn copied %d bytes, expected %d", n, len(frame))
	}

	out := s.CopyOut(len(frame))
	if !bytes.Equal(out, frame) {
		t.Errorf("CopyOut returned %x, expected %x", out, frame)
	}
}

func TestCopyInClampsToCapacity(t *testing.T) {
	s := &Shared{}

	n := s.CopyIn(make([]byte, Capacity+10))
	if n != Capacity {
		t.Errorf("CopyIn copied %d bytes, expected %d", n, Capacity)
	}
}

func TestCopyOutClamps(t *testing.T) {
	s := &Shared{}

	if got := len(s.CopyOut(-1)); got != 0 {
		t.Errorf("CopyOut(-1) returned %d bytes, expected 0", got)
	}
	if got := len(s.CopyOut(Capacity + 10)); got != Capacity {
		t.Errorf("CopyOut(Capacity+10) returned %d bytes, expected %d", got, Capacity)
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	s := &Shared{}

	wantErr := errors.New("boom")
	err := s.WithLock(func(content []byte) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}

	// The guard must have been released despite the error.
	done := make(chan struct{})
	go func() {
		_ = s.WithLock(func(content []byte) error { return nil })
		close(done)
	}()
	<-done
}

func TestWithLockMutualExclusion(t *testing.T) {
	s := &Shared{}

	const (
		workers    = 8
		increments = 2000
	)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range increments {
				_ = s.WithLock(func(content []byte) error {
					v := binary.BigEndian.Uint64(content[:8])
					binary.BigEndian.PutUint64(content[:8], v+1)
					return nil
				})
			}
		}()
	}
	wg.Wait()

	got := binary.BigEndian.Uint64(s.CopyOut(8))
	want := uint64(workers * increments)
	if got != want {
		t.Errorf("read-modify-write sequences interleaved: counter is %d, expected %d", got, want)
	}
}
