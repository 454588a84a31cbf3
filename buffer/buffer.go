package buffer

import "sync"

// Capacity is the size of every shared frame buffer, large enough for the
// biggest frame a tap device can deliver.
const Capacity = 65535

// Shared is a fixed-capacity byte region passed between the driver and a
// client. All content access goes through WithLock.
type Shared struct {
	mu      sync.Mutex
	content [Capacity]byte
}

// WithLock runs fn against the buffer content while holding the guard. The
// guard is released when fn returns, error or not.
func (s *Shared) WithLock(fn func(content []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(s.content[:])
}

// CopyIn copies p into the start of the buffer under the guard and reports
// how many bytes fit.
func (s *Shared) CopyIn(p []byte) int {
	n := 0

	_ = s.WithLock(func(content []byte) error {
		n = copy(content, p)
		return nil
	})

	return n
}

// CopyOut returns a copy of the first n bytes of the buffer, with n clamped
// to [0, Capacity].
func (s *Shared) CopyOut(n int) []byte {
	if n < 0 {
		n = 0
	}
	if n > Capacity {
		n = Capacity
	}

	out := make([]byte, n)

	_ = s.WithLock(func(content []byte) error {
		copy(out, content[:n])
		return nil
	})

	return out
}

func (s *Shared) Capacity() int {
	return Capacity
}
