package buffer

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("buffer: no such client")

// Registry owns the driver-side inbound buffer and one buffer per known
// client. The client set is fixed at construction; nothing is added or
// removed at runtime.
type Registry struct {
	driver  *Shared
	clients map[int]*Shared
}

func NewRegistry(clientIDs ...int) *Registry {
	clients := make(map[int]*Shared, len(clientIDs))
	for _, id := range clientIDs {
		clients[id] = &Shared{}
	}

	return &Registry{
		driver:  &Shared{},
		clients: clients,
	}
}

// Driver returns the driver-side inbound buffer. It has its own guard, so a
// stalled client does not block driver reception.
func (r *Registry) Driver() *Shared {
	return r.driver
}

// Client returns the buffer owned by the given client id, or ErrNotFound
// for ids outside the provisioned set.
func (r *Registry) Client(id int) (*Shared, error) {
	buf, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %d: %w", id, ErrNotFound)
	}

	return buf, nil
}
