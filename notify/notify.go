package notify

import "maps"

// Signaler delivers the asynchronous data-available signal to one client.
// In production this would be an IPC notification; the harness substitutes
// whatever the demo wires in.
type Signaler interface {
	Signal()
}

// SignalerFunc adapts a plain function to the Signaler interface.
type SignalerFunc func()

func (f SignalerFunc) Signal() {
	f()
}

// Sink dispatches signals by client id. The table is fixed at construction.
type Sink struct {
	table map[int]Signaler
}

func NewSink(table map[int]Signaler) *Sink {
	copied := make(map[int]Signaler, len(table))
	maps.Copy(copied, table)

	return &Sink{table: copied}
}

// Notify signals the client registered under id. Unknown ids are ignored;
// signal delivery is best-effort.
func (s *Sink) Notify(id int) {
	if sig, ok := s.table[id]; ok {
		sig.Signal()
	}
}
