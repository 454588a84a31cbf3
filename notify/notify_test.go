package notify

import "testing"

func TestNotifyDispatchesToRegisteredClient(t *testing.T) {
	fired := 0
	sink := NewSink(map[int]Signaler{
		1: SignalerFunc(func() { fired++ }),
	})

	sink.Notify(1)
	sink.Notify(1)

	if fired != 2 {
		t.Errorf("expected 2 signals, got %d", fired)
	}
}

func TestNotifyUnknownClientIsNoOp(t *testing.T) {
	fired := 0
	sink := NewSink(map[int]Signaler{
		1: SignalerFunc(func() { fired++ }),
	})

	sink.Notify(99)

	if fired != 0 {
		t.Errorf("expected no signals for unknown client, got %d", fired)
	}
}

func TestNotifyOnEmptySink(t *testing.T) {
	sink := NewSink(nil)

	// Must not panic.
	sink.Notify(1)
}

func TestSinkTableIsCopied(t *testing.T) {
	fired := 0
	table := map[int]Signaler{
		1: SignalerFunc(func() { fired++ }),
	}
	sink := NewSink(table)

	// Mutating the caller's map must not affect the sink.
	delete(table, 1)
	sink.Notify(1)

	if fired != 1 {
		t.Errorf("expected 1 signal, got %d", fired)
	}
}
