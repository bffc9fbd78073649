package core

import "sync"

// SyncBuffer is an io.Writer safe for concurrent writers, used in tests that
// capture debug or log output from several actors.
type SyncBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// CaptureReporter records every event it receives.
type CaptureReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *CaptureReporter) Report(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *CaptureReporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
