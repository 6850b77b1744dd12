package history

import (
	"context"
	"sync"
)

// Recorder keeps events in memory. It backs the status API's recent event
// view and is handy in tests.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewRecorder keeps at most limit events, <= 0 keeps all.
func NewRecorder(limit int) *Recorder { return &Recorder{limit: limit} }

func (r *Recorder) Send(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]Event(nil), r.events[len(r.events)-r.limit:]...)
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns the recorded events of one unit and type.
func (r *Recorder) Filter(unit string, t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Unit == unit && e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
