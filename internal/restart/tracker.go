// Package restart tracks consecutive restart attempts per unit.
//
// A Tracker is not safe for concurrent use. The supervisor touches it only
// from its event loop.
package restart

// Tracker counts restart decisions per unit against a ceiling.
// An absent entry means zero attempts.
type Tracker struct {
	ceiling int
	counts  map[string]int
}

// NewTracker returns a Tracker. A ceiling <= 0 admits unlimited attempts.
func NewTracker(ceiling int) *Tracker {
	return &Tracker{ceiling: ceiling, counts: make(map[string]int)}
}

// Ceiling returns the configured maximum, <= 0 when unlimited.
func (t *Tracker) Ceiling() int { return t.ceiling }

// Unlimited reports whether attempts are unbounded.
func (t *Tracker) Unlimited() bool { return t.ceiling <= 0 }

// Admit reports whether another restart attempt is allowed for id.
func (t *Tracker) Admit(id string) bool {
	return t.Unlimited() || t.counts[id] < t.ceiling
}

// Increment records one restart decision and returns the new count.
func (t *Tracker) Increment(id string) int {
	t.counts[id]++
	return t.counts[id]
}

// Reset clears the stored count for id.
func (t *Tracker) Reset(id string) {
	delete(t.counts, id)
}

// Count returns the current attempt count for id.
func (t *Tracker) Count(id string) int { return t.counts[id] }

// Snapshot copies all non-zero counts.
func (t *Tracker) Snapshot() map[string]int {
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
