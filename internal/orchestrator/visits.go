package orchestrator

import "sync"

// Visits remembers which users had their visit counted during this process.
// It is shared by every chat.
type Visits struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisits creates an empty marker set.
func NewVisits() *Visits {
	return &Visits{seen: make(map[string]struct{})}
}

// Mark records userID and reports whether it was not already recorded.
func (v *Visits) Mark(userID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[userID]; ok {
		return false
	}
	v.seen[userID] = struct{}{}
	return true
}

// Forget drops the marker for userID.
func (v *Visits) Forget(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.seen, userID)
}
