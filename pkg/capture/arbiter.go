package capture

import "sync"

// DefaultArbiter is shared by sessions created without WithArbiter
var DefaultArbiter = NewArbiter()

// Arbiter keeps at most one live session per device. Claiming a device that
// another session holds stops the other session first.
type Arbiter struct {
	mu     sync.Mutex
	owners map[string]*Session
}

// NewArbiter creates an empty arbiter
func NewArbiter() *Arbiter {
	return &Arbiter{owners: make(map[string]*Session)}
}

// Owner returns the session currently holding device, if any
func (a *Arbiter) Owner(device string) *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owners[device]
}

func (a *Arbiter) claim(device string, s *Session) {
	a.mu.Lock()
	prev := a.owners[device]
	a.owners[device] = s
	a.mu.Unlock()

	if prev != nil && prev != s {
		prev.logger.Info().Str("device", device).Msg("Stopping previous camera session")
		prev.Stop()
	}
}

func (a *Arbiter) release(device string, s *Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owners[device] == s {
		delete(a.owners, device)
	}
}
