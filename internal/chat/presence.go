package chat

import (
	"sort"
	"sync"
)

// Presence tracks which users currently hold at least one live hub
// connection. Counts are per user so a second tab/device does not flap the
// online status.
type Presence struct {
	mu    sync.RWMutex
	conns map[string]int
}

// NewPresence creates an empty presence registry.
func NewPresence() *Presence {
	return &Presence{conns: make(map[string]int)}
}

// Connect records a connection for the user. Returns true if the user just
// came online (first connection).
func (p *Presence) Connect(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[userID]++
	return p.conns[userID] == 1
}

// Disconnect records a connection loss. Returns true if the user just went
// offline (last connection).
func (p *Presence) Disconnect(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[userID] == 0 {
		return false
	}
	p.conns[userID]--
	if p.conns[userID] == 0 {
		delete(p.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has a live connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conns[userID] > 0
}

// Online returns the sorted list of online user IDs.
func (p *Presence) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.conns))
	for id := range p.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
