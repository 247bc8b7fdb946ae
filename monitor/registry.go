package monitor

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is a point-in-time view of one monitor, shaped for the status API.
type Snapshot struct {
	Account     string    `json:"account"`
	Platform    string    `json:"platform"`
	Handle      string    `json:"handle"`
	State       string    `json:"state"`
	Title       string    `json:"title,omitempty"`
	Category    string    `json:"category,omitempty"`
	ViewerCount int       `json:"viewer_count,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	LiveSince   time.Time `json:"live_since,omitempty"`
	LastPollAt  time.Time `json:"last_poll_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Snapshot captures the monitor's current state for inspection.
func (m *StreamMonitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Account:    m.account.Key(),
		Platform:   m.account.Platform,
		Handle:     m.account.Handle,
		State:      m.state.String(),
		SessionID:  m.sessionID,
		LiveSince:  m.liveSince,
		LastPollAt: m.lastPollAt,
	}
	if m.state == StateLive || m.state == StatePendingOffline {
		s.Title = m.lastSample.Title
		s.Category = m.lastSample.Category
		s.ViewerCount = m.lastSample.ViewerCount
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Registry tracks all running monitors by account key.
type Registry struct {
	mu       sync.RWMutex
	monitors map[string]*StreamMonitor
}

func NewRegistry() *Registry {
	return &Registry{monitors: make(map[string]*StreamMonitor)}
}

func (r *Registry) Add(m *StreamMonitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitors[m.Account().Key()] = m
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}

// Poke forces an immediate poll on one account. Returns false when the
// account is not monitored.
func (r *Registry) Poke(key string) bool {
	r.mu.RLock()
	m, ok := r.monitors[key]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	m.Poke()
	return true
}

// PokeAll forces an immediate poll on every monitor.
func (r *Registry) PokeAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.monitors {
		m.Poke()
	}
}

// Snapshots returns every monitor's state sorted by account key.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.monitors))
	for _, m := range r.monitors {
		out = append(out, m.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}
