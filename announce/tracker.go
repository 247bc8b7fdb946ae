package announce

import (
	"sync"
	"time"
)

// Record is the tracked state of one announcement. For separate and thread
// modes there is one record per (account, social platform); combined mode
// keeps one record per social platform and fills Members with each account's
// rendered line.
type Record struct {
	PostID        string
	ThreadRootID  string
	PeakViewers   int
	LastUpdatedAt time.Time
	Closed        bool
	Members       map[string]string
}

func (r Record) clone() Record {
	if r.Members == nil {
		return r
	}
	members := make(map[string]string, len(r.Members))
	for k, v := range r.Members {
		members[k] = v
	}
	r.Members = members
	return r
}

// Key builds the tracker key for one account on one social platform.
func Key(accountKey, platform string) string {
	return platform + "|" + accountKey
}

// CombinedKey builds the tracker key for a platform's shared combined post.
func CombinedKey(platform string) string {
	return platform + "|*"
}

// Tracker is the in-memory announcement correlation table. It holds no
// network state and performs no I/O. Callers serialize read-modify-write
// cycles per key via Lock, holding the key lock across the adapter calls the
// cycle issues.
type Tracker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	recs  map[string]Record
}

func NewTracker() *Tracker {
	return &Tracker{
		locks: make(map[string]*sync.Mutex),
		recs:  make(map[string]Record),
	}
}

// Lock acquires the per-key mutex and returns its unlock func. Key mutexes
// are created on first use and never discarded; the key space is bounded by
// accounts times platforms.
func (t *Tracker) Lock(key string) func() {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	t.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (t *Tracker) Get(key string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.recs[key]
	return r.clone(), ok
}

func (t *Tracker) Put(key string, r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recs[key] = r.clone()
}

func (t *Tracker) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.recs, key)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.recs)
}

// Snapshot copies the table for inspection endpoints.
func (t *Tracker) Snapshot() map[string]Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Record, len(t.recs))
	for k, r := range t.recs {
		out[k] = r.clone()
	}
	return out
}
