// Package identity tracks the signed-in user. The empty id means signed out,
// which maps to the default local partition.
package identity

import (
	"sync"
)

// Change is delivered to subscribers when the current id changes.
type Change struct {
	Previous string
	Current  string
}

// Tracker holds the current user id and fans out changes.
type Tracker struct {
	mu      sync.RWMutex
	current string
	nextSub int
	subs    map[int]chan Change
}

// NewTracker returns a Tracker starting at id.
func NewTracker(id string) *Tracker {
	return &Tracker{current: id, subs: make(map[int]chan Change)}
}

// Current returns the current user id.
func (t *Tracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Set changes the current id. It reports whether the id changed. Subscribers
// that are not keeping up miss intermediate changes but always see the last.
func (t *Tracker) Set(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == t.current {
		return false
	}
	change := Change{Previous: t.current, Current: id}
	t.current = id
	for _, ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		ch <- change
	}
	return true
}

// SignOut is Set("").
func (t *Tracker) SignOut() bool {
	return t.Set("")
}

// Subscribe returns a channel of changes and a func that closes it.
func (t *Tracker) Subscribe() (<-chan Change, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan Change, 1)
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			close(ch)
			t.mu.Unlock()
		})
	}
}
