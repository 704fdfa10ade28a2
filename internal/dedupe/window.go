// ABOUTME: Bounded time window of recently seen keys
// ABOUTME: Expired keys are dropped lazily on each call, oldest keys evicted at capacity

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	seenAt time.Time
}

// Window tracks keys seen within the last ttl, holding at most maxSize keys.
// Safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List // oldest at front
	index   map[string]*list.Element
	now     func() time.Time
}

// New creates a Window.
func New(ttl time.Duration, maxSize int) *Window {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Window{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		index:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Seen reports whether key was marked within the window.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked()
	_, ok := w.index[key]
	return ok
}

// Mark records key. It returns true when key was already in the window, in
// which case its position is left unchanged.
func (w *Window) Mark(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked()

	if _, ok := w.index[key]; ok {
		return true
	}
	for w.order.Len() >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.index[key] = w.order.PushBack(&entry{key: key, seenAt: w.now()})
	return false
}

// Len returns the number of keys currently in the window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked()
	return w.order.Len()
}

// expireLocked drops keys older than ttl. Entries are in insertion order so
// the scan stops at the first live one.
func (w *Window) expireLocked() {
	cutoff := w.now().Add(-w.ttl)
	for e := w.order.Front(); e != nil; e = w.order.Front() {
		if e.Value.(*entry).seenAt.After(cutoff) {
			return
		}
		w.removeLocked(e)
	}
}

func (w *Window) removeLocked(e *list.Element) {
	w.order.Remove(e)
	delete(w.index, e.Value.(*entry).key)
}
