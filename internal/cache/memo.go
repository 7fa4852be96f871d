package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memo holds a single value for a limited time. It is safe for concurrent use.
type Memo[T any] struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  clockwork.Clock
	value  T
	stored time.Time
	ok     bool
}

// NewMemo returns an empty memo whose values expire after ttl.
func NewMemo[T any](ttl time.Duration, clock clockwork.Clock) *Memo[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memo[T]{ttl: ttl, clock: clock}
}

// Get returns the stored value if one is present and not expired.
func (m *Memo[T]) Get() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if !m.ok {
		return zero, false
	}
	if m.ttl > 0 && m.clock.Since(m.stored) >= m.ttl {
		m.ok = false
		m.value = zero
		return zero, false
	}
	return m.value, true
}

// Set stores v and restarts the expiry timer.
func (m *Memo[T]) Set(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
	m.stored = m.clock.Now()
	m.ok = true
}

// Invalidate drops any stored value.
func (m *Memo[T]) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.value = zero
	m.ok = false
}
