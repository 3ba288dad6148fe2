// Package cache memoizes derived read models such as period summaries.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache is the read/write surface consumers depend on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic expiry over registered caches.
type Manager struct {
	mu      sync.Mutex
	caches  map[string]Cleaner
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewManager() *Manager {
	return &Manager{caches: make(map[string]Cleaner)}
}

// Register adds a named cache to the cleanup rounds.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// StartCleanup begins periodic cleanup. Calling it twice is a no-op.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || interval <= 0 {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.cleanup(interval, m.stopCh, m.doneCh)
}

func (m *Manager) cleanup(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanOnce()
		case <-stop:
			return
		}
	}
}

// CleanOnce runs one cleanup round and returns the number of evictions.
func (m *Manager) CleanOnce() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for name, c := range m.caches {
		if n := c.CleanExpired(); n > 0 {
			slog.Debug("Cache cleanup", "component", "cache", "cache", name, "expired", n)
			total += n
		}
	}
	return total
}

// Stop halts the cleanup routine and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stop)
	<-done
}
