package cache

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"
)

type localEntry struct {
	value     string
	expiresAt time.Time
}

func (e localEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// localStore is the process-local tier: a mutex-guarded map with lazy expiry
// plus a background sweep. Per-instance only; the shared view lives in Redis.
type localStore struct {
	mu      sync.RWMutex
	entries map[string]localEntry
}

func newLocalStore() *localStore {
	return &localStore{entries: map[string]localEntry{}}
}

func (s *localStore) Get(key string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if entry.expired(time.Now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", false
	}
	return entry.value, true
}

func (s *localStore) Set(key, value string, ttl time.Duration) {
	entry := localEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

func (s *localStore) Delete(keys ...string) {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	s.mu.Unlock()
}

// DeletePrefix drops every key sharing the given prefix.
func (s *localStore) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// DeletePattern drops every key matching a glob pattern (same syntax Redis
// SCAN uses for the subset this platform builds).
func (s *localStore) DeletePattern(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// CountPrefix reports live (unexpired) entries under a prefix.
func (s *localStore) CountPrefix(prefix string) int {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key, entry := range s.entries {
		if strings.HasPrefix(key, prefix) && !entry.expired(now) {
			count++
		}
	}
	return count
}

func (s *localStore) Clear() {
	s.mu.Lock()
	s.entries = map[string]localEntry{}
	s.mu.Unlock()
}

func (s *localStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

// StartJanitor sweeps expired entries until ctx is done.
func (s *localStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}
