// pkg/memcache/tokens.go
package mem

import (
	"sync"
	"time"
)

type TokenStore interface {
	// Get returns the token for key if present and not expired.
	Get(key string) (string, bool)

	Set(key string, token string, ttl time.Duration)

	// Evict removes key. Missing keys are ignored.
	Evict(key string)
}

type entry struct {
	token     string
	expiresAt time.Time
}

// Tokens is an in-process TTL cache. It never persists past the process.
type Tokens struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

func NewTokens() *Tokens {
	return NewTokensWithClock(time.Now)
}

func NewTokensWithClock(now func() time.Time) *Tokens {
	if now == nil {
		now = time.Now
	}
	return &Tokens{
		data: make(map[string]entry),
		now:  now,
	}
}

func (s *Tokens) Set(key string, token string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{
		token:     token,
		expiresAt: s.now().Add(ttl),
	}
}

func (s *Tokens) Get(key string) (string, bool) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}

	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		// re-check, a concurrent Set may have refreshed it
		if cur, ok := s.data[key]; ok && !s.now().Before(cur.expiresAt) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return "", false
	}
	return e.token, true
}

func (s *Tokens) Evict(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}
