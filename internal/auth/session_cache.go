package auth

import (
	"context"
	"sync"
	"time"

	"github.com/vaidashi/freight-exchange/internal/models"
)

// DefaultSessionTTL bounds how stale role and verification flags may be
const DefaultSessionTTL = 5 * time.Minute

// SessionLoader reads a fresh session for a user from the store
type SessionLoader func(ctx context.Context, userID string) (*models.Session, error)

type cachedSession struct {
	session  models.Session
	loadedAt time.Time
}

// SessionCache resolves sessions, reloading an entry once it is older than ttl
type SessionCache struct {
	mu      sync.Mutex
	entries map[string]cachedSession
	ttl     time.Duration
	load    SessionLoader
	now     func() time.Time

	hits   int64
	misses int64
}

func NewSessionCache(ttl time.Duration, load SessionLoader) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCache{
		entries: make(map[string]cachedSession),
		ttl:     ttl,
		load:    load,
		now:     time.Now,
	}
}

// WithClock replaces the time source
func (c *SessionCache) WithClock(now func() time.Time) *SessionCache {
	c.now = now
	return c
}

// Get returns a copy of the cached session, loading it when missing or expired
func (c *SessionCache) Get(ctx context.Context, userID string) (*models.Session, error) {
	c.mu.Lock()
	entry, ok := c.entries[userID]
	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		c.hits++
		c.mu.Unlock()
		s := entry.session
		return &s, nil
	}
	c.misses++
	c.mu.Unlock()

	session, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[userID] = cachedSession{session: *session, loadedAt: c.now()}
	c.mu.Unlock()

	s := *session
	return &s, nil
}

// Invalidate drops one user's entry
func (c *SessionCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// InvalidateCompany drops every cached member of a company, e.g. after verification
func (c *SessionCache) InvalidateCompany(companyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if entry.session.CompanyID == companyID {
			delete(c.entries, id)
		}
	}
}

// GetMetrics returns cache counters
func (c *SessionCache) GetMetrics() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"entries": len(c.entries),
		"hits":    c.hits,
		"misses":  c.misses,
		"ttl":     c.ttl.String(),
	}
}
