package auth

import (
	"sync"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
)

// SessionCache is a process-local read cache in front of the session store.
// Entries are whole values, so a Put atomically replaces the record.
type SessionCache struct {
	mu    sync.RWMutex
	items map[string]domain.Session
}

func NewSessionCache() *SessionCache {
	return &SessionCache{items: make(map[string]domain.Session)}
}

func (c *SessionCache) Get(token string) (domain.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.items[token]
	return s, ok
}

func (c *SessionCache) Put(s domain.Session) {
	c.mu.Lock()
	c.items[s.Token] = s
	c.mu.Unlock()
}

func (c *SessionCache) Delete(token string) {
	c.mu.Lock()
	delete(c.items, token)
	c.mu.Unlock()
}

func (c *SessionCache) DeleteUser(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tok, s := range c.items {
		if s.UserID == userID {
			delete(c.items, tok)
		}
	}
}

func (c *SessionCache) DeleteExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for tok, s := range c.items {
		if s.Expired(now) {
			delete(c.items, tok)
			n++
		}
	}
	return n
}

func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
