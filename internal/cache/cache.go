package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/qwestard/codassistant/internal/conversation"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrTurnInProgress = errors.New("previous message is still being processed")
)

type entry struct {
	session conversation.Session
	busy    bool
	touched time.Time
}

// SessionCache keeps chat sessions in memory. A session taken with Begin
// stays busy until Commit or Abort, so turns of one session never overlap.
type SessionCache struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *SessionCache) Put(s conversation.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID] = &entry{session: s, touched: c.now()}
}

func (c *SessionCache) Get(id string) (conversation.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.sessions[id]
	if !ok {
		return conversation.Session{}, ErrUnknownSession
	}
	return e.session, nil
}

func (c *SessionCache) Begin(id string) (conversation.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.sessions[id]
	if !ok {
		return conversation.Session{}, ErrUnknownSession
	}
	if e.busy {
		return conversation.Session{}, ErrTurnInProgress
	}
	e.busy = true
	e.touched = c.now()
	return e.session, nil
}

func (c *SessionCache) Commit(s conversation.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID] = &entry{session: s, touched: c.now()}
}

func (c *SessionCache) Abort(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.sessions[id]; ok {
		e.busy = false
	}
}

func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Evict drops sessions idle for longer than the ttl. Busy sessions stay.
func (c *SessionCache) Evict() int {
	if c.ttl <= 0 {
		return 0
	}
	deadline := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for id, e := range c.sessions {
		if !e.busy && e.touched.Before(deadline) {
			delete(c.sessions, id)
			n++
		}
	}
	return n
}
