package auth

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// SessionStore keeps sessions for the lifetime of the process only.
type SessionStore interface {
	Get(id string) (Session, bool)
	Save(s Session)
	Delete(id string)
}

// MemoryStore is a bounded in-memory SessionStore. The least recently used
// session is evicted when full; sessions older than ttl are dropped on read.
type MemoryStore struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(size int, ttl time.Duration) (*MemoryStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (m *MemoryStore) Get(id string) (Session, bool) {
	v, ok := m.cache.Get(id)
	if !ok {
		return Session{}, false
	}
	s := v.(Session)
	if m.ttl > 0 && m.now().Sub(s.CreatedAt) > m.ttl {
		m.cache.Remove(id)
		return Session{}, false
	}
	return s, true
}

func (m *MemoryStore) Save(s Session) {
	m.cache.Add(s.ID, s)
}

func (m *MemoryStore) Delete(id string) {
	m.cache.Remove(id)
}

func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
