package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize   = 256
	defaultMaxSessions = 10000
	defaultIdleTTL     = 30 * time.Minute
)

// StoreConfig bounds the store. Zero values pick the defaults.
type StoreConfig struct {
	// decrypted values cached per session, of each kind
	CacheSize int
	// live sessions kept; the least recently used one is dropped beyond this
	MaxSessions int
	// a session unused for this long expires
	IdleTTL time.Duration
}

// Store holds live sessions in memory. Nothing is persisted.
type Store struct {
	cacheSize int
	sessions  *expirable.LRU[string, *Session]
}

// NewStore creates a bounded session store
func NewStore(cfg StoreConfig) *Store {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}

	onEvict := func(id string, _ *Session) {
		slog.Debug("Session dropped", "session_id", id)
	}
	return &Store{
		cacheSize: cfg.CacheSize,
		sessions:  expirable.NewLRU[string, *Session](cfg.MaxSessions, onEvict, cfg.IdleTTL),
	}
}

// New creates a session with a fresh id
func (s *Store) New() *Session {
	sess := newSession(uuid.NewString(), s.cacheSize)
	s.sessions.Add(sess.ID, sess)

	slog.Debug("Session created", "session_id", sess.ID)
	return sess
}

// Get returns a live session and renews its idle timer
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s.sessions.Add(id, sess)
	return sess, true
}

// GetOrCreate returns the session for id, or a new one when id is unknown or expired
func (s *Store) GetOrCreate(id string) (*Session, bool) {
	if sess, ok := s.Get(id); ok {
		return sess, false
	}
	return s.New(), true
}

// Delete ends a session. It reports whether the session was live.
func (s *Store) Delete(id string) bool {
	if _, ok := s.sessions.Get(id); !ok {
		return false
	}
	return s.sessions.Remove(id)
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	return len(s.live())
}

// ResetChain resets chain-bound state in every live session
func (s *Store) ResetChain() {
	for _, sess := range s.live() {
		sess.ResetChain()
	}
}

// live skips expired entries, which Values reports as nil until they are swept
func (s *Store) live() []*Session {
	values := s.sessions.Values()
	out := values[:0]
	for _, sess := range values {
		if sess != nil {
			out = append(out, sess)
		}
	}
	return out
}
