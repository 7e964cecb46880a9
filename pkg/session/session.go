package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

// CookieName is the HttpOnly cookie carrying the session id
const CookieName = "session_id"

// entry holds a session value with its expiration
type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Store keeps one value per browser session. Every successful lookup
// extends the session's lifetime.
type Store[T any] struct {
	sessions map[string]*entry[T]
	mutex    sync.Mutex
	ttl      time.Duration
	onEvict  func(id string, value T)
	now      func() time.Time
}

// NewStore creates a session store. onEvict, if set, is called outside
// the store's lock for every session that expires or is deleted.
func NewStore[T any](ttl time.Duration, onEvict func(id string, value T)) *Store[T] {
	if ttl <= 0 {
		ttl = time.Duration(models.SessionTimeout) * time.Second
	}
	return &Store[T]{
		sessions: make(map[string]*entry[T]),
		ttl:      ttl,
		onEvict:  onEvict,
		now:      time.Now,
	}
}

// Set stores a session value with a fresh expiration
func (s *Store[T]) Set(id string, value T) {
	s.mutex.Lock()
	e := &entry[T]{value: value, expiresAt: s.now().Add(s.ttl)}
	s.sessions[id] = e
	s.mutex.Unlock()

	logging.LogDebug("Session stored",
		"session_id", id,
		"expires_at", e.expiresAt.Format(time.RFC3339))
}

// Get retrieves a session value if it exists and hasn't expired
func (s *Store[T]) Get(id string) (T, bool) {
	var zero T

	s.mutex.Lock()
	e, exists := s.sessions[id]
	if !exists {
		s.mutex.Unlock()
		return zero, false
	}

	now := s.now()
	if now.After(e.expiresAt) {
		delete(s.sessions, id)
		s.mutex.Unlock()

		logging.LogDebug("Session expired",
			"session_id", id,
			"expired_at", e.expiresAt.Format(time.RFC3339))
		s.evict(id, e.value)
		return zero, false
	}

	e.expiresAt = now.Add(s.ttl)
	s.mutex.Unlock()
	return e.value, true
}

// GetOrCreate returns the value of id, creating it with create when the
// session is unknown or expired. The boolean reports whether it was created.
func (s *Store[T]) GetOrCreate(id string, create func(id string) (T, error)) (T, bool, error) {
	if v, ok := s.Get(id); ok {
		return v, false, nil
	}

	v, err := create(id)
	if err != nil {
		var zero T
		return zero, false, err
	}

	s.mutex.Lock()
	// another request may have created it meanwhile
	if e, exists := s.sessions[id]; exists && !s.now().After(e.expiresAt) {
		s.mutex.Unlock()
		s.evict(id, v)
		return e.value, false, nil
	}
	s.sessions[id] = &entry[T]{value: v, expiresAt: s.now().Add(s.ttl)}
	s.mutex.Unlock()

	logging.LogDebug("Session created", "session_id", id)
	return v, true, nil
}

// Delete removes a session
func (s *Store[T]) Delete(id string) {
	s.mutex.Lock()
	e, exists := s.sessions[id]
	if exists {
		delete(s.sessions, id)
	}
	s.mutex.Unlock()

	if exists {
		logging.LogDebug("Session deleted", "session_id", id)
		s.evict(id, e.value)
	}
}

// CleanupExpired removes all expired sessions and returns how many were
// removed
func (s *Store[T]) CleanupExpired() int {
	s.mutex.Lock()
	now := s.now()
	expired := make(map[string]T)
	for id, e := range s.sessions {
		if now.After(e.expiresAt) {
			expired[id] = e.value
			delete(s.sessions, id)
		}
	}
	remaining := len(s.sessions)
	s.mutex.Unlock()

	for id, v := range expired {
		s.evict(id, v)
	}

	if len(expired) > 0 {
		logging.LogInfo("Cleaned up expired sessions",
			"expired_count", len(expired),
			"remaining_sessions", remaining)
	}
	return len(expired)
}

// Range calls fn for every live session
func (s *Store[T]) Range(fn func(id string, value T)) {
	s.mutex.Lock()
	now := s.now()
	live := make(map[string]T, len(s.sessions))
	for id, e := range s.sessions {
		if !now.After(e.expiresAt) {
			live[id] = e.value
		}
	}
	s.mutex.Unlock()

	for id, v := range live {
		fn(id, v)
	}
}

// GetSessionCount returns the current number of sessions
func (s *Store[T]) GetSessionCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sessions)
}

func (s *Store[T]) evict(id string, v T) {
	if s.onEvict != nil {
		s.onEvict(id, v)
	}
}

// GenerateSessionID creates a cryptographically secure random session ID
func GenerateSessionID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		logging.LogError("Failed to generate session ID", err)
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ValidSessionID reports whether id looks like a value GenerateSessionID
// produced
func ValidSessionID(id string) bool {
	if len(id) != 32 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
