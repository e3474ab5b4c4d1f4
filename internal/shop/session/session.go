package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/logicshop-core/server/internal/shop/model"
)

const (
	tokenPrefix = "sess_"
	tokenBytes  = 16
)

var (
	ErrMissingToken = errors.New("session token missing")
	ErrInvalidToken = errors.New("session token invalid")
)

// NewToken returns sess_ followed by 16 random bytes in hex.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return tokenPrefix + hex.EncodeToString(b), nil
}

// MemoryStore keeps sessions for the lifetime of the process. There is no expiry.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, userID string) (model.Session, error) {
	token, err := NewToken()
	if err != nil {
		return model.Session{}, err
	}
	sess := model.Session{Token: token, UserID: userID, CreatedAt: s.now()}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Resolve(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return "", ErrInvalidToken
	}
	return sess.UserID, nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ model.SessionStore = (*MemoryStore)(nil)
