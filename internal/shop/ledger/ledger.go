// Package ledger holds the single default user's mutable account state.
package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/logicshop-core/server/internal/shop/model"
)

var ErrUserNotFound = errors.New("user not found")

// NewUserID returns usr_ followed by 8 random bytes in hex.
func NewUserID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	return "usr_" + hex.EncodeToString(b), nil
}

type Ledger struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	defaultID string
	now       func() time.Time
}

// New creates a ledger holding exactly one user built from cfg.
func New(cfg model.UserConfig) (*Ledger, error) {
	tier := model.Tier(cfg.Tier)
	if !tier.Valid() {
		return nil, fmt.Errorf("unknown user tier %q", cfg.Tier)
	}
	id, err := NewUserID()
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		users:     make(map[string]*model.User, 1),
		defaultID: id,
		now:       time.Now,
	}
	l.users[id] = &model.User{
		ID:               id,
		Balance:          cfg.Balance,
		Tier:             tier,
		TransactionLimit: cfg.TransactionLimit,
		LastActivity:     l.now(),
	}
	return l, nil
}

// Default returns a snapshot of the process' only user.
func (l *Ledger) Default() model.User {
	u, _ := l.Get(l.defaultID)
	return u
}

func (l *Ledger) Get(userID string) (model.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return *u, nil
}

func (l *Ledger) Touch(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	u.LastActivity = l.now()
	return nil
}

// Charge subtracts amount without checking the resulting balance. A negative
// amount credits the user.
func (l *Ledger) Charge(userID string, amount float64) (model.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	u.Balance -= amount
	u.PurchaseCount++
	u.LastActivity = l.now()
	return *u, nil
}

var _ model.Ledger = (*Ledger)(nil)
