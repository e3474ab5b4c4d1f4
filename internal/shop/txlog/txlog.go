package txlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/logicshop-core/server/internal/shop/model"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// NewID returns txn_ followed by a random UUID without dashes.
func NewID() string {
	return "txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// MemoryLog is an append-only, insertion-ordered log. Append never fails.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []model.Transaction
	index   map[string]int
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{index: make(map[string]int)}
}

func (l *MemoryLog) Append(_ context.Context, tx model.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index[tx.ID] = len(l.entries)
	l.entries = append(l.entries, tx)
	return nil
}

func (l *MemoryLog) Get(_ context.Context, id string) (model.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return l.entries[i], nil
}

func (l *MemoryLog) List(_ context.Context) ([]model.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Transaction, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

var _ model.TransactionLog = (*MemoryLog)(nil)
