package associations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// MemoryRepository keeps the ledger in process memory. WithinUser stages
// changes on a copy of the user's rows and applies them only on success.
type MemoryRepository struct {
	mu     sync.RWMutex
	rows   map[string]Association
	byUser map[int64][]string
	users  *shared.LocalLocker
}

// NewMemoryRepository constructs an empty ledger.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows:   make(map[string]Association),
		byUser: make(map[int64][]string),
		users:  shared.NewLocalLocker(),
	}
}

var _ RepositoryPort = (*MemoryRepository)(nil)

func (m *MemoryRepository) Get(_ context.Context, id string) (Association, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.rows[id]
	if !ok {
		return Association{}, fmt.Errorf("associations: %s: %w", id, shared.ErrNotFound)
	}
	return a, nil
}

func (m *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]Association, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Association, 0, len(m.byUser[userID]))
	for _, id := range m.byUser[userID] {
		out = append(out, m.rows[id])
	}
	return out, nil
}

func (m *MemoryRepository) ListExpiring(_ context.Context, now time.Time) ([]Association, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Association
	for _, a := range m.rows {
		if a.Status != StatusInactive && a.Expired(now) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *MemoryRepository) WithinUser(ctx context.Context, userID int64, fn func(ctx context.Context, tx TxRepository) error) error {
	unlock, err := m.users.Lock(ctx, shared.UserLockKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	m.mu.RLock()
	tx := &memoryTx{userID: userID, rows: make(map[string]Association, len(m.byUser[userID]))}
	for _, id := range m.byUser[userID] {
		tx.rows[id] = m.rows[id]
	}
	m.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.checkSingleCurrent(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range tx.rows {
		m.rows[id] = a
	}
	m.byUser[userID] = append(m.byUser[userID], tx.inserted...)
	return nil
}

type memoryTx struct {
	userID   int64
	rows     map[string]Association
	inserted []string
}

func (t *memoryTx) Get(_ context.Context, id string) (Association, error) {
	a, ok := t.rows[id]
	if !ok {
		return Association{}, fmt.Errorf("associations: %s for user %d: %w", id, t.userID, shared.ErrNotFound)
	}
	return a, nil
}

func (t *memoryTx) Current(_ context.Context) (Association, bool, error) {
	for _, a := range t.rows {
		if a.Status == StatusCurrent {
			return a, true, nil
		}
	}
	return Association{}, false, nil
}

func (t *memoryTx) Insert(_ context.Context, a Association) error {
	if a.UserID != t.userID {
		return fmt.Errorf("associations: insert for user %d inside user %d: %w", a.UserID, t.userID, shared.ErrValidation)
	}
	if _, ok := t.rows[a.ID]; ok {
		return fmt.Errorf("associations: %s: %w", a.ID, shared.ErrDuplicateCode)
	}
	t.rows[a.ID] = a
	t.inserted = append(t.inserted, a.ID)
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id string, status Status, at time.Time) error {
	a, ok := t.rows[id]
	if !ok {
		return fmt.Errorf("associations: %s: %w", id, shared.ErrNotFound)
	}
	a.Status = status
	a.UpdatedAt = at
	t.rows[id] = a
	return nil
}

// checkSingleCurrent mirrors the partial unique index on CURRENT rows.
func (t *memoryTx) checkSingleCurrent() error {
	current := 0
	for _, a := range t.rows {
		if a.Status == StatusCurrent {
			current++
		}
	}
	if current > 1 {
		return fmt.Errorf("associations: user %d would have %d current rows: %w", t.userID, current, shared.ErrDuplicateCode)
	}
	return nil
}
