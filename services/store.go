package services

import (
	"context"
	"sync"

	"tripsplit-backend/models"
)

// Store is the persistence contract behind the ledger. Implementations
// return ledger.ErrNotFound for unknown ids and ledger.ErrDuplicateID when
// Create hits an existing id.
type Store interface {
	Get(ctx context.Context, id string) (models.Expense, error)
	Create(ctx context.Context, e models.Expense) error
	Replace(ctx context.Context, e models.Expense) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Expense, error)
}

// Change is one push notification from a store. Expense is nil when the
// record was deleted.
type Change struct {
	ID      string
	Expense *models.Expense
}

// ChangeFeed streams store changes until ctx is done.
type ChangeFeed interface {
	Watch(ctx context.Context, apply func(Change)) error
}

// keyedMutex serializes work per expense id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (k *keyedMutex) Lock(id string) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
