// Package ledger keeps the in-memory, time-ordered collection of expenses
// that settlement reports are computed from.
package ledger

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"tripsplit-backend/models"
)

var (
	ErrDuplicateID = errors.New("duplicate expense id")
	ErrNotFound    = errors.New("expense not found")
)

// View is a read-only, ordered set of expenses.
type View interface {
	ByParticipant(userID string) iter.Seq[models.Expense]
}

// Ledger is safe for concurrent use. Every mutation is atomic for the whole
// record; readers get copies and never observe a half-written split set.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]models.Expense
	// cached ordered snapshot, rebuilt lazily after a mutation
	snap *Snapshot
}

func New() *Ledger {
	return &Ledger{records: make(map[string]models.Expense)}
}

func (l *Ledger) Insert(e models.Expense) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
	}
	l.records[e.ID] = e.Clone()
	l.snap = nil
	return nil
}

func (l *Ledger) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(l.records, id)
	l.snap = nil
	return nil
}

// Replace swaps the record stored under id for e in one step. The new record
// is stored under id even if e.ID differs.
func (l *Ledger) Replace(id string, e models.Expense) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e = e.Clone()
	e.ID = id
	l.records[id] = e
	l.snap = nil
	return nil
}

// Put inserts or replaces. Used when syncing from the persistent store.
func (l *Ledger) Put(e models.Expense) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[e.ID] = e.Clone()
	l.snap = nil
}

// Load replaces the whole content of the ledger.
func (l *Ledger) Load(records []models.Expense) {
	fresh := make(map[string]models.Expense, len(records))
	for _, e := range records {
		fresh[e.ID] = e.Clone()
	}
	l.mu.Lock()
	l.records = fresh
	l.snap = nil
	l.mu.Unlock()
}

func (l *Ledger) Get(id string) (models.Expense, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.records[id]
	if !ok {
		return models.Expense{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Snapshot returns an immutable, ordered copy of the ledger as it is now.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	if s := l.snap; s != nil {
		l.mu.RUnlock()
		return s
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap == nil {
		l.snap = newSnapshot(l.records)
	}
	return l.snap
}

// QueryByParticipant yields records paid for or shared by userID, newest
// first, from a snapshot taken when the call is made.
func (l *Ledger) QueryByParticipant(userID string) iter.Seq[models.Expense] {
	return l.Snapshot().ByParticipant(userID)
}

// QueryByDateRange yields records with start <= CreatedAt <= end, newest first.
func (l *Ledger) QueryByDateRange(start, end time.Time) iter.Seq[models.Expense] {
	return l.Snapshot().ByDateRange(start, end)
}

// ByParticipant lets a live Ledger be used as a View; every call reads a
// fresh snapshot.
func (l *Ledger) ByParticipant(userID string) iter.Seq[models.Expense] {
	return l.QueryByParticipant(userID)
}
