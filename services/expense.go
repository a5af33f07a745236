package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"tripsplit-backend/ledger"
	"tripsplit-backend/models"
	"tripsplit-backend/money"

	"github.com/google/uuid"
)

var ErrForbidden = errors.New("not a participant of this expense")

var endOfTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// ExpenseInput is everything needed to build (or rebuild) an expense.
type ExpenseInput struct {
	Label     string
	Split     SplitRequest
	CreatedAt time.Time // zero: now on create, unchanged on replace
}

// ExpenseService applies expense edits to the store and the ledger. Edits to
// one id are serialized, and every edit replaces the whole record. A full
// reload (Hydrate) excludes all edits while it runs.
type ExpenseService struct {
	store    Store // nil: ledger only
	ledger   *ledger.Ledger
	notifier *Notifier // optional
	locks    *keyedMutex
	reload   sync.RWMutex

	// totals must be convertible to settlement; nil conv skips the check
	conv       *money.Converter
	settlement money.Currency

	now   func() time.Time
	newID func() string
}

func NewExpenseService(store Store, l *ledger.Ledger, conv *money.Converter, settlement money.Currency, notifier *Notifier) *ExpenseService {
	return &ExpenseService{
		store:      store,
		ledger:     l,
		notifier:   notifier,
		locks:      newKeyedMutex(),
		conv:       conv,
		settlement: settlement,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// lock serializes work on id and keeps a reload from interleaving with it.
func (s *ExpenseService) lock(id string) func() {
	s.reload.RLock()
	unlock := s.locks.Lock(id)
	return func() {
		unlock()
		s.reload.RUnlock()
	}
}

func (s *ExpenseService) checkSettleable(total money.Money) error {
	if s.conv == nil || s.conv.Supports(total.Currency, s.settlement) {
		return nil
	}
	return fmt.Errorf("%w: no rate from %s to settlement currency %s", money.ErrUnsupportedCurrency, total.Currency, s.settlement)
}

// Hydrate loads every stored expense into the ledger.
func (s *ExpenseService) Hydrate(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.reload.Lock()
	defer s.reload.Unlock()

	records, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading expenses: %w", err)
	}
	s.ledger.Load(records)
	slog.Info("ledger hydrated", "expenses", len(records))
	return nil
}

func (s *ExpenseService) Create(ctx context.Context, actor string, in ExpenseInput) (models.Expense, error) {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	e, err := NewExpense(s.newID(), in.Label, in.Split, createdAt)
	if err != nil {
		return models.Expense{}, err
	}
	if !e.Involves(actor) {
		return models.Expense{}, ErrForbidden
	}
	if err := s.checkSettleable(e.Total); err != nil {
		slog.Warn("rejected expense in unsettleable currency", "actor", actor, "currency", e.Total.Currency, "error", err)
		return models.Expense{}, err
	}

	unlock := s.lock(e.ID)
	defer unlock()

	if s.store != nil {
		if err := s.store.Create(ctx, e); err != nil {
			slog.Error("failed to store expense", "expense_id", e.ID, "error", err)
			return models.Expense{}, fmt.Errorf("storing expense: %w", err)
		}
	}
	if err := s.ledger.Insert(e); err != nil {
		slog.Error("ledger out of sync on insert", "expense_id", e.ID, "error", err)
		return models.Expense{}, err
	}

	s.notify(EventExpenseAdded, actor, e)
	return e, nil
}

// Replace rebuilds expense id from in. The previous record stays visible
// until the new one is complete.
func (s *ExpenseService) Replace(ctx context.Context, actor, id string, in ExpenseInput) (models.Expense, error) {
	unlock := s.lock(id)
	defer unlock()

	current, err := s.ledger.Get(id)
	if err != nil {
		slog.Warn("replace of unknown expense", "expense_id", id, "actor", actor)
		return models.Expense{}, err
	}
	if !current.Involves(actor) {
		return models.Expense{}, ErrForbidden
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = current.CreatedAt
	}
	e, err := NewExpense(id, in.Label, in.Split, createdAt)
	if err != nil {
		return models.Expense{}, err
	}
	if err := s.checkSettleable(e.Total); err != nil {
		slog.Warn("rejected expense in unsettleable currency", "expense_id", id, "actor", actor, "currency", e.Total.Currency, "error", err)
		return models.Expense{}, err
	}

	if s.store != nil {
		if err := s.store.Replace(ctx, e); err != nil {
			slog.Error("failed to replace stored expense", "expense_id", id, "error", err)
			return models.Expense{}, fmt.Errorf("replacing expense: %w", err)
		}
	}
	if err := s.ledger.Replace(id, e); err != nil {
		slog.Error("ledger out of sync on replace", "expense_id", id, "error", err)
		return models.Expense{}, err
	}

	s.notify(EventExpenseUpdated, actor, e)
	return e, nil
}

func (s *ExpenseService) Delete(ctx context.Context, actor, id string) error {
	unlock := s.lock(id)
	defer unlock()

	current, err := s.ledger.Get(id)
	if err != nil {
		slog.Warn("delete of unknown expense", "expense_id", id, "actor", actor)
		return err
	}
	if !current.Involves(actor) {
		return ErrForbidden
	}

	if s.store != nil {
		err := s.store.Delete(ctx, id)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			slog.Warn("expense already gone from store", "expense_id", id)
		case err != nil:
			slog.Error("failed to delete stored expense", "expense_id", id, "error", err)
			return fmt.Errorf("deleting expense: %w", err)
		}
	}
	if err := s.ledger.Remove(id); err != nil {
		slog.Error("ledger out of sync on delete", "expense_id", id, "error", err)
		return err
	}
	return nil
}

func (s *ExpenseService) Get(actor, id string) (models.Expense, error) {
	e, err := s.ledger.Get(id)
	if err != nil {
		slog.Warn("get of unknown expense", "expense_id", id, "actor", actor)
		return models.Expense{}, err
	}
	if !e.Involves(actor) {
		return models.Expense{}, ErrForbidden
	}
	return e, nil
}

// ListForParticipant yields the actor's expenses, newest first, optionally
// limited to an inclusive time range.
func (s *ExpenseService) ListForParticipant(actor string, from, to *time.Time) iter.Seq[models.Expense] {
	if from == nil && to == nil {
		return s.ledger.QueryByParticipant(actor)
	}
	start, end := time.Time{}, endOfTime
	if from != nil {
		start = *from
	}
	if to != nil {
		end = *to
	}
	inRange := s.ledger.QueryByDateRange(start, end)
	return func(yield func(models.Expense) bool) {
		for e := range inRange {
			if e.Involves(actor) && !yield(e) {
				return
			}
		}
	}
}

// Apply mirrors a store change into the ledger.
func (s *ExpenseService) Apply(c Change) {
	unlock := s.lock(c.ID)
	defer unlock()

	if c.Expense == nil {
		if err := s.ledger.Remove(c.ID); err != nil {
			slog.Debug("change feed delete for unknown expense", "expense_id", c.ID)
		}
		return
	}
	s.ledger.Put(*c.Expense)
}

func (s *ExpenseService) notify(kind EventKind, actor string, e models.Expense) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(Event{Kind: kind, Actor: actor, Expense: e})
}
