package ledger

import (
	"iter"
	"sort"
	"time"

	"tripsplit-backend/models"
)

// Snapshot is a frozen, ordered copy of a ledger: CreatedAt descending,
// then id ascending.
type Snapshot struct {
	records []models.Expense
}

func newSnapshot(records map[string]models.Expense) *Snapshot {
	out := make([]models.Expense, 0, len(records))
	for _, e := range records {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return &Snapshot{records: out}
}

func (s *Snapshot) Len() int {
	return len(s.records)
}

// All yields every record in order. Yielded values are copies.
func (s *Snapshot) All() iter.Seq[models.Expense] {
	return s.filter(func(models.Expense) bool { return true })
}

func (s *Snapshot) ByParticipant(userID string) iter.Seq[models.Expense] {
	return s.filter(func(e models.Expense) bool { return e.Involves(userID) })
}

func (s *Snapshot) ByDateRange(start, end time.Time) iter.Seq[models.Expense] {
	return s.filter(func(e models.Expense) bool {
		return !e.CreatedAt.Before(start) && !e.CreatedAt.After(end)
	})
}

func (s *Snapshot) filter(keep func(models.Expense) bool) iter.Seq[models.Expense] {
	return func(yield func(models.Expense) bool) {
		for _, e := range s.records {
			if !keep(e) {
				continue
			}
			if !yield(e.Clone()) {
				return
			}
		}
	}
}
