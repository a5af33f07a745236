package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"tripsplit-backend/ledger"
	"tripsplit-backend/models"
	"tripsplit-backend/money"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]models.Expense
	failOn  string
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]models.Expense)}
}

func (m *memStore) Get(_ context.Context, id string) (models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[id]
	if !ok {
		return models.Expense{}, ledger.ErrNotFound
	}
	return e.Clone(), nil
}

func (m *memStore) Create(_ context.Context, e models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "create" {
		return errors.New("store unavailable")
	}
	if _, ok := m.records[e.ID]; ok {
		return ledger.ErrDuplicateID
	}
	m.records[e.ID] = e.Clone()
	return nil
}

func (m *memStore) Replace(_ context.Context, e models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "replace" {
		return errors.New("store unavailable")
	}
	if _, ok := m.records[e.ID]; !ok {
		return ledger.ErrNotFound
	}
	m.records[e.ID] = e.Clone()
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memStore) List(context.Context) ([]models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Expense
	for _, e := range m.records {
		out = append(out, e.Clone())
	}
	return out, nil
}

func newTestService(t *testing.T, store Store) (*ExpenseService, *ledger.Ledger) {
	l := ledger.New()
	svc := NewExpenseService(store, l, testConverter(t), money.TWD, nil)
	n := 0
	svc.newID = func() string { n++; return fmt.Sprintf("exp-%d", n) }
	svc.now = func() time.Time { return t0 }
	return svc, l
}

func dinner(payer string, participants ...string) ExpenseInput {
	return ExpenseInput{
		Label: "Dinner",
		Split: SplitRequest{
			Total:        usd("30.00"),
			Payer:        payer,
			PayerRole:    PayerShares,
			Participants: participants,
			Mode:         SplitEqual,
		},
	}
}

func TestExpenseServiceCreate(t *testing.T) {
	store := newMemStore()
	svc, l := newTestService(t, store)
	ctx := context.Background()

	e, err := svc.Create(ctx, "A", dinner("A", "A", "B"))
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != "exp-1" || !e.CreatedAt.Equal(t0) {
		t.Errorf("Create() = %+v", e)
	}
	if _, err := store.Get(ctx, "exp-1"); err != nil {
		t.Errorf("not persisted: %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("ledger Len() = %d", l.Len())
	}

	if _, err := svc.Create(ctx, "Z", dinner("A", "A", "B")); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider create error = %v", err)
	}
}

func TestExpenseServiceStoreFailureIsSurfaced(t *testing.T) {
	store := newMemStore()
	store.failOn = "create"
	svc, l := newTestService(t, store)

	if _, err := svc.Create(context.Background(), "A", dinner("A", "A", "B")); err == nil {
		t.Fatal("Create() succeeded with a failing store")
	}
	if l.Len() != 0 {
		t.Error("ledger updated although the store write failed")
	}
}

func TestExpenseServiceReplace(t *testing.T) {
	store := newMemStore()
	svc, l := newTestService(t, store)
	ctx := context.Background()

	e, _ := svc.Create(ctx, "A", dinner("A", "A", "B"))

	in := dinner("B", "A", "B", "C")
	in.Label = "Dinner + drinks"
	in.Split.Total = usd("45.00")
	got, err := svc.Replace(ctx, "B", e.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID || !got.CreatedAt.Equal(e.CreatedAt) || got.Payer != "B" || len(got.Splits) != 3 {
		t.Errorf("Replace() = %+v", got)
	}
	stored, _ := store.Get(ctx, e.ID)
	if stored.Label != "Dinner + drinks" {
		t.Errorf("store not updated: %+v", stored)
	}
	inLedger, _ := l.Get(e.ID)
	if !inLedger.Total.Equal(usd("45.00")) {
		t.Errorf("ledger not updated: %+v", inLedger)
	}

	if _, err := svc.Replace(ctx, "A", "missing", in); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Replace(missing) error = %v", err)
	}
	if _, err := svc.Replace(ctx, "Z", e.ID, in); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider replace error = %v", err)
	}

	bad := in
	bad.Split.Mode = SplitCustom
	bad.Split.Custom = map[string]money.Money{"A": usd("1.00"), "B": usd("1.00"), "C": usd("1.00")}
	var mismatch *SplitMismatchError
	if _, err := svc.Replace(ctx, "A", e.ID, bad); !errors.As(err, &mismatch) {
		t.Errorf("bad split error = %v", err)
	}
	unchanged, _ := l.Get(e.ID)
	if !unchanged.Total.Equal(usd("45.00")) {
		t.Error("failed replace modified the ledger")
	}

	store.failOn = "replace"
	if _, err := svc.Replace(ctx, "A", e.ID, dinner("A", "A", "B")); err == nil {
		t.Error("Replace() succeeded with a failing store")
	}
	unchanged, _ = l.Get(e.ID)
	if unchanged.Payer != "B" {
		t.Error("ledger changed although the store write failed")
	}
}

func TestExpenseServiceDelete(t *testing.T) {
	store := newMemStore()
	svc, l := newTestService(t, store)
	ctx := context.Background()

	e, _ := svc.Create(ctx, "A", dinner("A", "A", "B"))
	if err := svc.Delete(ctx, "Z", e.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider delete error = %v", err)
	}
	if err := svc.Delete(ctx, "B", e.ID); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 0 {
		t.Error("ledger still holds deleted expense")
	}
	if _, err := store.Get(ctx, e.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Error("store still holds deleted expense")
	}
	if err := svc.Delete(ctx, "B", e.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestExpenseServiceListAndHydrate(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	for i, at := range []time.Time{t0, t0.Add(24 * time.Hour), t0.Add(48 * time.Hour)} {
		e, _ := NewExpense(fmt.Sprintf("e%d", i), "Taxi", dinner("A", "A", "B").Split, at)
		_ = store.Create(ctx, e)
	}
	other, _ := NewExpense("other", "Museum", dinner("C", "C", "D").Split, t0)
	_ = store.Create(ctx, other)

	svc, l := newTestService(t, store)
	if err := svc.Hydrate(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 4 {
		t.Fatalf("hydrated %d records", l.Len())
	}

	var all []string
	for e := range svc.ListForParticipant("B", nil, nil) {
		all = append(all, e.ID)
	}
	if fmt.Sprint(all) != "[e2 e1 e0]" {
		t.Errorf("ListForParticipant(B) = %v", all)
	}

	from, to := t0.Add(time.Hour), t0.Add(48*time.Hour)
	var ranged []string
	for e := range svc.ListForParticipant("B", &from, &to) {
		ranged = append(ranged, e.ID)
	}
	if fmt.Sprint(ranged) != "[e2 e1]" {
		t.Errorf("ranged list = %v", ranged)
	}
}

func TestExpenseServiceApply(t *testing.T) {
	svc, l := newTestService(t, nil)
	e, _ := NewExpense("remote", "Hotel", dinner("A", "A", "B").Split, t0)

	svc.Apply(Change{ID: e.ID, Expense: &e})
	if _, err := l.Get("remote"); err != nil {
		t.Fatalf("Apply(put) not visible: %v", err)
	}
	svc.Apply(Change{ID: e.ID})
	if l.Len() != 0 {
		t.Error("Apply(delete) left the record")
	}
	svc.Apply(Change{ID: e.ID}) // unknown delete is ignored
}

func TestKeyedMutexSerializesPerID(t *testing.T) {
	k := newKeyedMutex()
	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("same")
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("%d holders at once", maxActive)
	}
	if len(k.locks) != 0 {
		t.Errorf("%d locks leaked", len(k.locks))
	}
}

func TestExpenseServiceRejectsUnsettleableCurrency(t *testing.T) {
	store := newMemStore()
	svc, l := newTestService(t, store)
	ctx := context.Background()

	yen := dinner("A", "A", "B")
	yen.Split.Total = money.MustParse("1000", money.JPY)
	if _, err := svc.Create(ctx, "A", yen); !errors.Is(err, money.ErrUnsupportedCurrency) {
		t.Fatalf("Create(JPY) error = %v", err)
	}
	if l.Len() != 0 || len(store.records) != 0 {
		t.Fatal("unsettleable expense was stored")
	}

	e, err := svc.Create(ctx, "A", dinner("A", "A", "B"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Replace(ctx, "A", e.ID, yen); !errors.Is(err, money.ErrUnsupportedCurrency) {
		t.Errorf("Replace(JPY) error = %v", err)
	}
	kept, _ := l.Get(e.ID)
	if kept.Total.Currency != money.USD {
		t.Errorf("ledger holds %s after rejected replace", kept.Total)
	}

	twd := dinner("A", "A", "B")
	twd.Split.Total = money.MustParse("960", money.TWD)
	if _, err := svc.Create(ctx, "A", twd); err != nil {
		t.Errorf("Create(TWD) error = %v", err)
	}
}

func TestExpenseServiceGetLogsUnknown(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	svc, _ := newTestService(t, nil)
	if _, err := svc.Get("A", "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if !strings.Contains(buf.String(), "expense_id=missing") {
		t.Errorf("log = %q", buf.String())
	}
}

// slowListStore reads its records, then holds List until released.
type slowListStore struct {
	*memStore
	listing chan struct{}
	release chan struct{}
}

func (s *slowListStore) List(ctx context.Context) ([]models.Expense, error) {
	out, err := s.memStore.List(ctx)
	close(s.listing)
	<-s.release
	return out, err
}

func TestHydrateDoesNotLoseConcurrentWrites(t *testing.T) {
	store := &slowListStore{memStore: newMemStore(), listing: make(chan struct{}), release: make(chan struct{})}
	svc, l := newTestService(t, store)
	ctx := context.Background()

	hydrated := make(chan error, 1)
	go func() { hydrated <- svc.Hydrate(ctx) }()
	<-store.listing

	created := make(chan error, 1)
	go func() {
		_, err := svc.Create(ctx, "A", dinner("A", "A", "B"))
		created <- err
	}()

	select {
	case <-created:
		t.Fatal("Create() finished while a reload was in progress")
	case <-time.After(20 * time.Millisecond):
	}
	close(store.release)

	if err := <-hydrated; err != nil {
		t.Fatal(err)
	}
	if err := <-created; err != nil {
		t.Fatal(err)
	}
	if _, err := l.Get("exp-1"); err != nil {
		t.Errorf("write during reload was lost: %v", err)
	}
}
