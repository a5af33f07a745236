package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"tripsplit-backend/ledger"
	"tripsplit-backend/models"
	"tripsplit-backend/money"
)

var t0 = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func testConverter(t *testing.T) *money.Converter {
	t.Helper()
	rates, _ := money.ParseRates("USD/TWD=32")
	c, err := money.NewConverter(rates)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func equalExpense(t *testing.T, id string, at time.Time, total money.Money, payer string, participants ...string) models.Expense {
	t.Helper()
	role := PayerFronts
	if contains(participants, payer) {
		role = PayerShares
	}
	e, err := NewExpense(id, "item "+id, SplitRequest{
		Total:        total,
		Payer:        payer,
		PayerRole:    role,
		Participants: participants,
		Mode:         SplitEqual,
	}, at)
	if err != nil {
		t.Fatalf("NewExpense(%s) error = %v", id, err)
	}
	return e
}

func ledgerOf(t *testing.T, records ...models.Expense) *ledger.Ledger {
	t.Helper()
	l := ledger.New()
	for _, e := range records {
		if err := l.Insert(e); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

func TestSettlementNetsAcrossRecords(t *testing.T) {
	l := ledgerOf(t,
		equalExpense(t, "e1", t0, usd("30.00"), "A", "A", "B"),
		equalExpense(t, "e2", t0.Add(time.Hour), usd("10.00"), "B", "A", "B"),
	)

	report, err := NewCalculator(testConverter(t)).Calculate(l.Snapshot(), "A", money.USD)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("entries = %+v", report.Entries)
	}
	entry := report.Entries[0]
	if entry.Counterparty != "B" || !entry.NetBalance.Equal(usd("10.00")) {
		t.Errorf("entry = %s %s, want B +10.00", entry.Counterparty, entry.NetBalance)
	}
	if len(entry.Items) != 2 {
		t.Fatalf("items = %+v", entry.Items)
	}
	// newest first
	if entry.Items[0].ExpenseID != "e2" || entry.Items[0].Direction != models.IOwe || !entry.Items[0].Amount.Equal(usd("5.00")) {
		t.Errorf("items[0] = %+v", entry.Items[0])
	}
	if entry.Items[1].ExpenseID != "e1" || entry.Items[1].Direction != models.OwedToMe || !entry.Items[1].Amount.Equal(usd("15.00")) {
		t.Errorf("items[1] = %+v", entry.Items[1])
	}

	// and the mirror image from B's side
	mirror, _ := NewCalculator(testConverter(t)).Calculate(l.Snapshot(), "B", money.USD)
	if len(mirror.Entries) != 1 || !mirror.Entries[0].NetBalance.Equal(usd("-10.00")) {
		t.Errorf("B's report = %+v", mirror.Entries)
	}
}

func TestSettlementExcludesZeroBalances(t *testing.T) {
	l := ledgerOf(t,
		equalExpense(t, "e1", t0, usd("20.00"), "A", "A", "B"),
		equalExpense(t, "e2", t0.Add(time.Hour), usd("20.00"), "B", "A", "B"),
	)
	report, err := NewCalculator(testConverter(t)).Calculate(l, "A", money.USD)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Entries) != 0 {
		t.Errorf("entries = %+v, want none", report.Entries)
	}
	if !report.Net.IsZero() {
		t.Errorf("Net = %s", report.Net)
	}
}

func TestSettlementSoloExpenseHasNoEffect(t *testing.T) {
	l := ledgerOf(t, equalExpense(t, "solo", t0, usd("12.00"), "A", "A"))
	report, err := NewCalculator(testConverter(t)).Calculate(l, "A", money.TWD)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Entries) != 0 {
		t.Errorf("entries = %+v", report.Entries)
	}
}

func TestSettlementConvertsAtAggregation(t *testing.T) {
	l := ledgerOf(t,
		equalExpense(t, "usd", t0, usd("10.00"), "A", "A", "B"),
		equalExpense(t, "twd", t0.Add(time.Hour), money.MustParse("320", money.TWD), "B", "A", "B"),
	)

	report, err := NewCalculator(testConverter(t)).Calculate(l, "A", money.TWD)
	if err != nil {
		t.Fatal(err)
	}
	// B owes NT$160 for "usd" and A owes NT$160 for "twd"
	if len(report.Entries) != 0 {
		t.Fatalf("entries = %+v", report.Entries)
	}

	stored, _ := l.Get("usd")
	if stored.Total.Currency != money.USD || !stored.Splits[1].Share.Equal(usd("5.00")) {
		t.Errorf("ledger record was modified: %+v", stored)
	}

	report, _ = NewCalculator(testConverter(t)).Calculate(l, "B", money.USD)
	if len(report.Entries) != 0 {
		t.Errorf("USD view entries = %+v", report.Entries)
	}
}

func TestSettlementOrderingAndTotals(t *testing.T) {
	l := ledgerOf(t,
		equalExpense(t, "e1", t0, usd("9.00"), "A", "A", "B", "C"),       // B +3, C +3
		equalExpense(t, "e2", t0.Add(time.Hour), usd("40.00"), "D", "A"), // D -40
		equalExpense(t, "e3", t0.Add(2*time.Hour), usd("12.00"), "A", "E"),
	)

	report, err := NewCalculator(testConverter(t)).Calculate(l, "A", money.USD)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, e := range report.Entries {
		order = append(order, e.Counterparty+" "+e.NetBalance.StringFixed())
	}
	want := []string{"D -40.00", "E 12.00", "B 3.00", "C 3.00"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if !report.TotalOwedToMe.Equal(usd("18.00")) || !report.TotalIOwe.Equal(usd("40.00")) || !report.Net.Equal(usd("-22.00")) {
		t.Errorf("totals = owed %s, owing %s, net %s", report.TotalOwedToMe, report.TotalIOwe, report.Net)
	}
}

func TestSettlementIsIdempotent(t *testing.T) {
	l := ledgerOf(t,
		equalExpense(t, "e1", t0, usd("10.00"), "A", "A", "B", "C"),
		equalExpense(t, "e2", t0, usd("7.00"), "C", "A", "C"),
		equalExpense(t, "e3", t0.Add(time.Minute), money.MustParse("100", money.TWD), "B", "A", "B"),
	)
	calc := NewCalculator(testConverter(t))

	first, err := calc.Calculate(l, "A", money.TWD)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := calc.Calculate(l, "A", money.TWD)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ:\n%+v\n%+v", first, second)
	}
}

func TestSettlementUnsupportedCurrency(t *testing.T) {
	l := ledgerOf(t, equalExpense(t, "e1", t0, money.MustParse("10", money.EUR), "A", "A", "B"))
	_, err := NewCalculator(testConverter(t)).Calculate(l, "A", money.TWD)
	if !errors.Is(err, money.ErrUnsupportedCurrency) {
		t.Errorf("error = %v, want ErrUnsupportedCurrency", err)
	}
}

type failingDirectory struct{}

func (failingDirectory) Lookup(context.Context, string) (models.Profile, error) {
	return models.Profile{}, errors.New("directory offline")
}

func TestSettlementServiceNames(t *testing.T) {
	l := ledgerOf(t,
		equalExpense(t, "e1", t0, usd("30.00"), "A", "A", "B", "C"),
	)
	dir := NewStaticDirectory(models.Profile{ID: "B", DisplayName: "Bob", AvatarRef: "https://img/b.png"})
	svc := NewSettlementService(l, NewCalculator(testConverter(t)), dir, money.TWD)

	report, err := svc.Report(context.Background(), "A", "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Currency != money.TWD || len(report.Entries) != 2 {
		t.Fatalf("report = %+v", report)
	}
	names := map[string]string{}
	for _, e := range report.Entries {
		names[e.Counterparty] = e.DisplayName
	}
	if names["B"] != "Bob" || names["C"] != "C" {
		t.Errorf("names = %v", names)
	}

	svc = NewSettlementService(l, NewCalculator(testConverter(t)), failingDirectory{}, money.USD)
	report, err = svc.Report(context.Background(), "A", money.USD)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range report.Entries {
		if e.DisplayName != e.Counterparty {
			t.Errorf("DisplayName = %q, want id fallback", e.DisplayName)
		}
	}
}
