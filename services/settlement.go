package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"tripsplit-backend/ledger"
	"tripsplit-backend/models"
	"tripsplit-backend/money"
)

// Calculator nets, per counterparty, what the viewer is owed or owes across
// the ledger. It is pure: the same view always yields the same report.
type Calculator struct {
	conv *money.Converter
}

func NewCalculator(conv *money.Converter) *Calculator {
	return &Calculator{conv: conv}
}

type runningBalance struct {
	net   money.Money
	items []models.ContributingItem
}

// Calculate builds the report for viewer in the settlement currency cur.
// Shares are converted per item, at aggregation time.
func (c *Calculator) Calculate(view ledger.View, viewer string, cur money.Currency) (models.SettlementReport, error) {
	balances := make(map[string]*runningBalance)
	add := func(counterparty string, delta money.Money, item models.ContributingItem) error {
		b, ok := balances[counterparty]
		if !ok {
			b = &runningBalance{net: money.Zero(cur)}
			balances[counterparty] = b
		}
		net, err := b.net.Add(delta)
		if err != nil {
			return err
		}
		b.net = net
		b.items = append(b.items, item)
		return nil
	}

	for e := range view.ByParticipant(viewer) {
		if e.Payer == viewer {
			// others owe the viewer their shares
			for _, s := range e.Splits {
				if s.Participant == viewer || s.Share.IsZero() {
					continue
				}
				amount, err := c.conv.Convert(s.Share, cur)
				if err != nil {
					return models.SettlementReport{}, err
				}
				if err := add(s.Participant, amount, item(e, s.Share, amount, models.OwedToMe)); err != nil {
					return models.SettlementReport{}, err
				}
			}
			continue
		}

		share, ok := e.ShareOf(viewer)
		if !ok || share.IsZero() {
			continue
		}
		amount, err := c.conv.Convert(share, cur)
		if err != nil {
			return models.SettlementReport{}, err
		}
		if err := add(e.Payer, amount.Neg(), item(e, share, amount, models.IOwe)); err != nil {
			return models.SettlementReport{}, err
		}
	}

	report := models.SettlementReport{
		Viewer:        viewer,
		Currency:      cur,
		Entries:       []models.SettlementEntry{},
		TotalOwedToMe: money.Zero(cur),
		TotalIOwe:     money.Zero(cur),
		Net:           money.Zero(cur),
	}
	for counterparty, b := range balances {
		if b.net.IsZero() {
			continue
		}
		report.Entries = append(report.Entries, models.SettlementEntry{
			Counterparty: counterparty,
			DisplayName:  counterparty,
			NetBalance:   b.net,
			Items:        b.items,
		})
		// all values are in cur, so these cannot fail
		if b.net.Sign() > 0 {
			report.TotalOwedToMe, _ = report.TotalOwedToMe.Add(b.net)
		} else {
			report.TotalIOwe, _ = report.TotalIOwe.Add(b.net.Abs())
		}
		report.Net, _ = report.Net.Add(b.net)
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if cmp := a.NetBalance.Amount.Abs().Cmp(b.NetBalance.Amount.Abs()); cmp != 0 {
			return cmp > 0
		}
		return a.Counterparty < b.Counterparty
	})
	return report, nil
}

func item(e models.Expense, original, converted money.Money, dir models.Direction) models.ContributingItem {
	return models.ContributingItem{
		ExpenseID: e.ID,
		Label:     e.Label,
		Amount:    converted,
		Original:  original,
		Direction: dir,
		CreatedAt: e.CreatedAt,
	}
}

// SettlementService produces reports from the live ledger and labels
// counterparties through the user directory.
type SettlementService struct {
	ledger    *ledger.Ledger
	calc      *Calculator
	directory Directory
	currency  money.Currency
}

func NewSettlementService(l *ledger.Ledger, calc *Calculator, dir Directory, defaultCurrency money.Currency) *SettlementService {
	return &SettlementService{ledger: l, calc: calc, directory: dir, currency: defaultCurrency}
}

// DefaultCurrency is used when the caller does not pick one.
func (s *SettlementService) DefaultCurrency() money.Currency {
	return s.currency
}

// Report computes the viewer's settlement over one consistent snapshot.
func (s *SettlementService) Report(ctx context.Context, viewer string, cur money.Currency) (models.SettlementReport, error) {
	if cur == "" {
		cur = s.currency
	}
	report, err := s.calc.Calculate(s.ledger.Snapshot(), viewer, cur)
	if err != nil {
		slog.Warn("settlement failed", "viewer", viewer, "currency", cur, "error", err)
		return models.SettlementReport{}, err
	}

	for i := range report.Entries {
		entry := &report.Entries[i]
		profile := s.lookup(ctx, entry.Counterparty)
		entry.DisplayName = profile.Name()
		entry.AvatarRef = profile.AvatarRef
	}
	return report, nil
}

// lookup never fails: a missing or unreachable profile degrades to the id.
func (s *SettlementService) lookup(ctx context.Context, id string) models.Profile {
	if s.directory == nil {
		return models.Profile{ID: id}
	}
	p, err := s.directory.Lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			slog.Warn("user directory lookup failed", "user_id", id, "error", err)
		}
		return models.Profile{ID: id}
	}
	if p.ID == "" {
		p.ID = id
	}
	return p
}
