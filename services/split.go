package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tripsplit-backend/models"
	"tripsplit-backend/money"

	"github.com/shopspring/decimal"
)

type SplitMode string

const (
	SplitEqual  SplitMode = "equal"
	SplitCustom SplitMode = "custom"
)

// PayerRole states whether the payer is also a financial participant. There
// is no default: callers must say which one they mean.
type PayerRole string

const (
	PayerShares PayerRole = "shares" // payer is listed in Participants and owes a share
	PayerFronts PayerRole = "fronts" // payer only fronted the money
)

// SplitTolerance is the largest accepted gap between a custom split and the total.
var SplitTolerance = decimal.New(1, -2)

var (
	ErrEmptyParticipantSet  = errors.New("participant set is empty")
	ErrDuplicateParticipant = errors.New("participant listed twice")
	ErrPayerRoleUnset       = errors.New("payer role must be set")
	ErrPayerRole            = errors.New("payer role does not match participants")
	ErrMissingShare         = errors.New("missing share for participant")
	ErrUnknownParticipant   = errors.New("share given for a non-participant")
	ErrNegativeShare        = errors.New("share must not be negative")
	ErrInvalidMode          = errors.New("invalid split mode")
	ErrEmptyLabel           = errors.New("label can't be empty")
	ErrNonPositiveTotal     = errors.New("total must be positive")
	ErrMissingPayer         = errors.New("payer can't be empty")
)

// SplitMismatchError reports how far a custom split is from the total.
// Difference is total minus the sum of shares.
type SplitMismatchError struct {
	Difference money.Money
}

func (e *SplitMismatchError) Error() string {
	return fmt.Sprintf("split amounts don't add up to total (difference %s)", e.Difference.StringFixed())
}

type SplitRequest struct {
	Total        money.Money
	Payer        string
	PayerRole    PayerRole
	Participants []string
	Mode         SplitMode
	Custom       map[string]money.Money // custom mode only
}

// BuildSplits computes the per-participant shares. It has no side effects.
func BuildSplits(req SplitRequest) ([]models.SplitEntry, error) {
	if len(req.Participants) == 0 {
		return nil, ErrEmptyParticipantSet
	}
	if err := checkParticipants(req); err != nil {
		return nil, err
	}

	switch req.Mode {
	case SplitEqual:
		shares, err := req.Total.Divide(len(req.Participants))
		if err != nil {
			return nil, err
		}
		splits := make([]models.SplitEntry, len(shares))
		for i, p := range req.Participants {
			splits[i] = models.SplitEntry{Participant: p, Share: shares[i]}
		}
		return splits, nil

	case SplitCustom:
		return customSplits(req)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
}

func checkParticipants(req SplitRequest) error {
	seen := make(map[string]bool, len(req.Participants))
	for _, p := range req.Participants {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: blank participant id", ErrUnknownParticipant)
		}
		if seen[p] {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, p)
		}
		seen[p] = true
	}

	switch req.PayerRole {
	case PayerShares:
		if !seen[req.Payer] {
			return fmt.Errorf("%w: payer %s shares the cost but is not a participant", ErrPayerRole, req.Payer)
		}
	case PayerFronts:
		if seen[req.Payer] {
			return fmt.Errorf("%w: payer %s only fronts the cost but is listed as a participant", ErrPayerRole, req.Payer)
		}
	default:
		return ErrPayerRoleUnset
	}
	return nil
}

func customSplits(req SplitRequest) ([]models.SplitEntry, error) {
	for p := range req.Custom {
		if !contains(req.Participants, p) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, p)
		}
	}

	splits := make([]models.SplitEntry, 0, len(req.Participants))
	sum := money.Zero(req.Total.Currency)
	for _, p := range req.Participants {
		share, ok := req.Custom[p]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingShare, p)
		}
		if share.Sign() < 0 {
			return nil, fmt.Errorf("%w: %s has %s", ErrNegativeShare, p, share)
		}
		var err error
		if sum, err = sum.Add(share); err != nil {
			return nil, err
		}
		splits = append(splits, models.SplitEntry{Participant: p, Share: share})
	}

	diff, err := req.Total.Sub(sum)
	if err != nil {
		return nil, err
	}
	if diff.Amount.Abs().GreaterThan(SplitTolerance) {
		return nil, &SplitMismatchError{Difference: diff}
	}
	return splits, nil
}

// NewExpense validates the record fields and builds its split set.
func NewExpense(id, label string, req SplitRequest, createdAt time.Time) (models.Expense, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return models.Expense{}, ErrEmptyLabel
	}
	if req.Payer == "" {
		return models.Expense{}, ErrMissingPayer
	}
	if req.Total.Sign() <= 0 {
		return models.Expense{}, ErrNonPositiveTotal
	}
	if !req.Total.Currency.Valid() {
		return models.Expense{}, fmt.Errorf("%w: %q", money.ErrUnsupportedCurrency, req.Total.Currency)
	}

	splits, err := BuildSplits(req)
	if err != nil {
		return models.Expense{}, err
	}

	return models.Expense{
		ID:        id,
		Label:     label,
		Total:     req.Total,
		Payer:     req.Payer,
		Splits:    splits,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
