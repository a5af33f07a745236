package models

import (
	"time"

	"tripsplit-backend/money"
)

// Expense is one shared cost. It is only ever replaced as a whole, so the
// split set always reconciles with Total.
type Expense struct {
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	Total     money.Money  `json:"total"`
	Payer     string       `json:"payer"`
	Splits    []SplitEntry `json:"splits"`
	CreatedAt time.Time    `json:"created_at"`
}

// SplitEntry is what one participant owes for an expense.
type SplitEntry struct {
	Participant string      `json:"participant"`
	Share       money.Money `json:"share"`
}

// Involves reports whether userID paid for or shares the expense.
func (e Expense) Involves(userID string) bool {
	if e.Payer == userID {
		return true
	}
	_, ok := e.ShareOf(userID)
	return ok
}

// ShareOf returns the participant's split entry, if any.
func (e Expense) ShareOf(userID string) (money.Money, bool) {
	for _, s := range e.Splits {
		if s.Participant == userID {
			return s.Share, true
		}
	}
	return money.Money{}, false
}

// Participants lists split participants in split order.
func (e Expense) Participants() []string {
	ids := make([]string, len(e.Splits))
	for i, s := range e.Splits {
		ids[i] = s.Participant
	}
	return ids
}

// Clone returns a copy that shares no memory with e.
func (e Expense) Clone() Expense {
	c := e
	c.Splits = append([]SplitEntry(nil), e.Splits...)
	return c
}

// Request structs
type ExpenseRequest struct {
	Label        string            `json:"label" binding:"required"`
	Amount       string            `json:"amount" binding:"required"`
	Currency     string            `json:"currency" binding:"required"`
	Payer        string            `json:"payer"`                                          // defaults to the caller
	PayerRole    string            `json:"payer_role" binding:"required,oneof=shares fronts"` // shares: payer owes a share too
	Participants []string          `json:"participants"`
	Mode         string            `json:"mode" binding:"required,oneof=equal custom"`
	Custom       map[string]string `json:"custom"`     // participant -> amount, custom mode only
	CreatedAt    *time.Time        `json:"created_at"` // defaults to now
}

type ListExpensesQuery struct {
	From     string `form:"from"` // YYYY-MM-DD, inclusive
	To       string `form:"to"`   // YYYY-MM-DD, inclusive
	Currency string `form:"currency"`
}

// Response
type ExpenseResponse struct {
	Expense
	PayerName string          `json:"payer_name"`
	Splits    []SplitResponse `json:"splits"`
	Display   *money.Money    `json:"display,omitempty"` // Total in the requested display currency
}

type SplitResponse struct {
	Participant string      `json:"participant"`
	Name        string      `json:"name"`
	Share       money.Money `json:"share"`
	IsPayer     bool        `json:"is_payer"`
}

type ExpenseListResponse struct {
	Expenses     []ExpenseResponse `json:"expenses"`
	DisplayTotal *money.Money      `json:"display_total,omitempty"`
	Total        int               `json:"total"`
}
