package models

import (
	"time"

	"tripsplit-backend/money"
)

type Direction string

const (
	OwedToMe Direction = "OWED_TO_ME"
	IOwe     Direction = "I_OWE"
)

// ContributingItem is one expense's effect on a counterparty balance.
type ContributingItem struct {
	ExpenseID string      `json:"expense_id"`
	Label     string      `json:"label"`
	Amount    money.Money `json:"amount"`   // settlement currency, always positive
	Original  money.Money `json:"original"` // the split share as recorded
	Direction Direction   `json:"direction"`
	CreatedAt time.Time   `json:"created_at"`
}

// SettlementEntry is the net position between the viewer and one counterparty.
// Positive NetBalance: the counterparty owes the viewer.
type SettlementEntry struct {
	Counterparty string             `json:"counterparty"`
	DisplayName  string             `json:"display_name"`
	AvatarRef    string             `json:"avatar_ref,omitempty"`
	NetBalance   money.Money        `json:"net_balance"`
	Items        []ContributingItem `json:"items"`
}

// SettlementReport is derived from the ledger on demand and never stored.
type SettlementReport struct {
	Viewer        string            `json:"viewer"`
	Currency      money.Currency    `json:"currency"`
	Entries       []SettlementEntry `json:"entries"`
	TotalOwedToMe money.Money       `json:"total_owed_to_me"`
	TotalIOwe     money.Money       `json:"total_i_owe"`
	Net           money.Money       `json:"net"`
}
