package models

import (
	"time"
)

// Wallet is the per-user balance document. All wallets are denominated in the
// process-wide base currency; a wallet springs into existence on first credit.
type Wallet struct {
	UID       string    `json:"uid"`
	Balance   int64     `json:"balance"` // micros
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry is an immutable record of a single balance-affecting event.
// Amount is signed micros; a wallet's balance is always the sum of its
// entries' amounts. Corrections are new entries, never amendments.
type LedgerEntry struct {
	ID            string    `json:"id"`
	UID           string    `json:"uid"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"` // micros, signed
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Counterparty  string    `json:"counterparty,omitempty"`
	Note          string    `json:"note,omitempty"`
	AdminUID      string    `json:"admin_uid,omitempty"`
	OrderID       string    `json:"order_id,omitempty"`
	CaptureID     string    `json:"capture_id,omitempty"`
	GrossAmount   int64     `json:"gross_amount,omitempty"` // micros, processor currency
	GrossCurrency string    `json:"gross_currency,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
