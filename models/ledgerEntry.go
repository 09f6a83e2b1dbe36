package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one side of a balanced posting. Entries sharing a Reference
// always balance: sum(DEBIT) == sum(CREDIT).
//
// Entries are append-only; the only allowed change is PENDING -> POSTED when
// synced to the external ledger. Corrections are new offsetting references.
type LedgerEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	AccountCode   string          `gorm:"size:20;index;not null" json:"account_code"`
	AccountName   string          `gorm:"size:100;not null" json:"account_name"`
	EntryType     EntryType       `gorm:"size:10;not null" json:"entry_type"`
	Kind          EntryKind       `gorm:"size:10;not null;default:'PAYMENT';index:idx_le_txn_kind,priority:2" json:"kind"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	Reference     string          `gorm:"size:100;index;not null" json:"reference"`
	Description   string          `gorm:"size:255" json:"description"`
	PostingDate   time.Time       `gorm:"index;not null" json:"posting_date"`
	Status        EntryStatus     `gorm:"size:10;index;not null;default:'PENDING'" json:"status"`
	TransactionId int             `gorm:"index;index:idx_le_txn_kind,priority:1;not null" json:"transaction_id"`
	ShipmentId    *int            `gorm:"index" json:"shipment_id"`
	PostedAt      *time.Time      `json:"posted_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// EntryTotals sums the debit and credit sides of entries.
func EntryTotals(entries []LedgerEntry) (debit decimal.Decimal, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.EntryType {
		case EntryTypeDebit:
			debit = debit.Add(e.Amount)
		case EntryTypeCredit:
			credit = credit.Add(e.Amount)
		}
	}
	return debit, credit
}

// IsBalanced checks the double-entry invariant for one reference batch.
func IsBalanced(entries []LedgerEntry) bool {
	debit, credit := EntryTotals(entries)
	return debit.Equal(credit)
}
