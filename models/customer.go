package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer carries the credit-relevant subset of a customer record.
// CurrentBalance is only ever changed through atomic increment/decrement
// (delivery and payment); there is no setter.
type Customer struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Name           string          `gorm:"size:100" json:"name"`
	CreditLimit    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_limit"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	PaymentTerms   PaymentTerms    `gorm:"size:20;not null;default:'cod'" json:"payment_terms"`
	Status         CustomerStatus  `gorm:"size:20;index;not null;default:'active'" json:"status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AvailableCredit is max(0, limit - balance).
func (c Customer) AvailableCredit() decimal.Decimal {
	avail := c.CreditLimit.Sub(c.CurrentBalance)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// BalanceAdjustment marks one applied balance change. Reference is unique, so
// the marker and the balance update commit together or not at all.
type BalanceAdjustment struct {
	ID         int             `gorm:"primary_key" json:"id"`
	CustomerId int             `gorm:"index;not null" json:"customer_id"`
	Reference  string          `gorm:"size:100;uniqueIndex;not null" json:"reference"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// CreditHoldEvent is the audit trail of holds placed on and released from shipments.
type CreditHoldEvent struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ShipmentId int       `gorm:"index;not null" json:"shipment_id"`
	Action     string    `gorm:"size:10;not null" json:"action"` // place|release
	Reason     string    `gorm:"size:255" json:"reason"`
	Notes      string    `gorm:"type:text" json:"notes"`
	ActorId    string    `gorm:"size:64;not null" json:"actor_id"`
	OccurredAt time.Time `gorm:"index;not null" json:"occurred_at"`
}

const (
	CreditHoldActionPlace   = "place"
	CreditHoldActionRelease = "release"
)
