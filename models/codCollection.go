package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscrepancyTolerance is the largest |expected - collected| treated as a match.
var DiscrepancyTolerance = decimal.RequireFromString("0.01")

type CodCollection struct {
	ID               int              `gorm:"primary_key" json:"id"`
	ShipmentId       int              `gorm:"uniqueIndex;not null" json:"shipment_id"`
	ExpectedAmount   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"expected_amount"`
	CollectedAmount  *decimal.Decimal `gorm:"type:decimal(20,4)" json:"collected_amount"`
	Currency         string           `gorm:"size:3;not null;default:'USD'" json:"currency"`
	CollectedBy      string           `gorm:"size:64;index" json:"collected_by"`
	CollectionMethod string           `gorm:"size:20" json:"collection_method"`
	Status           CodStatus        `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	VerifiedBy       string           `gorm:"size:64" json:"verified_by"`
	RemittanceId     *int             `gorm:"index" json:"remittance_id"`
	CollectedAt      *time.Time       `gorm:"index" json:"collected_at"`
	VerifiedAt       *time.Time       `json:"verified_at"`
	RemittedAt       *time.Time       `json:"remitted_at"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// Discrepancy is |expected - collected|, or false while nothing is collected.
func (c CodCollection) Discrepancy() (decimal.Decimal, bool) {
	if c.CollectedAmount == nil {
		return decimal.Zero, false
	}
	return c.ExpectedAmount.Sub(*c.CollectedAmount).Abs(), true
}

func (c CodCollection) HasDiscrepancy() bool {
	d, ok := c.Discrepancy()
	return ok && d.GreaterThan(DiscrepancyTolerance)
}

// ActivityAt is when the collection last counted for reporting: its
// collection time, or its creation time while still pending.
func (c CodCollection) ActivityAt() time.Time {
	if c.CollectedAt != nil {
		return *c.CollectedAt
	}
	return c.CreatedAt
}

func (c CodCollection) Collected() decimal.Decimal {
	if c.CollectedAmount == nil {
		return decimal.Zero
	}
	return *c.CollectedAmount
}

// DriverCashAccount holds cash a driver collected but has not remitted yet.
// It is owned by the COD ledger and only moves via collection/remittance.
type DriverCashAccount struct {
	ID                int             `gorm:"primary_key" json:"id"`
	DriverId          string          `gorm:"size:64;uniqueIndex;not null" json:"driver_id"`
	Balance           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	PendingRemittance int             `gorm:"not null;default:0" json:"pending_remittance"`
	LastRemittanceAt  *time.Time      `json:"last_remittance_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CodRemittance is one cash hand-over covering a batch of collections.
// DeclaredAmount is what the caller reported; RemittedAmount is the sum of
// the collected amounts actually marked remitted.
type CodRemittance struct {
	ID              int             `gorm:"primary_key" json:"id"`
	DriverId        string          `gorm:"size:64;index;not null" json:"driver_id"`
	Reference       string          `gorm:"size:100;index" json:"reference"`
	DeclaredAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"declared_amount"`
	RemittedAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remitted_amount"`
	Variance        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance"`
	CollectionCount int             `gorm:"not null" json:"collection_count"`
	RemittedAt      time.Time       `gorm:"index;not null" json:"remitted_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
