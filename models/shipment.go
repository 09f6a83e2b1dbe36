package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shipment is the finance-relevant subset of a booking. Revenue breakdown
// fields are optional; when all are zero a payment is posted to freight revenue.
type Shipment struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	CustomerId          int             `gorm:"index;not null" json:"customer_id"`
	OriginBranchId      int             `gorm:"index;not null" json:"origin_branch_id"`
	DestinationBranchId int             `gorm:"index" json:"destination_branch_id"`
	PaymentType         PaymentType     `gorm:"size:10;index;not null" json:"payment_type"`
	Status              ShipmentStatus  `gorm:"size:20;index;not null" json:"status"`
	Currency            string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	CodAmount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cod_amount"`
	ShippingCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipping_cost"`
	TotalAmount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Deductions          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deductions"`
	BaseRate            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_rate"`
	WeightCharge        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight_charge"`
	Surcharges          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"surcharges"`
	InsuranceAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"insurance_amount"`
	TaxAmount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	CreditHold          bool            `gorm:"not null;default:false" json:"credit_hold"`
	CreditHoldReason    string          `gorm:"size:255" json:"credit_hold_reason"`
	CreditHoldAt        *time.Time      `json:"credit_hold_at"`
	CreditReleasedBy    string          `gorm:"size:64" json:"credit_released_by"`
	CreditReleasedAt    *time.Time      `json:"credit_released_at"`
	CreditReleaseNotes  string          `gorm:"type:text" json:"credit_release_notes"`
	DeliveredAt         *time.Time      `gorm:"index" json:"delivered_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// RevenueBreakdown is the shipment charge split used when posting a payment.
type RevenueBreakdown struct {
	Freight    decimal.Decimal
	Surcharges decimal.Decimal
	Insurance  decimal.Decimal
	Tax        decimal.Decimal
}

func (s Shipment) RevenueBreakdown() RevenueBreakdown {
	return RevenueBreakdown{
		Freight:    s.BaseRate.Add(s.WeightCharge),
		Surcharges: s.Surcharges,
		Insurance:  s.InsuranceAmount,
		Tax:        s.TaxAmount,
	}
}

func (b RevenueBreakdown) Total() decimal.Decimal {
	return SumDecimals(b.Freight, b.Surcharges, b.Insurance, b.Tax)
}

func (b RevenueBreakdown) IsZero() bool {
	return b.Freight.IsZero() && b.Surcharges.IsZero() && b.Insurance.IsZero() && b.Tax.IsZero()
}

// IsCod reports whether the shipment is cash-on-delivery.
func (s Shipment) IsCod() bool {
	return s.PaymentType == PaymentTypeCod
}

// ApplyCreditHold places or releases the hold described by ev. Placing a held
// shipment or releasing one that is not held is an invalid transition.
func (s *Shipment) ApplyCreditHold(ev CreditHoldEvent) error {
	at := ev.OccurredAt
	switch ev.Action {
	case CreditHoldActionPlace:
		if s.CreditHold {
			return invalidTransition("on_hold", "place hold")
		}
		s.CreditHold = true
		s.CreditHoldReason = ev.Reason
		s.CreditHoldAt = &at
		s.CreditReleasedBy = ""
		s.CreditReleasedAt = nil
		s.CreditReleaseNotes = ""
	case CreditHoldActionRelease:
		if !s.CreditHold {
			return invalidTransition("released", "release hold")
		}
		s.CreditHold = false
		s.CreditReleasedBy = ev.ActorId
		s.CreditReleasedAt = &at
		s.CreditReleaseNotes = ev.Notes
	default:
		return invalidTransition(ev.Action, "apply hold")
	}
	return nil
}
