package models

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SettlementKindBranch   = "branch"
	SettlementKindMerchant = "merchant"
)

// BreakdownLine is one source amount folded into a settlement total.
type BreakdownLine struct {
	SourceId         int             `json:"source_id"`
	ShipmentId       int             `json:"shipment_id"`
	OccurredAt       time.Time       `json:"occurred_at"`
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	OriginalCurrency string          `json:"original_currency"`
	Rate             decimal.Decimal `json:"rate"`
	Amount           decimal.Decimal `json:"amount"`
}

// BranchBreakdown is the audit snapshot of a branch settlement. Every total on
// the settlement can be recomputed from it without touching source data.
type BranchBreakdown struct {
	Currency       string          `json:"currency"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Shipments      []BreakdownLine `json:"shipments"`
	CodPayments    []BreakdownLine `json:"cod_payments"`
	Expenses       []BreakdownLine `json:"expenses"`
	ExpensesNote   string          `json:"expenses_note,omitempty"`
	Revenue        decimal.Decimal `json:"revenue"`
	Cod            decimal.Decimal `json:"cod"`
	ExpenseTotal   decimal.Decimal `json:"expense_total"`
	Commission     decimal.Decimal `json:"commission"`
	Net            decimal.Decimal `json:"net"`
	DueToHq        decimal.Decimal `json:"due_to_hq"`
	DueFromHq      decimal.Decimal `json:"due_from_hq"`
}

func (b BranchBreakdown) Value() (driver.Value, error) { return jsonValue(b) }
func (b *BranchBreakdown) Scan(src any) error          { return jsonScan(src, b) }

type BranchSettlement struct {
	ID               int                    `gorm:"primary_key" json:"id"`
	BranchId         int                    `gorm:"index:idx_bs_branch_period,priority:1;not null" json:"branch_id"`
	PeriodStart      time.Time              `gorm:"index:idx_bs_branch_period,priority:2;not null" json:"period_start"`
	PeriodEnd        time.Time              `gorm:"index:idx_bs_branch_period,priority:3;not null" json:"period_end"`
	Currency         string                 `gorm:"size:3;not null" json:"currency"`
	TotalRevenue     decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"total_revenue"`
	TotalCod         decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"total_cod"`
	TotalExpenses    decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"total_expenses"`
	CommissionRate   decimal.Decimal        `gorm:"type:decimal(10,4);default:0" json:"commission_rate"`
	BranchCommission decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"branch_commission"`
	NetAmount        decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"net_amount"`
	AmountDueToHq    decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"amount_due_to_hq"`
	AmountDueFromHq  decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"amount_due_from_hq"`
	Status           BranchSettlementStatus `gorm:"size:20;index;not null;default:'draft'" json:"status"`
	Breakdown        BranchBreakdown        `gorm:"type:json" json:"breakdown"`
	SubmittedBy      string                 `gorm:"size:64" json:"submitted_by"`
	SubmittedAt      *time.Time             `json:"submitted_at"`
	ApprovedBy       string                 `gorm:"size:64" json:"approved_by"`
	ApprovedAt       *time.Time             `json:"approved_at"`
	PaymentReference string                 `gorm:"size:100" json:"payment_reference"`
	PaidAt           *time.Time             `json:"paid_at"`
	RejectedReason   string                 `gorm:"type:text" json:"rejected_reason"`
	CreatedAt        time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

// MerchantBreakdown summarises the items of a merchant settlement.
type MerchantBreakdown struct {
	Currency          string          `json:"currency"`
	ShipmentIds       []int           `json:"shipment_ids"`
	ItemCount         int             `json:"item_count"`
	TotalCod          decimal.Decimal `json:"total_cod"`
	TotalShippingFees decimal.Decimal `json:"total_shipping_fees"`
	TotalDeductions   decimal.Decimal `json:"total_deductions"`
	Net               decimal.Decimal `json:"net"`
}

func (b MerchantBreakdown) Value() (driver.Value, error) { return jsonValue(b) }
func (b *MerchantBreakdown) Scan(src any) error          { return jsonScan(src, b) }

type MerchantSettlement struct {
	ID                int                      `gorm:"primary_key" json:"id"`
	MerchantId        int                      `gorm:"index;not null" json:"merchant_id"`
	BranchId          *int                     `gorm:"index" json:"branch_id"`
	PeriodStart       time.Time                `gorm:"not null" json:"period_start"`
	PeriodEnd         time.Time                `gorm:"not null" json:"period_end"`
	Currency          string                   `gorm:"size:3;not null" json:"currency"`
	TotalCod          decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"total_cod"`
	TotalShippingFees decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"total_shipping_fees"`
	TotalDeductions   decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"total_deductions"`
	NetAmount         decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"net_amount"`
	Status            MerchantSettlementStatus `gorm:"size:20;index;not null;default:'draft'" json:"status"`
	Breakdown         MerchantBreakdown        `gorm:"type:json" json:"breakdown"`
	Items             []SettlementItem         `gorm:"foreignKey:SettlementId" json:"items"`
	SubmittedAt       *time.Time               `json:"submitted_at"`
	ApprovedBy        string                   `gorm:"size:64" json:"approved_by"`
	ApprovedAt        *time.Time               `json:"approved_at"`
	PaymentMethod     PaymentMethod            `gorm:"size:20" json:"payment_method"`
	PaymentReference  string                   `gorm:"size:100" json:"payment_reference"`
	PaidAt            *time.Time               `json:"paid_at"`
	CancelledReason   string                   `gorm:"type:text" json:"cancelled_reason"`
	CreatedAt         time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

// SettlementItem settles one COD shipment. A shipment appears in at most one
// non-void item; items of cancelled settlements are voided.
type SettlementItem struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SettlementId int             `gorm:"index;not null" json:"settlement_id"`
	ShipmentId   int             `gorm:"index:idx_si_shipment_void,priority:1;not null" json:"shipment_id"`
	ShippingFee  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipping_fee"`
	CodAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cod_amount"`
	Deductions   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deductions"`
	NetAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_amount"`
	Voided       bool            `gorm:"index:idx_si_shipment_void,priority:2;not null;default:false" json:"voided"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// NewSettlementItem derives net = cod - shipping fee - deductions.
func NewSettlementItem(s Shipment) SettlementItem {
	cod := RoundMoney(s.CodAmount)
	fee := RoundMoney(s.ShippingCost)
	ded := RoundMoney(s.Deductions)
	return SettlementItem{
		ShipmentId:  s.ID,
		ShippingFee: fee,
		CodAmount:   cod,
		Deductions:  ded,
		NetAmount:   cod.Sub(fee).Sub(ded),
	}
}
