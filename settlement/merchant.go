package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/metrics"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type MerchantRequest struct {
	MerchantId  int       `validate:"required,gt=0"`
	PeriodStart time.Time `validate:"required"`
	PeriodEnd   time.Time `validate:"required,gtefield=PeriodStart"`
	BranchId    *int      `validate:"omitempty,gt=0"`
	Currency    string    `validate:"omitempty,len=3"`
}

// EligibleShipments lists delivered COD shipments of the merchant in the
// period that no non-void settlement item holds yet.
func (c *Calculator) EligibleShipments(ctx context.Context, merchantID int, start, end time.Time, branchID *int) ([]models.Shipment, error) {
	return c.store.EligibleMerchantShipments(ctx, merchantID, start, end, branchID)
}

// GenerateMerchantSettlement settles every eligible shipment of the period,
// one item each. An empty eligible set is ErrNoEligibleShipments. Not
// idempotent: a retry after success finds nothing left to settle.
func (c *Calculator) GenerateMerchantSettlement(ctx context.Context, req MerchantRequest) (_ *models.MerchantSettlement, err error) {
	started := time.Now()
	defer func() { metrics.ObserveSettlementGenerate(models.SettlementKindMerchant, started, err) }()
	ctx, span := tracer.Start(ctx, "settlement.GenerateMerchantSettlement", trace.WithAttributes(attribute.Int("merchant_id", req.MerchantId)))
	defer span.End()

	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	cur := c.settlementCurrency(req.Currency)

	release := utils.BestEffortLock(ctx, c.locker, c.logger, fmt.Sprintf("settlement:merchant:%d", req.MerchantId), "GenerateMerchantSettlement")
	defer release()

	shipments, err := c.EligibleShipments(ctx, req.MerchantId, req.PeriodStart, req.PeriodEnd, req.BranchId)
	if err != nil {
		return nil, err
	}
	if len(shipments) == 0 {
		return nil, fmt.Errorf("%w: merchant %d", ErrNoEligibleShipments, req.MerchantId)
	}

	s := &models.MerchantSettlement{
		MerchantId:  req.MerchantId,
		BranchId:    req.BranchId,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Currency:    cur,
		Status:      models.MerchantSettlementDraft,
		Items:       make([]models.SettlementItem, 0, len(shipments)),
	}
	b := models.MerchantBreakdown{
		Currency:          cur,
		ShipmentIds:       make([]int, 0, len(shipments)),
		TotalCod:          decimal.Zero,
		TotalShippingFees: decimal.Zero,
		TotalDeductions:   decimal.Zero,
		Net:               decimal.Zero,
	}
	for _, sh := range shipments {
		converted, err := c.inCurrency(ctx, sh, cur)
		if err != nil {
			return nil, fmt.Errorf("shipment %d: %w", sh.ID, err)
		}
		item := models.NewSettlementItem(converted)
		s.Items = append(s.Items, item)
		b.ShipmentIds = append(b.ShipmentIds, sh.ID)
		b.TotalCod = b.TotalCod.Add(item.CodAmount)
		b.TotalShippingFees = b.TotalShippingFees.Add(item.ShippingFee)
		b.TotalDeductions = b.TotalDeductions.Add(item.Deductions)
		b.Net = b.Net.Add(item.NetAmount)
	}
	b.ItemCount = len(s.Items)
	s.Breakdown = b
	s.TotalCod = b.TotalCod
	s.TotalShippingFees = b.TotalShippingFees
	s.TotalDeductions = b.TotalDeductions
	s.NetAmount = b.Net

	if err := c.store.CreateMerchantSettlement(ctx, s); err != nil {
		if !errors.Is(err, ErrOverlappingSettlement) && !errors.Is(err, ErrShipmentAlreadySettled) {
			config.LogError(c.logger, "merchant.go", "GenerateMerchantSettlement", "CreateMerchantSettlement", req.MerchantId, err)
		}
		return nil, err
	}
	return s, nil
}

// inCurrency returns a copy of sh with its settlement amounts in cur.
func (c *Calculator) inCurrency(ctx context.Context, sh models.Shipment, cur string) (models.Shipment, error) {
	if models.NormalizeCurrency(sh.Currency) == cur || sh.Currency == "" {
		return sh, nil
	}
	for _, f := range []*decimal.Decimal{&sh.CodAmount, &sh.ShippingCost, &sh.Deductions} {
		line, err := c.convertLine(ctx, sh.ID, sh.ID, *f, sh.Currency, cur, *sh.DeliveredAt)
		if err != nil {
			return sh, err
		}
		*f = line.Amount
	}
	sh.Currency = cur
	return sh, nil
}

func (c *Calculator) transitionMerchant(ctx context.Context, id int, action models.MerchantSettlementAction, stamp func(*models.MerchantSettlement, time.Time) *models.FinancialTransaction) (*models.MerchantSettlement, error) {
	s, err := c.store.UpdateMerchantSettlement(ctx, id, func(s *models.MerchantSettlement) (*models.FinancialTransaction, error) {
		if s.Status == models.MerchantSettlementPaid {
			return nil, fmt.Errorf("%w: merchant settlement %d is paid", ErrImmutable, s.ID)
		}
		next, err := s.Status.Next(action)
		if err != nil {
			return nil, err
		}
		s.Status = next
		return stamp(s, c.now()), nil
	})
	if err != nil {
		return nil, notFound(err, models.SettlementKindMerchant, id)
	}
	return s, nil
}

func (c *Calculator) SubmitMerchantSettlement(ctx context.Context, id int) (*models.MerchantSettlement, error) {
	return c.transitionMerchant(ctx, id, models.MerchantActionSubmit, func(s *models.MerchantSettlement, at time.Time) *models.FinancialTransaction {
		s.SubmittedAt = &at
		return nil
	})
}

func (c *Calculator) ApproveMerchantSettlement(ctx context.Context, id int, approverID string) (*models.MerchantSettlement, error) {
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver is required", utils.ErrValidation)
	}
	return c.transitionMerchant(ctx, id, models.MerchantActionApprove, func(s *models.MerchantSettlement, at time.Time) *models.FinancialTransaction {
		s.ApprovedBy = approverID
		s.ApprovedAt = &at
		return nil
	})
}

type PaymentRequest struct {
	SettlementId int                  `validate:"required,gt=0"`
	Method       models.PaymentMethod `validate:"required"`
	Reference    string               `validate:"required,max=100"`
}

// ProcessMerchantPayment marks an approved settlement paid and records the
// payout in the same transaction.
func (c *Calculator) ProcessMerchantPayment(ctx context.Context, req PaymentRequest) (*models.MerchantSettlement, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	return c.transitionMerchant(ctx, req.SettlementId, models.MerchantActionPay, func(s *models.MerchantSettlement, at time.Time) *models.FinancialTransaction {
		s.PaymentMethod = req.Method
		s.PaymentReference = req.Reference
		s.PaidAt = &at
		return &models.FinancialTransaction{
			Type:           models.FinancialTransactionMerchantPayout,
			PartyId:        s.MerchantId,
			SettlementId:   s.ID,
			SettlementKind: models.SettlementKindMerchant,
			Amount:         s.NetAmount,
			Currency:       s.Currency,
			Method:         req.Method,
			Reference:      req.Reference,
			OccurredAt:     at,
		}
	})
}

// CancelMerchantSettlement voids a draft or pending settlement and releases
// its shipments for a later settlement.
func (c *Calculator) CancelMerchantSettlement(ctx context.Context, id int, reason string) (*models.MerchantSettlement, error) {
	return c.transitionMerchant(ctx, id, models.MerchantActionCancel, func(s *models.MerchantSettlement, _ time.Time) *models.FinancialTransaction {
		s.CancelledReason = reason
		return nil
	})
}

func (c *Calculator) GetMerchantSettlement(ctx context.Context, id int) (*models.MerchantSettlement, error) {
	s, err := c.store.GetMerchantSettlement(ctx, id)
	if err != nil {
		return nil, notFound(err, models.SettlementKindMerchant, id)
	}
	return s, nil
}
