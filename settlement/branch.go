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

const expensesNote = "no cost-tracking integration; expenses recorded as zero"

type BranchRequest struct {
	BranchId    int       `validate:"required,gt=0"`
	PeriodStart time.Time `validate:"required"`
	PeriodEnd   time.Time `validate:"required,gtefield=PeriodStart"`
	Currency    string    `validate:"omitempty,len=3"`
}

// GenerateBranchSettlement computes a draft settlement of what the branch owes
// HQ for the closed period [PeriodStart, PeriodEnd]. It fails with
// ErrOverlappingSettlement when a non-void settlement of the branch already
// claims part of the period. Not idempotent: a retry after success fails.
func (c *Calculator) GenerateBranchSettlement(ctx context.Context, req BranchRequest) (_ *models.BranchSettlement, err error) {
	started := time.Now()
	defer func() { metrics.ObserveSettlementGenerate(models.SettlementKindBranch, started, err) }()
	ctx, span := tracer.Start(ctx, "settlement.GenerateBranchSettlement", trace.WithAttributes(attribute.Int("branch_id", req.BranchId)))
	defer span.End()

	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	cur := c.settlementCurrency(req.Currency)

	release := utils.BestEffortLock(ctx, c.locker, c.logger, fmt.Sprintf("settlement:branch:%d", req.BranchId), "GenerateBranchSettlement")
	defer release()

	breakdown, err := c.branchBreakdown(ctx, req, cur)
	if err != nil {
		return nil, err
	}

	s := &models.BranchSettlement{
		BranchId:         req.BranchId,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		Currency:         cur,
		TotalRevenue:     breakdown.Revenue,
		TotalCod:         breakdown.Cod,
		TotalExpenses:    breakdown.ExpenseTotal,
		CommissionRate:   breakdown.CommissionRate,
		BranchCommission: breakdown.Commission,
		NetAmount:        breakdown.Net,
		AmountDueToHq:    breakdown.DueToHq,
		AmountDueFromHq:  breakdown.DueFromHq,
		Status:           models.BranchSettlementDraft,
		Breakdown:        breakdown,
	}
	if err := c.store.CreateBranchSettlement(ctx, s); err != nil {
		if !errors.Is(err, ErrOverlappingSettlement) {
			config.LogError(c.logger, "branch.go", "GenerateBranchSettlement", "CreateBranchSettlement", req.BranchId, err)
		}
		return nil, err
	}
	return s, nil
}

func (c *Calculator) branchBreakdown(ctx context.Context, req BranchRequest, cur string) (models.BranchBreakdown, error) {
	b := models.BranchBreakdown{
		Currency:       cur,
		CommissionRate: c.commissionRate,
		Shipments:      []models.BreakdownLine{},
		CodPayments:    []models.BreakdownLine{},
		Expenses:       []models.BreakdownLine{},
		ExpensesNote:   expensesNote,
		Revenue:        decimal.Zero,
		Cod:            decimal.Zero,
		ExpenseTotal:   decimal.Zero,
	}

	shipments, err := c.store.DeliveredBranchShipments(ctx, req.BranchId, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return b, err
	}
	for _, sh := range shipments {
		line, err := c.convertLine(ctx, sh.ID, sh.ID, sh.TotalAmount, sh.Currency, cur, *sh.DeliveredAt)
		if err != nil {
			return b, fmt.Errorf("shipment %d: %w", sh.ID, err)
		}
		b.Shipments = append(b.Shipments, line)
		b.Revenue = b.Revenue.Add(line.Amount)
	}

	payments, err := c.store.BranchCodPayments(ctx, req.BranchId, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return b, err
	}
	for _, p := range payments {
		line, err := c.convertLine(ctx, p.ID, *p.ShipmentId, p.Amount, p.Currency, cur, *p.CompletedAt)
		if err != nil {
			return b, fmt.Errorf("payment %d: %w", p.ID, err)
		}
		b.CodPayments = append(b.CodPayments, line)
		b.Cod = b.Cod.Add(line.Amount)
	}

	b.Commission = models.RoundMoney(b.Cod.Mul(b.CommissionRate))
	b.Net = b.Revenue.Sub(b.ExpenseTotal).Add(b.Commission)
	b.DueToHq = b.Cod.Sub(b.Commission)
	b.DueFromHq = decimal.Max(decimal.Zero, b.Net.Neg())
	return b, nil
}

func (c *Calculator) transitionBranch(ctx context.Context, id int, action models.BranchSettlementAction, stamp func(*models.BranchSettlement, time.Time)) (*models.BranchSettlement, error) {
	s, err := c.store.UpdateBranchSettlement(ctx, id, func(s *models.BranchSettlement) error {
		if s.Status == models.BranchSettlementPaid {
			return fmt.Errorf("%w: branch settlement %d is paid", ErrImmutable, s.ID)
		}
		next, err := s.Status.Next(action)
		if err != nil {
			return err
		}
		s.Status = next
		stamp(s, c.now())
		return nil
	})
	if err != nil {
		return nil, notFound(err, models.SettlementKindBranch, id)
	}
	return s, nil
}

func (c *Calculator) SubmitBranchSettlement(ctx context.Context, id int, actorID string) (*models.BranchSettlement, error) {
	return c.transitionBranch(ctx, id, models.BranchActionSubmit, func(s *models.BranchSettlement, at time.Time) {
		s.SubmittedBy = actorID
		s.SubmittedAt = &at
	})
}

func (c *Calculator) ApproveBranchSettlement(ctx context.Context, id int, approverID string) (*models.BranchSettlement, error) {
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver is required", utils.ErrValidation)
	}
	return c.transitionBranch(ctx, id, models.BranchActionApprove, func(s *models.BranchSettlement, at time.Time) {
		s.ApprovedBy = approverID
		s.ApprovedAt = &at
	})
}

func (c *Calculator) MarkBranchSettlementPaid(ctx context.Context, id int, reference string) (*models.BranchSettlement, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: payment reference is required", utils.ErrValidation)
	}
	return c.transitionBranch(ctx, id, models.BranchActionPay, func(s *models.BranchSettlement, at time.Time) {
		s.PaymentReference = reference
		s.PaidAt = &at
	})
}

// RejectBranchSettlement voids a draft or submitted settlement, freeing its period.
func (c *Calculator) RejectBranchSettlement(ctx context.Context, id int, reason string) (*models.BranchSettlement, error) {
	return c.transitionBranch(ctx, id, models.BranchActionReject, func(s *models.BranchSettlement, _ time.Time) {
		s.RejectedReason = reason
	})
}

func (c *Calculator) GetBranchSettlement(ctx context.Context, id int) (*models.BranchSettlement, error) {
	s, err := c.store.GetBranchSettlement(ctx, id)
	if err != nil {
		return nil, notFound(err, models.SettlementKindBranch, id)
	}
	return s, nil
}
