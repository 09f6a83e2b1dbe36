// Package settlement computes branch and merchant settlements over a period
// and drives their approval workflows.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/currency"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("shipment_finance/settlement")

var (
	ErrOverlappingSettlement  = models.ErrOverlappingSettlement
	ErrShipmentAlreadySettled = models.ErrShipmentAlreadySettled
	ErrNoEligibleShipments    = errors.New("settlement: no eligible shipments in period")
	ErrSettlementNotFound     = errors.New("settlement: not found")
	ErrInvalidTransition      = models.ErrInvalidTransition
	ErrImmutable              = models.ErrImmutable
)

// Store is the persistence boundary of both settlement kinds. Create methods
// check exclusivity and insert inside one transaction.
type Store interface {
	DeliveredBranchShipments(ctx context.Context, branchID int, start, end time.Time) ([]models.Shipment, error)
	BranchCodPayments(ctx context.Context, branchID int, start, end time.Time) ([]models.Transaction, error)
	CreateBranchSettlement(ctx context.Context, s *models.BranchSettlement) error
	GetBranchSettlement(ctx context.Context, id int) (*models.BranchSettlement, error)
	UpdateBranchSettlement(ctx context.Context, id int, fn func(*models.BranchSettlement) error) (*models.BranchSettlement, error)
	ListBranchSettlements(ctx context.Context, branchID int, start, end time.Time) ([]models.BranchSettlement, error)

	EligibleMerchantShipments(ctx context.Context, merchantID int, start, end time.Time, branchID *int) ([]models.Shipment, error)
	CreateMerchantSettlement(ctx context.Context, s *models.MerchantSettlement) error
	GetMerchantSettlement(ctx context.Context, id int) (*models.MerchantSettlement, error)
	// UpdateMerchantSettlement persists fn's changes together with the payout
	// record fn returns (if any), and voids the items of a voided settlement.
	UpdateMerchantSettlement(ctx context.Context, id int, fn func(*models.MerchantSettlement) (*models.FinancialTransaction, error)) (*models.MerchantSettlement, error)
	ListMerchantSettlements(ctx context.Context, merchantID int, start, end time.Time) ([]models.MerchantSettlement, error)
}

// Converter is the slice of currency.Converter settlements use.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (currency.Conversion, error)
}

type Calculator struct {
	store          Store
	converter      Converter
	locker         utils.Locker
	commissionRate decimal.Decimal
	baseCurrency   string
	logger         *logrus.Logger
	now            func() time.Time
}

type Option func(*Calculator)

// WithLocker adds a cross-instance lock around generation.
func WithLocker(l utils.Locker) Option {
	return func(c *Calculator) { c.locker = l }
}

func NewCalculator(store Store, converter Converter, policy config.FinancePolicy, logger *logrus.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		store:          store,
		converter:      converter,
		commissionRate: policy.BranchCommissionRate,
		baseCurrency:   models.NormalizeCurrency(policy.BaseCurrency),
		logger:         config.LoggerOrDefault(logger),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// convertLine converts one source amount into the settlement currency.
func (c *Calculator) convertLine(ctx context.Context, sourceID, shipmentID int, amount decimal.Decimal, from, to string, at time.Time) (models.BreakdownLine, error) {
	from = models.NormalizeCurrency(from)
	if from == "" {
		from = to
	}
	line := models.BreakdownLine{
		SourceId:         sourceID,
		ShipmentId:       shipmentID,
		OccurredAt:       at,
		OriginalAmount:   amount,
		OriginalCurrency: from,
		Rate:             decimal.NewFromInt(1),
		Amount:           models.RoundMoney(amount),
	}
	if from == to {
		return line, nil
	}
	if c.converter == nil {
		return line, fmt.Errorf("%w: %s -> %s (no converter)", currency.ErrRateNotFound, from, to)
	}
	conv, err := c.converter.Convert(ctx, amount, from, to, at)
	if err != nil {
		return line, err
	}
	line.Rate = conv.Rate
	line.Amount = conv.Converted
	return line, nil
}

func (c *Calculator) settlementCurrency(code string) string {
	if code = models.NormalizeCurrency(code); code != "" {
		return code
	}
	return c.baseCurrency
}

func notFound(err error, kind string, id int) error {
	if errors.Is(err, models.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s settlement %d", ErrSettlementNotFound, kind, id)
	}
	return err
}
