// Package cod tracks cash-on-delivery money from the expected amount on a
// shipment, through the driver who collected it, to the remittance that
// handed it over.
package cod

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
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("shipment_finance/cod")

var (
	ErrNotCod             = errors.New("cod: shipment is not cash on delivery")
	ErrCollectionNotFound = errors.New("cod: collection not found")
	ErrInvalidAmount      = errors.New("cod: amount must not be negative")
	ErrNothingToRemit     = models.ErrNothingToRemit
	ErrInvalidTransition  = models.ErrInvalidTransition
)

// Store owns the collection rows and the driver cash accounts. CollectCod and
// RemitCod move the driver balance in the same transaction as the status.
type Store interface {
	CreateCollection(ctx context.Context, c *models.CodCollection) error
	GetCollection(ctx context.Context, id int) (*models.CodCollection, error)
	GetCollectionByShipment(ctx context.Context, shipmentID int) (*models.CodCollection, error)
	CollectCod(ctx context.Context, id int, amount decimal.Decimal, driverID, method string, at time.Time) (*models.CodCollection, error)
	VerifyCod(ctx context.Context, id int, supervisorID string, at time.Time) (*models.CodCollection, error)
	RemitCod(ctx context.Context, driverID string, collectionIDs []int, rem *models.CodRemittance) ([]models.CodCollection, error)
	ListCollections(ctx context.Context, filter models.CodFilter) ([]models.CodCollection, error)
	GetDriverAccount(ctx context.Context, driverID string) (*models.DriverCashAccount, error)
	ListRemittances(ctx context.Context, driverID string, from, to *time.Time) ([]models.CodRemittance, error)
}

type Ledger struct {
	store  Store
	logger *logrus.Logger
	now    func() time.Time
}

func NewLedger(store Store, logger *logrus.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: config.LoggerOrDefault(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterExpectation opens a pending collection for a COD shipment. A second
// call for the same shipment returns the existing row.
func (l *Ledger) RegisterExpectation(ctx context.Context, shipment models.Shipment) (*models.CodCollection, error) {
	if !shipment.IsCod() {
		return nil, fmt.Errorf("%w: shipment %d", ErrNotCod, shipment.ID)
	}
	if shipment.CodAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	c := &models.CodCollection{
		ShipmentId:     shipment.ID,
		ExpectedAmount: models.RoundMoney(shipment.CodAmount),
		Currency:       models.NormalizeCurrency(shipment.Currency),
		Status:         models.CodStatusPending,
	}
	if err := l.store.CreateCollection(ctx, c); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return l.store.GetCollectionByShipment(ctx, shipment.ID)
		}
		config.LogError(l.logger, "ledger.go", "RegisterExpectation", "CreateCollection", shipment.ID, err)
		return nil, err
	}
	return c, nil
}

type CollectionRequest struct {
	CollectionId int             `validate:"required,gt=0"`
	Amount       decimal.Decimal `validate:"-"`
	DriverId     string          `validate:"required,max=64"`
	Method       string          `validate:"required,max=20"`
	CollectedAt  time.Time
}

// RecordCollection moves a pending collection to collected and adds the
// amount to the driver's cash account. Calling it twice for one collection is
// an invalid transition, not a no-op.
func (l *Ledger) RecordCollection(ctx context.Context, req CollectionRequest) (*models.CodCollection, error) {
	ctx, span := tracer.Start(ctx, "cod.RecordCollection", trace.WithAttributes(attribute.Int("collection_id", req.CollectionId)))
	defer span.End()

	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	at := req.CollectedAt
	if at.IsZero() {
		at = l.now()
	}
	c, err := l.store.CollectCod(ctx, req.CollectionId, models.RoundMoney(req.Amount), req.DriverId, req.Method, at)
	if err != nil {
		return nil, l.collectionErr(err, "RecordCollection", req.CollectionId)
	}
	if c.HasDiscrepancy() {
		diff, _ := c.Discrepancy()
		l.logger.WithFields(logrus.Fields{
			"field":         "RecordCollection",
			"collection_id": c.ID,
			"driver_id":     c.CollectedBy,
			"discrepancy":   diff.String(),
		}).Warn("collected amount differs from expected")
	}
	return c, nil
}

// VerifyCollection records a supervisor's confirmation of a collected amount.
func (l *Ledger) VerifyCollection(ctx context.Context, id int, supervisorID string) (*models.CodCollection, error) {
	if supervisorID == "" {
		return nil, fmt.Errorf("%w: supervisor is required", utils.ErrValidation)
	}
	c, err := l.store.VerifyCod(ctx, id, supervisorID, l.now())
	if err != nil {
		return nil, l.collectionErr(err, "VerifyCollection", id)
	}
	return c, nil
}

type RemittanceRequest struct {
	DriverId       string          `validate:"required,max=64"`
	CollectionIds  []int           `validate:"required,min=1,dive,gt=0"`
	DeclaredAmount decimal.Decimal `validate:"-"`
	Reference      string          `validate:"max=100"`
	RemittedAt     time.Time
}

type RemittanceResult struct {
	Remittance  models.CodRemittance   `json:"remittance"`
	Collections []models.CodCollection `json:"collections"`
}

// RecordRemittance hands over the driver's collected or verified collections
// among req.CollectionIds. Ids of other drivers or in other states are
// skipped. The driver balance drops by the sum of the collected amounts;
// DeclaredAmount is only kept for audit, with the difference as Variance.
func (l *Ledger) RecordRemittance(ctx context.Context, req RemittanceRequest) (*RemittanceResult, error) {
	ctx, span := tracer.Start(ctx, "cod.RecordRemittance", trace.WithAttributes(attribute.String("driver_id", req.DriverId)))
	defer span.End()

	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	at := req.RemittedAt
	if at.IsZero() {
		at = l.now()
	}
	rem := &models.CodRemittance{
		DriverId:       req.DriverId,
		Reference:      req.Reference,
		DeclaredAmount: models.RoundMoney(req.DeclaredAmount),
		RemittedAt:     at,
	}
	collections, err := l.store.RemitCod(ctx, req.DriverId, req.CollectionIds, rem)
	if err != nil {
		if !errors.Is(err, ErrNothingToRemit) {
			config.LogError(l.logger, "ledger.go", "RecordRemittance", "RemitCod", req.DriverId, err)
		}
		return nil, err
	}
	metrics.ObserveCodRemitted(rem.RemittedAmount)
	if !rem.Variance.IsZero() {
		l.logger.WithFields(logrus.Fields{
			"field":     "RecordRemittance",
			"driver_id": req.DriverId,
			"declared":  rem.DeclaredAmount.String(),
			"remitted":  rem.RemittedAmount.String(),
		}).Warn("declared remittance differs from collected total")
	}
	return &RemittanceResult{Remittance: *rem, Collections: collections}, nil
}

type Discrepancy struct {
	CollectionId int              `json:"collection_id"`
	ShipmentId   int              `json:"shipment_id"`
	DriverId     string           `json:"driver_id"`
	Status       models.CodStatus `json:"status"`
	Expected     decimal.Decimal  `json:"expected"`
	Collected    decimal.Decimal  `json:"collected"`
	Difference   decimal.Decimal  `json:"difference"`
}

// Discrepancies lists collections whose collected amount is off by more than
// models.DiscrepancyTolerance. Nothing is corrected here.
func (l *Ledger) Discrepancies(ctx context.Context, filter models.CodFilter) ([]Discrepancy, error) {
	filter.OnlyMismatch = true
	rows, err := l.store.ListCollections(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Discrepancy, 0, len(rows))
	for _, c := range rows {
		diff, _ := c.Discrepancy()
		out = append(out, Discrepancy{
			CollectionId: c.ID,
			ShipmentId:   c.ShipmentId,
			DriverId:     c.CollectedBy,
			Status:       c.Status,
			Expected:     c.ExpectedAmount,
			Collected:    c.Collected(),
			Difference:   diff,
		})
	}
	return out, nil
}

// DriverAccount returns the driver's cash account, zeroed if the driver has
// never collected.
func (l *Ledger) DriverAccount(ctx context.Context, driverID string) (*models.DriverCashAccount, error) {
	acct, err := l.store.GetDriverAccount(ctx, driverID)
	if errors.Is(err, models.ErrRecordNotFound) {
		return &models.DriverCashAccount{DriverId: driverID, Balance: decimal.Zero}, nil
	}
	return acct, err
}

func (l *Ledger) GetCollection(ctx context.Context, id int) (*models.CodCollection, error) {
	c, err := l.store.GetCollection(ctx, id)
	if err != nil {
		return nil, l.collectionErr(err, "GetCollection", id)
	}
	return c, nil
}

// CollectionForShipment returns the collection opened for a shipment.
func (l *Ledger) CollectionForShipment(ctx context.Context, shipmentID int) (*models.CodCollection, error) {
	c, err := l.store.GetCollectionByShipment(ctx, shipmentID)
	if err != nil {
		return nil, l.collectionErr(err, "CollectionForShipment", shipmentID)
	}
	return c, nil
}

func (l *Ledger) collectionErr(err error, field string, id int) error {
	switch {
	case errors.Is(err, models.ErrRecordNotFound):
		return fmt.Errorf("%w: %d", ErrCollectionNotFound, id)
	case errors.Is(err, ErrInvalidTransition):
		return err
	}
	config.LogError(l.logger, "ledger.go", field, "store", id, err)
	return err
}
