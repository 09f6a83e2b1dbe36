// Package credit gates shipment creation on customer credit exposure and
// keeps the running customer balance.
package credit

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

var tracer = otel.Tracer("shipment_finance/credit")

var (
	ErrCustomerNotFound = errors.New("credit: customer not found")
	ErrShipmentNotFound = errors.New("credit: shipment not found")
	ErrInvalidAmount    = errors.New("credit: amount must be positive")
)

type Store interface {
	GetCustomer(ctx context.Context, id int) (*models.Customer, error)
	GetShipment(ctx context.Context, id int) (*models.Shipment, error)
	// AdjustCustomerBalance adds delta to current_balance in one atomic
	// statement; it is the only way the balance changes.
	AdjustCustomerBalance(ctx context.Context, customerID int, delta decimal.Decimal) error
	// AdjustCustomerBalanceOnce records reference and adds delta in one
	// transaction. A reference already recorded leaves the balance alone and
	// returns applied=false.
	AdjustCustomerBalanceOnce(ctx context.Context, customerID int, delta decimal.Decimal, reference string) (applied bool, err error)
	// ApplyCreditHold updates the shipment's hold fields and appends the audit
	// event in one transaction.
	ApplyCreditHold(ctx context.Context, ev *models.CreditHoldEvent) (*models.Shipment, error)
}

type Policy struct {
	store      Store
	thresholds config.CreditThresholds
	logger     *logrus.Logger
	now        func() time.Time
}

func NewPolicy(store Store, thresholds config.CreditThresholds, logger *logrus.Logger) *Policy {
	return &Policy{
		store:      store,
		thresholds: thresholds,
		logger:     config.LoggerOrDefault(logger),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *Policy) Evaluate(c models.Customer, projected decimal.Decimal) Decision {
	d := Evaluate(p.thresholds, c, projected)
	metrics.ObserveCreditDecision(string(d.Result))
	return d
}

func (p *Policy) customer(ctx context.Context, id int) (*models.Customer, error) {
	c, err := p.store.GetCustomer(ctx, id)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrCustomerNotFound, id)
	}
	return c, err
}

// CanCreateShipment evaluates whether customerID may take on value more exposure.
func (p *Policy) CanCreateShipment(ctx context.Context, customerID int, value decimal.Decimal) (Decision, error) {
	ctx, span := tracer.Start(ctx, "credit.CanCreateShipment", trace.WithAttributes(attribute.Int("customer_id", customerID)))
	defer span.End()

	c, err := p.customer(ctx, customerID)
	if err != nil {
		return Decision{}, err
	}
	d := p.Evaluate(*c, value)
	span.SetAttributes(attribute.String("result", string(d.Result)))
	return d, nil
}

// CheckShipment evaluates a booked shipment and puts it on credit hold when
// the decision needs approval. A shipment already on hold is left as is.
func (p *Policy) CheckShipment(ctx context.Context, shipment models.Shipment) (Decision, error) {
	d, err := p.CanCreateShipment(ctx, shipment.CustomerId, shipment.TotalAmount)
	if err != nil {
		return d, err
	}
	if d.Result != ResultSoftBlock || shipment.CreditHold {
		return d, nil
	}
	if _, err := p.PlaceCreditHold(ctx, shipment.ID, d.Reason, "system"); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return d, nil
		}
		return d, err
	}
	return d, nil
}

// PlaceCreditHold stops a shipment from progressing until released.
func (p *Policy) PlaceCreditHold(ctx context.Context, shipmentID int, reason, actorID string) (*models.Shipment, error) {
	if actorID == "" {
		actorID = "system"
	}
	ev := &models.CreditHoldEvent{
		ShipmentId: shipmentID,
		Action:     models.CreditHoldActionPlace,
		Reason:     reason,
		ActorId:    actorID,
		OccurredAt: p.now(),
	}
	return p.applyHold(ctx, ev)
}

// ReleaseRequest authorises lifting a credit hold.
type ReleaseRequest struct {
	ShipmentId int    `validate:"required,gt=0"`
	ActorId    string `validate:"required,max=64"`
	Notes      string `validate:"max=2000"`
}

func (p *Policy) ReleaseCreditHold(ctx context.Context, req ReleaseRequest) (*models.Shipment, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	ev := &models.CreditHoldEvent{
		ShipmentId: req.ShipmentId,
		Action:     models.CreditHoldActionRelease,
		Notes:      req.Notes,
		ActorId:    req.ActorId,
		OccurredAt: p.now(),
	}
	return p.applyHold(ctx, ev)
}

func (p *Policy) applyHold(ctx context.Context, ev *models.CreditHoldEvent) (*models.Shipment, error) {
	sh, err := p.store.ApplyCreditHold(ctx, ev)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrShipmentNotFound, ev.ShipmentId)
	}
	if err != nil {
		return nil, err
	}
	p.logger.WithFields(logrus.Fields{
		"field":       "CreditHold",
		"shipment_id": ev.ShipmentId,
		"action":      ev.Action,
		"actor_id":    ev.ActorId,
	}).Info("credit hold " + ev.Action)
	return sh, nil
}

func DeliveryReference(shipmentID int) string {
	return fmt.Sprintf("DLV-%d", shipmentID)
}

func PaymentReference(txnID int) string {
	return fmt.Sprintf("PAY-%d", txnID)
}

// UpdateBalanceOnDelivery adds the shipment value to the customer's balance,
// once per shipment. COD-terms customers carry no receivable and are skipped.
func (p *Policy) UpdateBalanceOnDelivery(ctx context.Context, shipment models.Shipment) (applied bool, err error) {
	c, err := p.customer(ctx, shipment.CustomerId)
	if err != nil {
		return false, err
	}
	if c.PaymentTerms.IsCod() || !shipment.TotalAmount.IsPositive() {
		return false, nil
	}
	applied, err = p.store.AdjustCustomerBalanceOnce(ctx, c.ID, models.RoundMoney(shipment.TotalAmount), DeliveryReference(shipment.ID))
	if err != nil {
		config.LogError(p.logger, "policy.go", "UpdateBalanceOnDelivery", "AdjustCustomerBalanceOnce", shipment.ID, err)
		return false, err
	}
	return applied, nil
}

// UpdateBalanceOnPayment takes a received payment off the customer's
// balance. COD-terms customers are skipped as on delivery. Nothing stops the
// same payment being applied twice; ApplyPayment does.
func (p *Policy) UpdateBalanceOnPayment(ctx context.Context, customerID int, amount decimal.Decimal) (applied bool, err error) {
	c, err := p.paymentCustomer(ctx, customerID, amount)
	if err != nil || c == nil {
		return false, err
	}
	if err := p.store.AdjustCustomerBalance(ctx, c.ID, models.RoundMoney(amount).Neg()); err != nil {
		config.LogError(p.logger, "policy.go", "UpdateBalanceOnPayment", "AdjustCustomerBalance", customerID, err)
		return false, err
	}
	return true, nil
}

// ApplyPayment is UpdateBalanceOnPayment keyed on the transaction, so each
// payment reduces the balance at most once.
func (p *Policy) ApplyPayment(ctx context.Context, txn models.Transaction) (applied bool, err error) {
	c, err := p.paymentCustomer(ctx, txn.CustomerId, txn.Amount)
	if err != nil || c == nil {
		return false, err
	}
	applied, err = p.store.AdjustCustomerBalanceOnce(ctx, c.ID, models.RoundMoney(txn.Amount).Neg(), PaymentReference(txn.ID))
	if err != nil {
		config.LogError(p.logger, "policy.go", "ApplyPayment", "AdjustCustomerBalanceOnce", txn.ID, err)
		return false, err
	}
	return applied, nil
}

// paymentCustomer returns nil for COD-terms customers.
func (p *Policy) paymentCustomer(ctx context.Context, customerID int, amount decimal.Decimal) (*models.Customer, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	c, err := p.customer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.PaymentTerms.IsCod() {
		return nil, nil
	}
	return c, nil
}
