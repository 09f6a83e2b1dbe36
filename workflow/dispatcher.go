// Package workflow applies shipment and payment events to the finance
// engines, each step at most once per event.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/shipment_finance/cod"
	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/credit"
	"github.com/mmdatafocus/shipment_finance/ledger"
	"github.com/mmdatafocus/shipment_finance/metrics"
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("shipment_finance/workflow")

// Step names double as idempotency handler names.
const (
	StepCreditDelivery = "credit.delivery"
	StepCodExpectation = "cod.expectation"
	StepLedgerPayment  = "ledger.payment"
	StepCreditPayment  = "credit.payment"
	StepLedgerRefund   = "ledger.refund"
	StepCodCollection  = "cod.collection"
)

// permanentErrs fail the same way on every redelivery: bad input, missing
// rows, and precondition violations.
var permanentErrs = []error{
	ErrUnknownEventType,
	utils.ErrValidation,
	models.ErrRecordNotFound,
	models.ErrInvalidTransition,
	models.ErrImmutable,
	models.ErrRefundLimitExceeded,
	credit.ErrCustomerNotFound,
	credit.ErrShipmentNotFound,
	credit.ErrInvalidAmount,
	ledger.ErrInvalidAmount,
	ledger.ErrTransactionNotCompleted,
	ledger.ErrUnbalanced,
	cod.ErrNotCod,
	cod.ErrCollectionNotFound,
	cod.ErrInvalidAmount,
}

// Permanent reports whether err from Process would recur on redelivery, so
// the message should be acked and logged instead of retried.
func Permanent(err error) bool {
	for _, target := range permanentErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Records resolves the rows an event refers to.
type Records interface {
	GetShipment(ctx context.Context, id int) (*models.Shipment, error)
	GetTransaction(ctx context.Context, id int) (*models.Transaction, error)
}

type Engines struct {
	Poster *ledger.Poster
	Credit *credit.Policy
	Cod    *cod.Ledger
}

type Dispatcher struct {
	keys    IdempotencyStore
	records Records
	engines Engines
	locker  utils.Locker
	logger  *logrus.Logger
}

// NewDispatcher wires the engines behind event routing. locker may be nil.
func NewDispatcher(keys IdempotencyStore, records Records, engines Engines, locker utils.Locker, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		keys:    keys,
		records: records,
		engines: engines,
		locker:  locker,
		logger:  config.LoggerOrDefault(logger),
	}
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Process applies ev. Each step keeps its own idempotency key, so a retry
// after a partial failure only redoes the steps that did not succeed.
func (d *Dispatcher) Process(ctx context.Context, ev Event) (err error) {
	defer func() { metrics.ObserveEvent(string(ev.Type), err) }()
	if err := utils.ValidateStruct(ev); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "workflow.Process", trace.WithAttributes(
		attribute.String("event_type", string(ev.Type)),
		attribute.String("event_id", ev.ID),
	))
	defer span.End()

	ctx = utils.SetEventIdInContext(ctx, ev.ID)
	if _, ok := utils.GetActorIdFromContext(ctx); !ok {
		ctx = utils.SetActorIdInContext(ctx, utils.SystemActor)
	}

	steps, customerID, err := d.plan(ctx, ev)
	if err != nil {
		return err
	}

	release := utils.BestEffortLock(ctx, d.locker, d.logger, fmt.Sprintf("finance:customer:%d", customerID), "Dispatcher")
	defer release()

	for _, s := range steps {
		ran, err := runOnce(ctx, d.keys, s.name, ev.ID, s.run)
		if err != nil {
			if !errors.Is(err, ErrIdempotencyInProgress) {
				config.LogError(d.logger, "dispatcher.go", "Process", s.name, ev, err)
			}
			return fmt.Errorf("%s: %w", s.name, err)
		}
		if !ran {
			d.logger.WithFields(utils.ContextFields(ctx)).WithField("step", s.name).Debug("step already applied")
		}
	}
	return nil
}

func (d *Dispatcher) plan(ctx context.Context, ev Event) ([]step, int, error) {
	switch ev.Type {
	case EventShipmentDelivered:
		sh, err := d.records.GetShipment(ctx, ev.ShipmentID)
		if err != nil {
			return nil, 0, fmt.Errorf("shipment %d: %w", ev.ShipmentID, err)
		}
		steps := []step{{StepCreditDelivery, func(ctx context.Context) error {
			_, err := d.engines.Credit.UpdateBalanceOnDelivery(ctx, *sh)
			return err
		}}}
		if sh.IsCod() {
			steps = append(steps, step{StepCodExpectation, func(ctx context.Context) error {
				_, err := d.engines.Cod.RegisterExpectation(ctx, *sh)
				return err
			}})
		}
		return steps, sh.CustomerId, nil

	case EventPaymentCompleted:
		txn, err := d.records.GetTransaction(ctx, ev.TransactionID)
		if err != nil {
			return nil, 0, fmt.Errorf("transaction %d: %w", ev.TransactionID, err)
		}
		return []step{
			{StepLedgerPayment, func(ctx context.Context) error {
				_, err := d.engines.Poster.PostPayment(ctx, *txn)
				if errors.Is(err, ledger.ErrAlreadyPosted) {
					return nil
				}
				return err
			}},
			{StepCreditPayment, func(ctx context.Context) error {
				_, err := d.engines.Credit.ApplyPayment(ctx, *txn)
				return err
			}},
		}, txn.CustomerId, nil

	case EventPaymentRefunded:
		txn, err := d.records.GetTransaction(ctx, ev.TransactionID)
		if err != nil {
			return nil, 0, fmt.Errorf("transaction %d: %w", ev.TransactionID, err)
		}
		return []step{{StepLedgerRefund, func(ctx context.Context) error {
			_, err := d.engines.Poster.PostRefund(ctx, *txn, ev.Amount)
			if errors.Is(err, ledger.ErrAlreadyPosted) {
				return nil
			}
			return err
		}}}, txn.CustomerId, nil

	case EventCodCollected:
		p, err := ev.codPayload()
		if err != nil {
			return nil, 0, err
		}
		sh, err := d.records.GetShipment(ctx, ev.ShipmentID)
		if err != nil {
			return nil, 0, fmt.Errorf("shipment %d: %w", ev.ShipmentID, err)
		}
		return []step{{StepCodCollection, func(ctx context.Context) error {
			c, err := d.engines.Cod.CollectionForShipment(ctx, sh.ID)
			if errors.Is(err, cod.ErrCollectionNotFound) {
				// collected before the delivery event arrived
				c, err = d.engines.Cod.RegisterExpectation(ctx, *sh)
			}
			if err != nil {
				return err
			}
			if c.Status != models.CodStatusPending && c.CollectedBy == p.DriverId {
				// recorded by an earlier attempt of this step
				return nil
			}
			_, err = d.engines.Cod.RecordCollection(ctx, cod.CollectionRequest{
				CollectionId: c.ID,
				Amount:       ev.Amount,
				DriverId:     p.DriverId,
				Method:       p.Method,
				CollectedAt:  ev.OccurredAt,
			})
			return err
		}}}, sh.CustomerId, nil
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrUnknownEventType, ev.Type)
}
