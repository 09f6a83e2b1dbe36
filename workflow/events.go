package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventShipmentDelivered EventType = "shipment.delivered"
	EventPaymentCompleted  EventType = "payment.completed"
	EventPaymentRefunded   EventType = "payment.refunded"
	EventCodCollected      EventType = "cod.collected"
)

var ErrUnknownEventType = errors.New("workflow: unknown event type")

// Event is a shipment or payment fact published by the operational system.
type Event struct {
	ID            string          `json:"id" validate:"required,max=100"`
	Type          EventType       `json:"type" validate:"required"`
	ShipmentID    int             `json:"shipment_id"`
	TransactionID int             `json:"transaction_id"`
	CustomerID    int             `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// CodCollectedPayload is the Payload of a cod.collected event.
type CodCollectedPayload struct {
	DriverId string `json:"driver_id" validate:"required,max=64"`
	Method   string `json:"method" validate:"required,max=20"`
}

// ParseEvent decodes and validates a message body.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := utils.ValidateStruct(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (e Event) codPayload() (CodCollectedPayload, error) {
	var p CodCollectedPayload
	if len(e.Payload) == 0 {
		return p, fmt.Errorf("%w: cod.collected event %s has no payload", utils.ErrValidation, e.ID)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode cod payload: %w", err)
	}
	return p, utils.ValidateStruct(p)
}
