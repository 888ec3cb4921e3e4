package escrow

import (
	"strconv"

	"escrowd/crypto"
	"escrowd/events"
)

const (
	EventTypeCreated           = "escrow.created"
	EventTypeDeliveryConfirmed = "escrow.delivery_confirmed"
	EventTypeCompleted         = "escrow.completed"
)

// Triggers recorded on completion events.
const (
	TriggerReceiptConfirmed = "receipt_confirmed"
	TriggerAutoReleased     = "auto_released"
)

// NewCreatedEvent returns the canonical event payload for a newly created and
// funded escrow.
func NewCreatedEvent(rec *Record) *events.Event {
	return newEscrowEvent(EventTypeCreated, rec, "")
}

// NewDeliveryConfirmedEvent returns the payload emitted when the retailer
// confirms delivery and the confirmation window starts.
func NewDeliveryConfirmedEvent(rec *Record) *events.Event {
	return newEscrowEvent(EventTypeDeliveryConfirmed, rec, "")
}

// NewCompletedEvent returns the payload emitted on settlement, tagged with
// which path triggered it.
func NewCompletedEvent(rec *Record, trigger string) *events.Event {
	return newEscrowEvent(EventTypeCompleted, rec, trigger)
}

func newEscrowEvent(eventType string, rec *Record, trigger string) *events.Event {
	attrs := make(map[string]string)
	if rec == nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := rec.Sanitize()
	if err != nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["buyer"] = crypto.MustNewAddress(sanitized.Buyer[:]).String()
	attrs["retailer"] = crypto.MustNewAddress(sanitized.Retailer[:]).String()
	attrs["amount"] = strconv.FormatUint(sanitized.Amount, 10)
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	if sanitized.DeliveryConfirmedAt != 0 {
		attrs["deliveryConfirmedAt"] = strconv.FormatInt(sanitized.DeliveryConfirmedAt, 10)
		attrs["confirmationDeadline"] = strconv.FormatInt(ConfirmationDeadline(sanitized.DeliveryConfirmedAt), 10)
	}
	if trigger != "" {
		attrs["trigger"] = trigger
	}
	return &events.Event{Type: eventType, Attributes: attrs}
}
