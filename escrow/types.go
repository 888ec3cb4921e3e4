package escrow

import (
	"fmt"

	"escrowd/crypto"
)

// Status represents the lifecycle states of an escrow record. The order is
// total: a record only ever moves forward through it.
type Status uint8

const (
	StatusAwaitingDelivery     Status = 0x01 // funds custodied, waiting on the retailer
	StatusAwaitingConfirmation Status = 0x02 // delivery confirmed, waiting on the buyer
	StatusCompleted            Status = 0x03 // funds paid out, terminal
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusAwaitingDelivery, StatusAwaitingConfirmation, StatusCompleted:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusAwaitingDelivery:
		return "awaiting_delivery"
	case StatusAwaitingConfirmation:
		return "awaiting_confirmation"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Record captures one buyer/retailer transaction managed by the engine.
// Identifier, parties and amount are immutable after creation; Status is the
// sole completion authority and DeliveryConfirmedAt is set exactly once, when
// the retailer confirms delivery.
type Record struct {
	ID                  uint64
	Buyer               [crypto.AddressLength]byte
	Retailer            [crypto.AddressLength]byte
	Amount              uint64
	Status              Status
	CreatedAt           int64
	DeliveryConfirmedAt int64
}

// Clone returns a copy of the record so callers can mutate it without
// affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Sanitize validates the record against its structural invariants and returns
// a clone. It does not mutate the original value.
func (r *Record) Sanitize() (*Record, error) {
	if r == nil {
		return nil, fmt.Errorf("nil escrow record")
	}
	if !r.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", r.Status)
	}
	if r.Amount == 0 {
		return nil, fmt.Errorf("escrow amount must be positive")
	}
	confirmed := r.DeliveryConfirmedAt != 0
	if confirmed != (r.Status != StatusAwaitingDelivery) {
		return nil, fmt.Errorf("delivery timestamp inconsistent with status %s", r.Status)
	}
	return r.Clone(), nil
}
