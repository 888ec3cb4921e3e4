package escrow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"escrowd/crypto"
	"escrowd/events"
)

var errNilState = errors.New("escrow engine: state not configured")

// EngineState is the persistence backend the engine drives. Implementations
// must be strongly consistent: a value written by one call is visible to the
// next. The engine serializes operations itself, so backends never see two
// concurrent calls for the same escrow.
type EngineState interface {
	EscrowGet(id uint64) (*Record, bool, error)
	EscrowPut(rec *Record) error
	AccountBalance(addr [crypto.AddressLength]byte) (uint64, error)
	SetAccountBalance(addr [crypto.AddressLength]byte, balance uint64) error
	CustodyAddress(id uint64) [crypto.AddressLength]byte
	CustodyBalance(id uint64) (uint64, error)
	CustodyCredit(id uint64, amount uint64) error
	CustodyDebit(id uint64, amount uint64) error
}

// Engine owns the escrow state machine. Each operation reads its full
// precondition set, decides, and only then mutates, so a failed call leaves
// no partial state behind. A single mutex provides the transaction boundary;
// the underlying writes themselves are per-key and cannot fail validation.
type Engine struct {
	mu      sync.Mutex
	state   EngineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an engine bound to the given state backend, with a no-op
// event emitter and the wall clock as time source.
func NewEngine(state EngineState) *Engine {
	return &Engine{
		state:   state,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the trusted time source. Primarily for tests needing
// deterministic timestamps; passing nil restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

// transfer moves amount between two ledger accounts, failing without mutation
// when the source balance is short or the destination would overflow.
func (e *Engine) transfer(from, to [crypto.AddressLength]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromBal, err := e.state.AccountBalance(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return ErrInsufficientFunds
	}
	toBal, err := e.state.AccountBalance(to)
	if err != nil {
		return err
	}
	if toBal+amount < toBal {
		return fmt.Errorf("escrow: destination balance overflow")
	}
	if err := e.state.SetAccountBalance(from, fromBal-amount); err != nil {
		return err
	}
	return e.state.SetAccountBalance(to, toBal+amount)
}

// Create allocates a new escrow record and moves the deposit from the buyer's
// account into the custody account bound to the identifier. Record creation
// and fund movement commit together; any failure leaves neither visible.
func (e *Engine) Create(id uint64, buyer, retailer [crypto.AddressLength]byte, amount uint64) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if _, ok, err := e.state.EscrowGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrDuplicateEscrow
	}
	balance, err := e.state.AccountBalance(buyer)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, ErrInsufficientFunds
	}

	rec := &Record{
		ID:        id,
		Buyer:     buyer,
		Retailer:  retailer,
		Amount:    amount,
		Status:    StatusAwaitingDelivery,
		CreatedAt: e.nowFn(),
	}
	if err := e.transfer(buyer, e.state.CustodyAddress(id), amount); err != nil {
		return nil, err
	}
	if err := e.state.CustodyCredit(id, amount); err != nil {
		return nil, err
	}
	if err := e.state.EscrowPut(rec); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(rec))
	return rec.Clone(), nil
}

// ConfirmDelivery records the retailer's delivery claim and starts the
// confirmation window. No funds move. The call is not idempotent: a second
// invocation fails because the record already left AwaitingDelivery.
func (e *Engine) ConfirmDelivery(id uint64, caller [crypto.AddressLength]byte) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !Authorized(rec, RoleRetailer, caller) {
		return nil, ErrUnauthorized
	}
	if rec.Status != StatusAwaitingDelivery {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, rec.Status)
	}

	rec.Status = StatusAwaitingConfirmation
	rec.DeliveryConfirmedAt = e.nowFn()
	if err := e.state.EscrowPut(rec); err != nil {
		return nil, err
	}
	e.emit(NewDeliveryConfirmedEvent(rec))
	return rec.Clone(), nil
}

// ConfirmReceipt is the buyer-initiated release: within the confirmation
// window it pays the custodied amount to the retailer and completes the
// escrow. On the deadline second itself the buyer still wins.
func (e *Engine) ConfirmReceipt(id uint64, caller [crypto.AddressLength]byte) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !Authorized(rec, RoleBuyer, caller) {
		return nil, ErrUnauthorized
	}
	if rec.Status != StatusAwaitingConfirmation {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, rec.Status)
	}
	if WindowElapsed(rec.DeliveryConfirmedAt, e.nowFn()) {
		return nil, ErrConfirmationExpired
	}
	if err := e.settle(rec); err != nil {
		return nil, err
	}
	e.emit(NewCompletedEvent(rec, TriggerReceiptConfirmed))
	return rec.Clone(), nil
}

// AutoRelease is the permissionless fallback settlement: once the
// confirmation window has elapsed, any caller may force the payout the buyer
// failed to confirm. Funds move exactly as in ConfirmReceipt.
func (e *Engine) AutoRelease(id uint64) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != StatusAwaitingConfirmation {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, rec.Status)
	}
	if !WindowElapsed(rec.DeliveryConfirmedAt, e.nowFn()) {
		return nil, ErrAutoReleaseNotReached
	}
	if err := e.settle(rec); err != nil {
		return nil, err
	}
	e.emit(NewCompletedEvent(rec, TriggerAutoReleased))
	return rec.Clone(), nil
}

// settle drains the custody account to the retailer and marks the record
// completed. Callers have already validated status and timing.
func (e *Engine) settle(rec *Record) error {
	custody := e.state.CustodyAddress(rec.ID)
	if err := e.transfer(custody, rec.Retailer, rec.Amount); err != nil {
		return err
	}
	if err := e.state.CustodyDebit(rec.ID, rec.Amount); err != nil {
		return err
	}
	rec.Status = StatusCompleted
	return e.state.EscrowPut(rec)
}

// Get returns a copy of the record for the identifier.
func (e *Engine) Get(id uint64) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}
