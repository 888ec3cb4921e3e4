package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"escrowd/crypto"
	"escrowd/escrow"
	"escrowd/storage"
)

// recordSize is the fixed width of a persisted escrow record:
// buyer (20) + retailer (20) + id (8) + amount (8) + status (1) +
// createdAt (8) + deliveryConfirmedAt (8).
const recordSize = 2*crypto.AddressLength + 8 + 8 + 1 + 8 + 8

// custodySeed salts the custody address derivation so no identity or other
// identifier can collide with a custody account.
var custodySeed = []byte("escrowd/custody/v1/")

var (
	recordKeyPrefix  = []byte("escrow/record/")
	accountKeyPrefix = []byte("escrow/account/")
	custodyKeyPrefix = []byte("escrow/custody/")
)

// EscrowState persists escrow records, account balances and per-escrow
// custody balances over a key-value database. It implements
// escrow.EngineState; serialization of concurrent operations is the engine's
// responsibility, so methods here are plain single-key reads and writes.
type EscrowState struct {
	db storage.Database
}

func NewEscrowState(db storage.Database) *EscrowState {
	return &EscrowState{db: db}
}

func recordKey(id uint64) []byte {
	key := make([]byte, 0, len(recordKeyPrefix)+8)
	key = append(key, recordKeyPrefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

func accountKey(addr [crypto.AddressLength]byte) []byte {
	key := make([]byte, 0, len(accountKeyPrefix)+crypto.AddressLength)
	key = append(key, accountKeyPrefix...)
	return append(key, addr[:]...)
}

func custodyKey(id uint64) []byte {
	key := make([]byte, 0, len(custodyKeyPrefix)+8)
	key = append(key, custodyKeyPrefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

// encodeRecord lays the record out in the fixed-width wire order.
func encodeRecord(rec *escrow.Record) []byte {
	buf := make([]byte, 0, recordSize)
	buf = append(buf, rec.Buyer[:]...)
	buf = append(buf, rec.Retailer[:]...)
	buf = binary.BigEndian.AppendUint64(buf, rec.ID)
	buf = binary.BigEndian.AppendUint64(buf, rec.Amount)
	buf = append(buf, byte(rec.Status))
	buf = binary.BigEndian.AppendUint64(buf, uint64(rec.CreatedAt))
	buf = binary.BigEndian.AppendUint64(buf, uint64(rec.DeliveryConfirmedAt))
	return buf
}

func decodeRecord(buf []byte) (*escrow.Record, error) {
	if len(buf) != recordSize {
		return nil, fmt.Errorf("state: malformed escrow record: %d bytes", len(buf))
	}
	rec := &escrow.Record{}
	offset := 0
	copy(rec.Buyer[:], buf[offset:offset+crypto.AddressLength])
	offset += crypto.AddressLength
	copy(rec.Retailer[:], buf[offset:offset+crypto.AddressLength])
	offset += crypto.AddressLength
	rec.ID = binary.BigEndian.Uint64(buf[offset:])
	offset += 8
	rec.Amount = binary.BigEndian.Uint64(buf[offset:])
	offset += 8
	rec.Status = escrow.Status(buf[offset])
	offset++
	rec.CreatedAt = int64(binary.BigEndian.Uint64(buf[offset:]))
	offset += 8
	rec.DeliveryConfirmedAt = int64(binary.BigEndian.Uint64(buf[offset:]))
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("state: stored escrow record has invalid status %d", rec.Status)
	}
	return rec, nil
}

// EscrowPut persists the record, validating it first so a corrupted value can
// never reach the store.
func (s *EscrowState) EscrowPut(rec *escrow.Record) error {
	sanitized, err := rec.Sanitize()
	if err != nil {
		return err
	}
	return s.db.Put(recordKey(sanitized.ID), encodeRecord(sanitized))
}

// EscrowGet loads the record for the identifier. A missing record is reported
// via the boolean, not an error.
func (s *EscrowState) EscrowGet(id uint64) (*escrow.Record, bool, error) {
	buf, err := s.db.Get(recordKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := decodeRecord(buf)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// CustodyAddress derives the custody account bound to an escrow identifier.
// The derivation is deterministic and seeded, so custody accounts of distinct
// identifiers can never be forged into one another.
func (s *EscrowState) CustodyAddress(id uint64) [crypto.AddressLength]byte {
	payload := make([]byte, 0, len(custodySeed)+8)
	payload = append(payload, custodySeed...)
	payload = binary.BigEndian.AppendUint64(payload, id)
	hash := ethcrypto.Keccak256(payload)
	var addr [crypto.AddressLength]byte
	copy(addr[:], hash[len(hash)-crypto.AddressLength:])
	return addr
}

func (s *EscrowState) readBalance(key []byte) (uint64, error) {
	buf, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(buf) != 8 {
		return 0, fmt.Errorf("state: malformed balance value: %d bytes", len(buf))
	}
	return binary.BigEndian.Uint64(buf), nil
}

func (s *EscrowState) writeBalance(key []byte, balance uint64) error {
	return s.db.Put(key, binary.BigEndian.AppendUint64(nil, balance))
}

// AccountBalance returns the ledger balance for an address; unknown accounts
// hold zero.
func (s *EscrowState) AccountBalance(addr [crypto.AddressLength]byte) (uint64, error) {
	return s.readBalance(accountKey(addr))
}

// SetAccountBalance writes the ledger balance for an address.
func (s *EscrowState) SetAccountBalance(addr [crypto.AddressLength]byte, balance uint64) error {
	return s.writeBalance(accountKey(addr), balance)
}

// Mint credits freshly provisioned funds to an account. Provisioning policy
// lives outside the service; this is the seam genesis seeding and tests use.
func (s *EscrowState) Mint(addr [crypto.AddressLength]byte, amount uint64) error {
	balance, err := s.AccountBalance(addr)
	if err != nil {
		return err
	}
	if balance+amount < balance {
		return fmt.Errorf("state: mint overflows account balance")
	}
	return s.SetAccountBalance(addr, balance+amount)
}

// CustodyBalance returns the amount tracked against the escrow identifier's
// custody account.
func (s *EscrowState) CustodyBalance(id uint64) (uint64, error) {
	return s.readBalance(custodyKey(id))
}

// CustodyCredit increases the custody balance for an identifier.
func (s *EscrowState) CustodyCredit(id uint64, amount uint64) error {
	balance, err := s.CustodyBalance(id)
	if err != nil {
		return err
	}
	if balance+amount < balance {
		return fmt.Errorf("state: custody credit overflows")
	}
	return s.writeBalance(custodyKey(id), balance+amount)
}

// CustodyDebit decreases the custody balance for an identifier, failing when
// the tracked balance is short.
func (s *EscrowState) CustodyDebit(id uint64, amount uint64) error {
	balance, err := s.CustodyBalance(id)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("state: custody debit exceeds balance")
	}
	return s.writeBalance(custodyKey(id), balance-amount)
}
