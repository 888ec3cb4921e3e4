package escrow

import "escrowd/crypto"

// Role identifies which stored party an operation requires the caller to be.
type Role uint8

const (
	// RoleAny imposes no caller constraint (auto-release).
	RoleAny Role = iota
	// RoleBuyer requires the caller to equal the record's buyer.
	RoleBuyer
	// RoleRetailer requires the caller to equal the record's retailer.
	RoleRetailer
)

// Authorized is the stateless authorization guard: it compares the caller
// identity against the record field the role demands and never mutates
// anything.
func Authorized(rec *Record, role Role, caller [crypto.AddressLength]byte) bool {
	if rec == nil {
		return false
	}
	switch role {
	case RoleBuyer:
		return caller == rec.Buyer
	case RoleRetailer:
		return caller == rec.Retailer
	case RoleAny:
		return true
	default:
		return false
	}
}
