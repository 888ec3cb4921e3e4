package escrow

// ConfirmationWindow is the fixed period, in seconds, after delivery
// confirmation during which the buyer may confirm receipt. Once it elapses
// the escrow becomes eligible for permissionless auto-release.
const ConfirmationWindow int64 = 7 * 24 * 60 * 60

// ConfirmationDeadline returns the last instant at which the buyer may still
// confirm receipt. The deadline second itself belongs to the buyer.
func ConfirmationDeadline(deliveryConfirmedAt int64) int64 {
	return deliveryConfirmedAt + ConfirmationWindow
}

// WindowElapsed reports whether the confirmation window has passed. Both
// settlement paths are gated on this single predicate so the boundary instant
// satisfies exactly one of them: at now == deadline the buyer can still
// confirm and auto-release is rejected; one second later the roles flip.
func WindowElapsed(deliveryConfirmedAt, now int64) bool {
	return now > ConfirmationDeadline(deliveryConfirmedAt)
}
