package market

import "errors"

// Sentinel errors for the pricing and settlement core. All of these are
// recoverable and reported to the caller; none should crash the process.
var (
	// Reservation time.
	ErrItemNotFound = errors.New("item not found")
	ErrItemInactive = errors.New("item is not active")
	ErrLockNotFound = errors.New("price lock not found")

	// Settlement time.
	ErrOrderNotFound       = errors.New("order not found")
	ErrSessionMismatch     = errors.New("session does not own this order")
	ErrOrderAlreadySettled = errors.New("order already settled")
	ErrNoValidReservations = errors.New("no valid reservations to settle")

	// Configuration time.
	ErrInvalidPriceRange = errors.New("invalid price range: need 0 < floor <= base <= cap and floor < cap")
	ErrInvalidEventKind  = errors.New("invalid market event kind")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)
