package order

import "github.com/go-faster/errors"

// Sentinel reasons carried by failure.Error values returned from this package.
var (
	ErrInactiveClient    = errors.New("inactive client")
	ErrEmptyOrder        = errors.New("empty or non-positive order")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrProductInactive   = errors.New("product inactive")
	ErrBelowMinimum      = errors.New("quantity below minimum")
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrInvalidStatus     = errors.New("invalid status")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrNotEditable       = errors.New("order not editable in current status")

	ErrOrderNotFound   = errors.New("order not found")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrClientChanged   = errors.New("client cannot change")
)
