package domain

import "errors"

// Errors shared across the store, snapshot and cart layers. Sessions
// translate these into protocol responses; they never kill a connection.
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotInCart         = errors.New("product not in cart")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
