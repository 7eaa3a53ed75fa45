package types

import (
	"cosmossdk.io/errors"
)

// Exchange error codes. The API facade maps these to HTTP status codes.
var (
	ErrValidation        = errors.Register("exchange", 1, "validation failed")
	ErrUnauthorized      = errors.Register("exchange", 2, "unauthorized")
	ErrForbidden         = errors.Register("exchange", 3, "forbidden")
	ErrNotFound          = errors.Register("exchange", 4, "not found")
	ErrInsufficientFunds = errors.Register("exchange", 5, "insufficient funds")
	ErrInsufficientAsset = errors.Register("exchange", 6, "insufficient asset")
	ErrIllegalState      = errors.Register("exchange", 7, "illegal order state")
	ErrConflict          = errors.Register("exchange", 8, "already exists")
	ErrInternal          = errors.Register("exchange", 9, "internal error")
)
