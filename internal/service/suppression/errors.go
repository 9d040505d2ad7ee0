package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound     = errors.New("suppression entry not found")
	ErrEmptyAddress = errors.New("email address is required")
	ErrBadScope     = errors.New("tenant scope requires a tenant id")
)
