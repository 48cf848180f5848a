package services

import "errors"

// Required-field errors. Handlers report these to the caller verbatim.
var (
	ErrOwnerRequired    = errors.New("owner id is required")
	ErrSenderRequired   = errors.New("sender id is required")
	ErrReceiverRequired = errors.New("receiver id is required")
	ErrReasonRequired   = errors.New("rejection reason is required")
	ErrUserRequired     = errors.New("user id is required")
)

// ErrForbidden is returned when the actor may not touch the listing.
var ErrForbidden = errors.New("not allowed to modify this listing")

// IsValidationError reports whether err is one of the required-field errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrOwnerRequired) ||
		errors.Is(err, ErrSenderRequired) ||
		errors.Is(err, ErrReceiverRequired) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrUserRequired)
}
