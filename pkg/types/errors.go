package types

import (
	"errors"
	"fmt"
)

// Base error kinds. Callers dispatch with errors.Is; entity-specific
// sentinels below wrap these so both checks work.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream failure")
	ErrValidation   = errors.New("invalid input")
)

var (
	ErrRequestNotFound      = fmt.Errorf("request %w", ErrNotFound)
	ErrApplicationNotFound  = fmt.Errorf("application %w", ErrNotFound)
	ErrPaymentNotFound      = fmt.Errorf("payment %w", ErrNotFound)
	ErrReviewNotFound       = fmt.Errorf("review %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)

	ErrDuplicateApplication = fmt.Errorf("application already submitted: %w", ErrConflict)
	ErrRequestNotPending    = fmt.Errorf("request no longer pending: %w", ErrConflict)
	ErrReviewExists         = fmt.Errorf("review already submitted: %w", ErrConflict)

	ErrPaymentExists = fmt.Errorf("request already has an active payment: %w", ErrInvalidState)
	ErrPaymentFailed = fmt.Errorf("payment did not succeed: %w", ErrInvalidState)
)
