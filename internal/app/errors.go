package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive value with at most two decimal places")
	ErrAmountNotConfirmed   = errors.New("amount was not confirmed")
	ErrSessionExpired       = errors.New("payment session expired")
	ErrSessionForbidden     = errors.New("payment session belongs to another vendor")
	ErrInvalidSessionState  = errors.New("payment session is not in the expected state")
	ErrNotVendor            = errors.New("account is not a vendor account")
	ErrNotCustomer          = errors.New("account is not a customer account")
	ErrFacePayNotRegistered = errors.New("facepay is not registered for this account")
	ErrFacePayDisabled      = errors.New("facepay is disabled for this account")
	ErrFacePayLimitExceeded = errors.New("amount exceeds facepay limit")
	ErrFaceMismatch         = errors.New("face verification failed")
	ErrPINMismatch          = errors.New("pin verification failed")
	ErrInvalidPIN           = errors.New("facepay pin must be exactly 6 digits")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSelfTransfer         = errors.New("cannot transfer to the same account")
	ErrRateLimited          = errors.New("too many verification attempts")
	ErrInvalidLoginPIN      = errors.New("login pin must be exactly 4 digits")
	ErrInvalidAccount       = errors.New("name and mobile are required")
)

// RateLimitedError carries the retry hint for ErrRateLimited.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s; retry after %ds", ErrRateLimited, e.RetryAfterSeconds)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
