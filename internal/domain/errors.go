package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Verification lifecycle errors. Each is terminal for the current code:
// the caller must request a fresh code, not resubmit.
var (
	ErrCodeNotFound      = errors.New("verification code not found")
	ErrCodeExpired       = errors.New("verification code expired")
	ErrCodeMismatch      = errors.New("verification code mismatch")
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
)

// ErrRateExceeded is surfaced immediately and never retried;
// retrying into a rate limit only worsens it.
var ErrRateExceeded = errors.New("rate limit exceeded")

// ErrDispatchFailed indicates a channel send failed after the retry budget.
// For verification it means the stored code is still valid and confirmable.
var ErrDispatchFailed = errors.New("dispatch failed")
