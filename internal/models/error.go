package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication and admission errors. Handlers collapse these into a
	// uniform response so callers cannot tell why a request was refused.
	ErrAuthFailed  = errors.New("authentication failed")
	ErrLocked      = errors.New("authentication failed: locked")
	ErrRateLimited = errors.New("too many requests")

	// MFA errors, distinguishable only after level-1 auth has passed
	ErrMFAInvalid        = errors.New("invalid passcode")
	ErrMFAExpired        = errors.New("passcode expired")
	ErrMFAResendTooSoon  = errors.New("passcode already sent, retry later")
	ErrMFANotConfigured  = errors.New("mfa channel not configured")
	ErrMFADispatchFailed = errors.New("passcode dispatch failed")

	// ErrRemoteExecDisabled is returned when remote execution is turned off
	// or no MFA channel is available to gate it.
	ErrRemoteExecDisabled = errors.New("remote execution is disabled on the server")

	// ErrStorage is surfaced only after the breaker's rebuild-and-retry
	// attempt has failed. Fatal to the request, not to the process.
	ErrStorage = errors.New("storage failure")

	// Session and single-use token errors
	ErrSessionInvalid   = errors.New("invalid session")
	ErrSessionExpired   = errors.New("session expired")
	ErrTokenAlreadyUsed = errors.New("token already used")
	ErrTokenUnknown     = errors.New("unknown token")
)
