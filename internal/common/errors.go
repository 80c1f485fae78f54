// Package common defines shared constants and sentinel errors used across
// the storage and integrity layers of SentryVault. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound   = errors.New("not found")
	ErrIO         = errors.New("i/o failure")
	ErrCrypto     = errors.New("crypto failure")
	ErrValidation = errors.New("validation failure")

	// Generic/internal flow control.
	ErrInternal = errors.New("internal error")

	// Monitor lifecycle errors.
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)
