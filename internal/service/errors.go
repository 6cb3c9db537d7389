package service

import "errors"

// Precondition errors: detected before any ledger interaction, reported
// synchronously, never retried.
var (
	ErrComplianceRequired    = errors.New("compliance approval required")
	ErrInsufficientAllowance = errors.New("insufficient settlement allowance")
	ErrForbidden             = errors.New("forbidden")
	ErrPropertyNotFound      = errors.New("property not found")
	ErrInvalidInput          = errors.New("invalid input")

	// ErrConflict marks a commit that lost an optimistic-concurrency race:
	// the ledger confirmed the call but the local row changed underneath the
	// commit. Callers refetch and retry the logical operation, never the
	// ledger submission.
	ErrConflict = errors.New("conflicting concurrent update")
)
