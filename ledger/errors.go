/*
errors.go - Centralized error taxonomy for the ledger engine

PURPOSE:
  All error types in one place. The taxonomy mirrors how callers must
  react: validation and consistency errors are terminal for the request,
  conflict and transient errors are retryable by the caller. The ledger
  itself never retries a write - commit is exactly-once.

ERROR CATEGORIES:
  1. ValidationError  - malformed request, rejected before any store work
  2. ConsistencyError - the mutation would drive a balance negative
  3. NotFoundError    - referenced entry does not exist
  4. ErrConflict      - a competing write invalidated this one's premises
  5. ErrStoreUnavailable - datastore transient failure/timeout

USAGE:
  errors.Is(err, ledger.ErrConsistency) for category checks,
  errors.As(err, &consistencyErr) for the structured payload.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the category sentinel for malformed requests.
	ErrValidation = errors.New("validation failed")

	// ErrConsistency is the category sentinel for mutations that would
	// leave a material's running balance negative at some prefix.
	ErrConsistency = errors.New("stock consistency violation")

	// ErrNotFound is returned when a referenced entry id does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrConflict is returned when a concurrent write on the same material
	// invalidated the in-flight operation. Always safe to retry.
	ErrConflict = errors.New("concurrent write conflict")

	// ErrStoreUnavailable wraps datastore transient failures. Safe to
	// retry with backoff; the caller decides, the ledger never does.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - carry enough context to render a user-facing message
// =============================================================================

// ValidationError rejects a request before any store interaction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConsistencyError reports the first prefix of a material's simulated
// history that goes negative. OffendingQuantity is the magnitude of the
// movement at the failing step, BalanceAtFailure the (negative) balance
// it would produce.
type ConsistencyError struct {
	MaterialID        MaterialID
	OffendingQuantity int64
	BalanceAtFailure  int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("material %s: movement of %d units would leave balance at %d",
		e.MaterialID, e.OffendingQuantity, e.BalanceAtFailure)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// NotFoundError identifies the missing reference: an entry id on the
// mutation paths, a material id on the balance lookup path.
type NotFoundError struct {
	EntryID    EntryID
	MaterialID MaterialID
}

func (e *NotFoundError) Error() string {
	if e.MaterialID != "" {
		return fmt.Sprintf("material %s not found", e.MaterialID)
	}
	return fmt.Sprintf("entry %s not found", e.EntryID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the operation might succeed if repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStoreUnavailable)
}

// IsClientError reports whether the failure is the caller's to fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConsistency)
}

// IsNotFound reports whether the error indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
