/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these onto status codes; storage implementations
  translate driver errors into this taxonomy.

ERROR CATEGORIES:
  1. Balance errors - Debit floor violations
  2. Ledger errors  - Settlement-reference idempotency violations
  3. Lookup errors  - Missing organizers or entries

Note that a reconciliation discrepancy is NOT an error: it is a reported
finding (see reconcile.go). It never flows through this taxonomy.

SEE ALSO:
  - ledger.go: Returns DuplicateSettlementError
  - balance.go: Returns InsufficientBalanceError
  - store/sqlite: Translates constraint violations into these errors
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a debit would drive a bucket
	// negative. The operation is rejected with no partial mutation.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateSettlement is returned when an entry already exists for the
	// same settlement reference. The original entry stands; from the caller's
	// perspective a retry is an idempotent no-op.
	ErrDuplicateSettlement = errors.New("duplicate settlement reference")

	// ErrOrganizerNotFound is returned when an operation references an
	// organizer that does not exist. Fail fast, no partial work.
	ErrOrganizerNotFound = errors.New("organizer not found")

	// ErrEntryNotFound is returned when a referenced ledger entry is missing.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrInvalidEntryType is returned when an entry carries a type outside
	// the closed enum.
	ErrInvalidEntryType = errors.New("invalid ledger entry type")

	// ErrInvalidBucket is returned for a balance mutation on an unknown bucket.
	ErrInvalidBucket = errors.New("invalid balance bucket")

	// ErrInvalidAmount is returned when a credit/debit amount is zero or
	// negative. Direction is expressed by the operation, never by sign.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a rejected debit.
type InsufficientBalanceError struct {
	OrganizerID OrganizerID
	Bucket      Bucket
	Available   Money
	Requested   Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s: available %s, requested %s",
		e.Bucket, e.OrganizerID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// DuplicateSettlementError provides details about a rejected duplicate append.
type DuplicateSettlementError struct {
	SettlementRef   string
	ExistingEntryID EntryID
}

func (e *DuplicateSettlementError) Error() string {
	return fmt.Sprintf("settlement reference %q already recorded (entry: %s)",
		e.SettlementRef, e.ExistingEntryID)
}

func (e *DuplicateSettlementError) Unwrap() error {
	return ErrDuplicateSettlement
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateSettlement) ||
		errors.Is(err, ErrInvalidEntryType) ||
		errors.Is(err, ErrInvalidBucket) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrganizerNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
