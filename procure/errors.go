/*
errors.go - Error taxonomy for the procurement engine

PURPOSE:
  All domain error kinds in one place. The HTTP layer maps these to status
  codes; the engine only promises a distinguishable kind.

ERROR CATEGORIES:
  1. Not-found errors: referenced entities that do not exist
  2. Lifecycle errors: illegal transitions and status-gated mutations
  3. Approval errors: eligibility and pending-state violations
  4. Conflict: optimistic-concurrency failure, retryable by the caller

USAGE:
  if errors.Is(err, procure.ErrInvalidTransition) { ... }

  Structured variants (TransitionError, StatusError) carry context and
  unwrap to the matching sentinel.
*/
package procure

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRequestNotFound is returned when the referenced request does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrItemNotFound is returned when a line item does not belong to the request.
	ErrItemNotFound = errors.New("line item not found")

	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrDocumentNotFound is returned when a document does not belong to the request.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidTransition is returned when the target status is not reachable
	// from the current status. Never coerced, never retried.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrImmutableStatus is returned when a mutation is disallowed for the
	// request's current status.
	ErrImmutableStatus = errors.New("request is immutable in its current status")

	// ErrEmptyLineItems is returned when submitting a request with no line items.
	ErrEmptyLineItems = errors.New("request has no line items")

	// ErrApproverNotEligible is returned when the designated approver lacks
	// approval rights.
	ErrApproverNotEligible = errors.New("user does not have approval rights")

	// ErrApprovalAlreadyPending is returned when an approval is already pending
	// for the same request and approver.
	ErrApprovalAlreadyPending = errors.New("approval already pending from this user")

	// ErrRequestNotPending is returned by approval operations when the request
	// is not in pending status.
	ErrRequestNotPending = errors.New("request is not pending")

	// ErrInvalidDecision is returned when a decision value is neither
	// approved nor rejected.
	ErrInvalidDecision = errors.New("invalid approval decision")

	// ErrConflict is returned when the aggregate changed between load and
	// commit. The caller may retry the whole operation from fresh state; the
	// engine never retries internally.
	ErrConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError reports an illegal status transition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from '%s' to '%s'", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// StatusError reports a mutation blocked by the request's current status.
type StatusError struct {
	Op     string // "update", "delete", "submit", "add_item", ...
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot %s request in '%s' status", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrImmutableStatus }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrDocumentNotFound)
}

// IsClientError returns true if the error is due to invalid caller input or
// a violated precondition, as opposed to an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrImmutableStatus) ||
		errors.Is(err, ErrEmptyLineItems) ||
		errors.Is(err, ErrApproverNotEligible) ||
		errors.Is(err, ErrApprovalAlreadyPending) ||
		errors.Is(err, ErrRequestNotPending) ||
		errors.Is(err, ErrInvalidDecision)
}

// IsRetryable returns true if the operation might succeed when replayed
// against fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
