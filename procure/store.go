/*
store.go - Persistence contracts for the lifecycle engine

PURPOSE:
  Defines the aggregate repository the engine talks to. The engine loads an
  aggregate, mutates it in memory, and commits it together with the audit
  entries describing the mutation. The store owns atomicity and conflict
  detection; the engine owns the rules.

COMMIT CONTRACT:
  - CreateAggregate inserts a brand new request with its initial line items
    and audit entries, all or nothing.
  - CommitAggregate persists a mutated aggregate. The write succeeds only if
    the stored version still matches Request.Version (compare-and-set);
    otherwise ErrConflict is returned and nothing is written. On success the
    store bumps Request.Version in place.
  - DeleteAggregate removes a request and cascades to its line items,
    documents, approvals, and audit entries. Same version check.

  Two concurrent operations on one request therefore cannot both succeed
  against stale state: the loser observes ErrConflict and may reload and
  retry. Operations on different requests never contend.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - procure/store: in-memory store for tests
*/
package procure

import "context"

// Store is the aggregate repository consumed by the Engine and Coordinator.
type Store interface {
	// LoadAggregate returns the full aggregate or ErrRequestNotFound.
	LoadAggregate(ctx context.Context, id RequestID) (*Aggregate, error)

	// CreateAggregate inserts a new aggregate atomically with its audit
	// entries. The request must carry Version 1.
	CreateAggregate(ctx context.Context, agg *Aggregate, entries []AuditEntry) error

	// CommitAggregate writes a mutated aggregate atomically with its audit
	// entries, guarded by a version compare-and-set. Returns ErrConflict on a
	// stale version.
	CommitAggregate(ctx context.Context, agg *Aggregate, entries []AuditEntry) error

	// DeleteAggregate removes the request and everything it owns, guarded by
	// the same version check.
	DeleteAggregate(ctx context.Context, id RequestID, version int64) error
}

// Directory resolves user identities. The approval coordinator uses it to
// check a designated approver's role; it never validates credentials.
type Directory interface {
	// GetUser returns the user or ErrUserNotFound.
	GetUser(ctx context.Context, id UserID) (*User, error)
}
