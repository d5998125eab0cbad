/*
audit.go - Immutable audit trail entries

PURPOSE:
  Every mutating operation appends exactly one audit entry, committed in the
  same transaction as the mutation it documents. Entries are never updated
  or deleted after insertion; if the surrounding commit rolls back, the
  entry must not persist.
*/
package procure

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditCreated           AuditAction = "created"
	AuditUpdated           AuditAction = "updated"
	AuditSubmitted         AuditAction = "submitted"
	AuditItemAdded         AuditAction = "item_added"
	AuditItemDeleted       AuditAction = "item_deleted"
	AuditApprovalRequested AuditAction = "approval_requested"
	AuditRequestApproved   AuditAction = "request_approved"
	AuditRequestRejected   AuditAction = "request_rejected"
	AuditDocumentUploaded  AuditAction = "document_uploaded"
	AuditDocumentDeleted   AuditAction = "document_deleted"
)

// AuditStatusChanged tags a generic status transition, e.g.
// "status_changed_ordered".
func AuditStatusChanged(target Status) AuditAction {
	return AuditAction("status_changed_" + string(target))
}

// Details is the structured payload of an audit entry: changed fields,
// old/new values, or contextual metadata. Serialized as JSON by stores.
type Details map[string]any

// AuditEntry records who did what to which request. Append-only.
type AuditEntry struct {
	ID        string
	RequestID RequestID
	UserID    UserID
	Action    AuditAction
	Details   Details
	IPAddress string
	CreatedAt time.Time
}

// NewAuditEntry builds an entry stamped at the given time, so callers with
// an injected clock get deterministic audit timestamps.
func NewAuditEntry(requestID RequestID, userID UserID, action AuditAction, details Details, at time.Time) AuditEntry {
	return AuditEntry{
		ID:        "log-" + uuid.NewString(),
		RequestID: requestID,
		UserID:    userID,
		Action:    action,
		Details:   details,
		CreatedAt: at,
	}
}
