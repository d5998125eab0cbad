/*
Package procure contains the procurement request lifecycle engine.

PURPOSE:
  Domain core for procurement requests: the status state machine, line-item
  totals, the approval workflow, and the audit trail. This package knows
  nothing about HTTP or SQL; it operates on aggregates loaded from and
  committed to a Store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: the request lifecycle enum and its legal transition table
  - Request/LineItem/Approval/Document: the entities owned by a request
  - Aggregate: request plus its owned collections, the unit of persistence
  - Actor: a pre-authenticated caller (id, role, active flag)

DESIGN PRINCIPLES:
  1. Derived values are never trusted from callers: line item totals and the
     request total are always recomputed server-side.
  2. Precision: monetary values use decimal.Decimal, never float64.
  3. Every mutation carries an audit entry committed in the same transaction.
  4. Optimistic concurrency: the aggregate carries a version checked at commit.

SEE ALSO:
  - lifecycle.go: the Engine enforcing status-gated mutations
  - approval.go: the approval Coordinator
  - ledger.go: line item total computation
  - store.go: persistence contracts
*/
package procure

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RequestID string
type ItemID string
type ApprovalID string
type DocumentID string
type UserID string

// NewRequestID returns a fresh identifier for a procurement request.
func NewRequestID() RequestID { return RequestID("req-" + uuid.NewString()) }

func NewItemID() ItemID         { return ItemID("item-" + uuid.NewString()) }
func NewApprovalID() ApprovalID { return ApprovalID("apr-" + uuid.NewString()) }
func NewDocumentID() DocumentID { return DocumentID("doc-" + uuid.NewString()) }

// =============================================================================
// STATUS - Request lifecycle state machine
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusOrdered   Status = "ordered"
	StatusReceived  Status = "received"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// transitions is the canonical allowed-next table. Complete is terminal;
// rejected and cancelled keep a single back-edge to draft.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusPending, StatusCancelled},
	StatusPending:   {StatusApproved, StatusRejected, StatusDraft},
	StatusApproved:  {StatusOrdered, StatusCancelled},
	StatusRejected:  {StatusDraft},
	StatusOrdered:   {StatusReceived, StatusCancelled},
	StatusReceived:  {StatusComplete},
	StatusComplete:  {},
	StatusCancelled: {StatusDraft},
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether target is in the allowed-next set for s.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Editable reports whether the request's own fields and line items may be
// mutated in this status. Only draft and rejected requests are editable.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

// spendStatuses are the statuses counted as committed spend in reports.
var spendStatuses = []Status{StatusApproved, StatusOrdered, StatusReceived, StatusComplete}

// SpendStatuses returns the statuses that count toward spend reporting.
func SpendStatuses() []Status {
	out := make([]Status, len(spendStatuses))
	copy(out, spendStatuses)
	return out
}

// StatusOrder is the display order used by pipeline reports.
var StatusOrder = []Status{
	StatusDraft, StatusPending, StatusApproved, StatusRejected,
	StatusOrdered, StatusReceived, StatusComplete, StatusCancelled,
}

// =============================================================================
// ENUMS - priority, roles, document types, approval state
// =============================================================================

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Role string

const (
	RoleRequester Role = "requester"
	RoleApprover  Role = "approver"
	RoleAdmin     Role = "admin"
)

// CanApprove reports whether the role carries approval rights.
func (r Role) CanApprove() bool { return r == RoleApprover || r == RoleAdmin }

type DocType string

const (
	DocQuote    DocType = "quote"
	DocInvoice  DocType = "invoice"
	DocPO       DocType = "po"
	DocReceipt  DocType = "receipt"
	DocContract DocType = "contract"
	DocOther    DocType = "other"
)

func (d DocType) Valid() bool {
	switch d {
	case DocQuote, DocInvoice, DocPO, DocReceipt, DocContract, DocOther:
		return true
	}
	return false
}

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Decision is the outcome an approver hands down. It maps one-to-one onto the
// non-pending approval states.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) Valid() bool { return d == DecisionApproved || d == DecisionRejected }

// =============================================================================
// ACTOR - pre-authenticated caller
// =============================================================================

// Actor is the already-authenticated caller of an engine operation. The
// engine trusts the role; credential validation happens upstream.
type Actor struct {
	ID       UserID
	Role     Role
	IsActive bool
}

// =============================================================================
// USER - identity consumed by the approval workflow
// =============================================================================

type User struct {
	ID         UserID
	Email      string
	Name       string
	Department string
	Role       Role
	APIKey     string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Actor converts a user record into an engine actor.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, IsActive: u.IsActive}
}

// =============================================================================
// REQUEST - the aggregate root
// =============================================================================

type Request struct {
	ID          RequestID
	RequesterID UserID

	Title       string
	Description string
	Department  string
	Status      Status
	Priority    Priority

	// TotalAmount is derived from line items; never set directly by callers.
	TotalAmount decimal.Decimal
	BudgetCode  string
	FiscalYear  string

	PreferredVendor string
	PONumber        string
	Notes           string

	NeededBy   *time.Time
	OrderedAt  *time.Time
	ReceivedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version backs the optimistic-concurrency check at commit time.
	Version int64
}

// =============================================================================
// LINE ITEM
// =============================================================================

type LineItem struct {
	ID        ItemID
	RequestID RequestID

	Description string
	Quantity    int
	Unit        string

	// UnitPrice is nullable; a nil price is treated as zero when totalling.
	UnitPrice *decimal.Decimal

	// TotalPrice is always unit price times quantity, computed server-side.
	TotalPrice decimal.Decimal

	Vendor    string
	VendorSKU string
	Category  string
	Notes     string

	CreatedAt time.Time
}

// =============================================================================
// APPROVAL
// =============================================================================

type Approval struct {
	ID         ApprovalID
	RequestID  RequestID
	ApproverID UserID

	Status   ApprovalState
	Comments string

	RequestedAt time.Time
	DecidedAt   *time.Time
}

// =============================================================================
// DOCUMENT - file attachment metadata (storage mechanics live elsewhere)
// =============================================================================

type Document struct {
	ID        DocumentID
	RequestID RequestID

	Type             DocType
	Filename         string
	OriginalFilename string
	FilePath         string
	FileSize         int64
	MimeType         string
	Description      string

	UploadedBy UserID
	UploadedAt time.Time
}

// =============================================================================
// AGGREGATE - request plus everything it owns
// =============================================================================

// Aggregate is the unit of load and commit: the request together with its
// line items, approvals, and document metadata. Audit entries are not part
// of the aggregate; they are appended at commit and never read back into it.
type Aggregate struct {
	Request   Request
	LineItems []LineItem
	Approvals []Approval
	Documents []Document
}

// Item returns the line item with the given id, or nil.
func (a *Aggregate) Item(id ItemID) *LineItem {
	for i := range a.LineItems {
		if a.LineItems[i].ID == id {
			return &a.LineItems[i]
		}
	}
	return nil
}

// RemoveItem deletes the line item with the given id. Returns false if the
// item does not belong to this aggregate.
func (a *Aggregate) RemoveItem(id ItemID) bool {
	for i := range a.LineItems {
		if a.LineItems[i].ID == id {
			a.LineItems = append(a.LineItems[:i], a.LineItems[i+1:]...)
			return true
		}
	}
	return false
}

// PendingApprovalFor returns this approver's pending approval, or nil. At
// most one pending approval may exist per (request, approver) pair.
func (a *Aggregate) PendingApprovalFor(approverID UserID) *Approval {
	for i := range a.Approvals {
		ap := &a.Approvals[i]
		if ap.ApproverID == approverID && ap.Status == ApprovalPending {
			return ap
		}
	}
	return nil
}
