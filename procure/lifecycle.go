/*
lifecycle.go - Request lifecycle engine

PURPOSE:
  Owns the canonical state machine for a procurement request and gates every
  mutation on the current status:

    draft ──▶ pending ──▶ approved ──▶ ordered ──▶ received ──▶ complete
      │          │            │            │
      │          ▼            ▼            ▼
      │       rejected    cancelled    cancelled
      │          │            │
      └──────────┴────────────┘  (back to draft)

  Each operation is one atomic unit of work: load the aggregate, validate
  the state-dependent preconditions, mutate in memory, recompute the derived
  total, and commit together with exactly one audit entry. A concurrent
  writer makes the commit fail with ErrConflict; nothing is half-applied.

OPERATIONS:
  Create      always starts in draft; initial line items are totalled
  Update      field patch, draft/rejected only, audited with old/new values
  Delete      draft only, cascades everything the request owns
  Submit      draft with at least one line item, moves to pending
  Transition  generic status move per the allowed-next table
  AddLineItem / UpdateLineItem / DeleteLineItem
              draft/rejected only, request total recomputed every time

SEE ALSO:
  - approval.go: how approval decisions feed back into request status
  - ledger.go: total computation
*/
package procure

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Engine executes lifecycle operations against the aggregate store.
type Engine struct {
	Store Store

	// Now is the clock used for timestamps. Defaults to time.Now in UTC.
	Now func() time.Time
}

// NewEngine returns an engine bound to the given store.
func NewEngine(store Store) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// CREATE / GET
// =============================================================================

// CreateRequestInput carries caller-supplied fields for a new request.
type CreateRequestInput struct {
	Title           string
	Description     string
	Department      string
	Priority        Priority
	BudgetCode      string
	FiscalYear      string
	PreferredVendor string
	NeededBy        *time.Time
	Notes           string
	LineItems       []LineItemInput
}

// Create builds a new request in draft status, persists the supplied line
// items with computed totals, and appends a "created" audit entry.
func (e *Engine) Create(ctx context.Context, actor Actor, in CreateRequestInput) (*Aggregate, error) {
	now := e.now()
	priority := in.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	agg := &Aggregate{
		Request: Request{
			ID:              NewRequestID(),
			RequesterID:     actor.ID,
			Title:           in.Title,
			Description:     in.Description,
			Department:      in.Department,
			Status:          StatusDraft,
			Priority:        priority,
			BudgetCode:      in.BudgetCode,
			FiscalYear:      in.FiscalYear,
			PreferredVendor: in.PreferredVendor,
			NeededBy:        in.NeededBy,
			Notes:           in.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
			Version:         1,
		},
	}

	for _, itemIn := range in.LineItems {
		agg.LineItems = append(agg.LineItems, newLineItem(agg.Request.ID, itemIn, e.now))
	}
	agg.Request.TotalAmount = ComputeTotal(agg.LineItems)

	entry := NewAuditEntry(agg.Request.ID, actor.ID, AuditCreated, Details{"title": in.Title}, now)
	if err := e.Store.CreateAggregate(ctx, agg, []AuditEntry{entry}); err != nil {
		return nil, err
	}
	return agg, nil
}

// Get loads the full aggregate.
func (e *Engine) Get(ctx context.Context, id RequestID) (*Aggregate, error) {
	return e.Store.LoadAggregate(ctx, id)
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

// RequestPatch is a partial update; nil fields are left untouched.
type RequestPatch struct {
	Title           *string
	Description     *string
	Department      *string
	Priority        *Priority
	BudgetCode      *string
	FiscalYear      *string
	PreferredVendor *string
	NeededBy        *time.Time
	Notes           *string
	PONumber        *string
}

// Update applies a field patch. Allowed only in draft or rejected status.
// Every changed field is recorded as {old, new} in a single "updated" audit
// entry; the entry (and the commit) is skipped when nothing changed.
func (e *Engine) Update(ctx context.Context, actor Actor, id RequestID, patch RequestPatch) (*Aggregate, error) {
	agg, err := e.Store.LoadAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !agg.Request.Status.Editable() {
		return nil, &StatusError{Op: "edit", Status: agg.Request.Status}
	}

	changes := Details{}
	req := &agg.Request

	setString := func(field string, dst *string, v *string) {
		if v != nil && *dst != *v {
			changes[field] = Details{"old": *dst, "new": *v}
			*dst = *v
		}
	}

	setString("title", &req.Title, patch.Title)
	setString("description", &req.Description, patch.Description)
	setString("department", &req.Department, patch.Department)
	setString("budget_code", &req.BudgetCode, patch.BudgetCode)
	setString("fiscal_year", &req.FiscalYear, patch.FiscalYear)
	setString("preferred_vendor", &req.PreferredVendor, patch.PreferredVendor)
	setString("notes", &req.Notes, patch.Notes)
	setString("po_number", &req.PONumber, patch.PONumber)

	if patch.Priority != nil && req.Priority != *patch.Priority {
		changes["priority"] = Details{"old": string(req.Priority), "new": string(*patch.Priority)}
		req.Priority = *patch.Priority
	}
	if patch.NeededBy != nil && (req.NeededBy == nil || !req.NeededBy.Equal(*patch.NeededBy)) {
		old := ""
		if req.NeededBy != nil {
			old = req.NeededBy.Format(time.RFC3339)
		}
		changes["needed_by"] = Details{"old": old, "new": patch.NeededBy.Format(time.RFC3339)}
		nb := *patch.NeededBy
		req.NeededBy = &nb
	}

	if len(changes) == 0 {
		return agg, nil
	}

	now := e.now()
	req.UpdatedAt = now
	entry := NewAuditEntry(id, actor.ID, AuditUpdated, changes, now)
	if err := e.Store.CommitAggregate(ctx, agg, []AuditEntry{entry}); err != nil {
		return nil, err
	}
	return agg, nil
}

// Delete removes a request and cascades to everything it owns. Allowed only
// in draft status.
func (e *Engine) Delete(ctx context.Context, actor Actor, id RequestID) error {
	agg, err := e.Store.LoadAggregate(ctx, id)
	if err != nil {
		return err
	}
	if agg.Request.Status != StatusDraft {
		return &StatusError{Op: "delete", Status: agg.Request.Status}
	}
	return e.Store.DeleteAggregate(ctx, id, agg.Request.Version)
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

// Submit moves a draft request to pending. The request must have at least
// one line item regardless of status.
func (e *Engine) Submit(ctx context.Context, actor Actor, id RequestID) (*Aggregate, error) {
	agg, err := e.Store.LoadAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(agg.LineItems) == 0 {
		return nil, ErrEmptyLineItems
	}
	if agg.Request.Status != StatusDraft {
		return nil, &StatusError{Op: "submit", Status: agg.Request.Status}
	}

	now := e.now()
	agg.Request.Status = StatusPending
	agg.Request.UpdatedAt = now

	entry := NewAuditEntry(id, actor.ID, AuditSubmitted, nil, now)
	if err := e.Store.CommitAggregate(ctx, agg, []AuditEntry{entry}); err != nil {
		return nil, err
	}
	return agg, nil
}

// Transition moves a request to target per the allowed-next table. Reaching
// ordered stamps OrderedAt; reaching received stamps ReceivedAt. The status
// is unchanged on failure.
func (e *Engine) Transition(ctx context.Context, actor Actor, id RequestID, target Status, notes string) (*Aggregate, error) {
	if !target.Valid() {
		return nil, &TransitionError{From: "", To: target}
	}

	agg, err := e.Store.LoadAggregate(ctx, id)
	if err != nil {
		return nil, err
	}

	from := agg.Request.Status
	if !from.CanTransitionTo(target) {
		return nil, &TransitionError{From: from, To: target}
	}

	now := e.now()
	agg.Request.Status = target
	agg.Request.UpdatedAt = now
	switch target {
	case StatusOrdered:
		agg.Request.OrderedAt = &now
	case StatusReceived:
		agg.Request.ReceivedAt = &now
	}

	entry := NewAuditEntry(id, actor.ID, AuditStatusChanged(target), Details{
		"from":  string(from),
		"to":    string(target),
		"notes": notes,
	}, now)
	if err := e.Store.CommitAggregate(ctx, agg, []AuditEntry{entry}); err != nil {
		return nil, err
	}
	return agg, nil
}

// =============================================================================
// LINE ITEM MUTATIONS
// =============================================================================

// AddLineItem appends a line item and recomputes the request total. Allowed
// only in draft or rejected status.
func (e *Engine) AddLineItem(ctx context.Context, actor Actor, id RequestID, in LineItemInput) (*LineItem, error) {
	agg, err := e.Store.LoadAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !agg.Request.Status.Editable() {
		return nil, &StatusError{Op: "add items to", Status: agg.Request.Status}
	}

	now := e.now()
	item := newLineItem(id, in, e.now)
	agg.LineItems = append(agg.LineItems, item)
	agg.Request.TotalAmount = ComputeTotal(agg.LineItems)
	agg.Request.UpdatedAt = now

	entry := NewAuditEntry(id, actor.ID, AuditItemAdded, Details{"description": item.Description}, now)
	if err := e.Store.CommitAggregate(ctx, agg, []AuditEntry{entry}); err != nil {
		return nil, err
	}
	return &item, nil
}

// OptionalPrice distinguishes "leave the unit price unchanged" (Set false)
// from "set it to Value", where a nil Value clears the price.
type OptionalPrice struct {
	Set   bool
	Value *decimal.Decimal
}

// LineItemPatch is a partial line item update; unset fields are left
// untouched. There is no total price field: totals are always recomputed.
type LineItemPatch struct {
	Description *string
	Quantity    *int
	Unit        *string
	UnitPrice   OptionalPrice
	Vendor      *string
	VendorSKU   *string
	Category    *string
	Notes       *string
}

// UpdateLineItem patches a line item, recomputes its total and the request
// total. Allowed only in draft or rejected status.
func (e *Engine) UpdateLineItem(ctx context.Context, actor Actor, id RequestID, itemID ItemID, patch LineItemPatch) (*LineItem, error) {
	agg, err := e.Store.LoadAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	item := agg.Item(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if !agg.Request.Status.Editable() {
		return nil, &StatusError{Op: "edit items on", Status: agg.Request.Status}
	}

	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Quantity != nil {
		qty := *patch.Quantity
		if qty < 1 {
			qty = 1
		}
		item.Quantity = qty
	}
	if patch.Unit != nil {
		item.Unit = *patch.Unit
	}
	if patch.UnitPrice.Set {
		item.UnitPrice = patch.UnitPrice.Value
	}
	if patch.Vendor != nil {
		item.Vendor = *patch.Vendor
	}
	if patch.VendorSKU != nil {
		item.VendorSKU = *patch.VendorSKU
	}
	if patch.Category != nil {
		item.Category = *patch.Category
	}
	if patch.Notes != nil {
		item.Notes = *patch.Notes
	}

	item.TotalPrice = ItemTotal(item.UnitPrice, item.Quantity)
	agg.Request.TotalAmount = ComputeTotal(agg.LineItems)
	agg.Request.UpdatedAt = e.now()

	// No dedicated audit action for item edits; the commit still carries the
	// recomputed totals atomically.
	if err := e.Store.CommitAggregate(ctx, agg, nil); err != nil {
		return nil, err
	}
	out := *item
	return &out, nil
}

// DeleteLineItem removes a line item and recomputes the request total.
// Allowed only in draft or rejected status.
func (e *Engine) DeleteLineItem(ctx context.Context, actor Actor, id RequestID, itemID ItemID) error {
	agg, err := e.Store.LoadAggregate(ctx, id)
	if err != nil {
		return err
	}
	if agg.Item(itemID) == nil {
		return ErrItemNotFound
	}
	if !agg.Request.Status.Editable() {
		return &StatusError{Op: "delete items from", Status: agg.Request.Status}
	}

	now := e.now()
	agg.RemoveItem(itemID)
	agg.Request.TotalAmount = ComputeTotal(agg.LineItems)
	agg.Request.UpdatedAt = now

	entry := NewAuditEntry(id, actor.ID, AuditItemDeleted, Details{"item_id": string(itemID)}, now)
	return e.Store.CommitAggregate(ctx, agg, []AuditEntry{entry})
}
