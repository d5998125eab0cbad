/*
approval.go - Approval coordinator

PURPOSE:
  Manages approval records tied to a request and a designated approver, and
  resolves approve/reject decisions into request status changes.

DECISION MODEL:
  First decision wins. Multiple approvers may hold independent pending
  approval records, but the first decision received flips the request to
  approved or rejected; every later decision observes ErrRequestNotPending
  and changes nothing. This is a single-rubber-stamp model, not a quorum.

  A decision does not require a prior approval request: any caller the HTTP
  layer has verified as approver or admin may decide directly, in which case
  the approval record is created implicitly.

CONCURRENCY:
  Two racing decisions against the same pending request cannot both flip the
  status: the commit's version check fails for the loser, which then reloads
  and sees the request is no longer pending.
*/
package procure

import (
	"context"
	"time"
)

// Coordinator resolves approval requests and decisions.
type Coordinator struct {
	Store     Store
	Directory Directory

	// Now is the clock used for timestamps. Defaults to time.Now in UTC.
	Now func() time.Time
}

// NewCoordinator returns a coordinator bound to the given store and user
// directory.
func NewCoordinator(store Store, dir Directory) *Coordinator {
	return &Coordinator{Store: store, Directory: dir}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// RequestApproval asks a specific user to decide on a pending request.
// Fails unless the request is pending, the approver holds approval rights,
// and no approval from that user is already pending.
func (c *Coordinator) RequestApproval(ctx context.Context, actor Actor, requestID RequestID, approverID UserID) (*Approval, error) {
	agg, err := c.Store.LoadAggregate(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if agg.Request.Status != StatusPending {
		return nil, ErrRequestNotPending
	}

	approver, err := c.Directory.GetUser(ctx, approverID)
	if err != nil {
		return nil, err
	}
	if !approver.Role.CanApprove() {
		return nil, ErrApproverNotEligible
	}

	if agg.PendingApprovalFor(approverID) != nil {
		return nil, ErrApprovalAlreadyPending
	}

	now := c.now()
	approval := Approval{
		ID:          NewApprovalID(),
		RequestID:   requestID,
		ApproverID:  approverID,
		Status:      ApprovalPending,
		RequestedAt: now,
	}
	agg.Approvals = append(agg.Approvals, approval)

	entry := NewAuditEntry(requestID, actor.ID, AuditApprovalRequested, Details{
		"approver_id":   string(approverID),
		"approver_name": approver.Name,
	}, now)
	if err := c.Store.CommitAggregate(ctx, agg, []AuditEntry{entry}); err != nil {
		return nil, err
	}
	return &approval, nil
}

// Decide records the actor's decision and propagates it to the request
// status. If the actor holds no pending approval record one is created
// implicitly. Fails with ErrRequestNotPending once any decision has landed.
func (c *Coordinator) Decide(ctx context.Context, actor Actor, requestID RequestID, decision Decision, comments string) (*Approval, error) {
	if !decision.Valid() {
		return nil, ErrInvalidDecision
	}

	agg, err := c.Store.LoadAggregate(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if agg.Request.Status != StatusPending {
		return nil, ErrRequestNotPending
	}

	now := c.now()
	approval := agg.PendingApprovalFor(actor.ID)
	if approval == nil {
		agg.Approvals = append(agg.Approvals, Approval{
			ID:          NewApprovalID(),
			RequestID:   requestID,
			ApproverID:  actor.ID,
			Status:      ApprovalPending,
			RequestedAt: now,
		})
		approval = &agg.Approvals[len(agg.Approvals)-1]
	}

	approval.Status = ApprovalState(decision)
	approval.Comments = comments
	approval.DecidedAt = &now

	action := AuditRequestApproved
	if decision == DecisionApproved {
		agg.Request.Status = StatusApproved
	} else {
		agg.Request.Status = StatusRejected
		action = AuditRequestRejected
	}
	agg.Request.UpdatedAt = now

	entry := NewAuditEntry(requestID, actor.ID, action, Details{"comments": comments}, now)
	if err := c.Store.CommitAggregate(ctx, agg, []AuditEntry{entry}); err != nil {
		return nil, err
	}
	out := *approval
	return &out, nil
}
