package procure_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adukes40/ReqPath/procure"
	"github.com/adukes40/ReqPath/procure/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var requester = procure.Actor{ID: "user-req", Role: procure.RoleRequester, IsActive: true}

func newTestEngine() (*procure.Engine, *store.Memory) {
	mem := store.NewMemory()
	return procure.NewEngine(mem), mem
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func itemInput(desc string, qty int, price string) procure.LineItemInput {
	in := procure.LineItemInput{Description: desc, Quantity: qty}
	if price != "" {
		in.UnitPrice = decPtr(price)
	}
	return in
}

// createDraft builds a draft request with the given line items.
func createDraft(t *testing.T, engine *procure.Engine, items ...procure.LineItemInput) *procure.Aggregate {
	t.Helper()
	agg, err := engine.Create(context.Background(), requester, procure.CreateRequestInput{
		Title:     "Standing desks",
		LineItems: items,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return agg
}

// advance walks a request through transitions until it reaches target.
func advance(t *testing.T, engine *procure.Engine, id procure.RequestID, path ...procure.Status) {
	t.Helper()
	ctx := context.Background()
	for _, target := range path {
		var err error
		if target == procure.StatusPending {
			_, err = engine.Submit(ctx, requester, id)
		} else {
			_, err = engine.Transition(ctx, requester, id, target, "")
		}
		if err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}
}

func lastAudit(t *testing.T, mem *store.Memory, id procure.RequestID) procure.AuditEntry {
	t.Helper()
	entries := mem.AuditFor(id)
	if len(entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return entries[len(entries)-1]
}

// =============================================================================
// STATE MACHINE TESTS
// =============================================================================

func TestTransitionTable(t *testing.T) {
	all := []procure.Status{
		procure.StatusDraft, procure.StatusPending, procure.StatusApproved,
		procure.StatusRejected, procure.StatusOrdered, procure.StatusReceived,
		procure.StatusComplete, procure.StatusCancelled,
	}
	allowed := map[procure.Status][]procure.Status{
		procure.StatusDraft:     {procure.StatusPending, procure.StatusCancelled},
		procure.StatusPending:   {procure.StatusApproved, procure.StatusRejected, procure.StatusDraft},
		procure.StatusApproved:  {procure.StatusOrdered, procure.StatusCancelled},
		procure.StatusRejected:  {procure.StatusDraft},
		procure.StatusOrdered:   {procure.StatusReceived, procure.StatusCancelled},
		procure.StatusReceived:  {procure.StatusComplete},
		procure.StatusComplete:  {},
		procure.StatusCancelled: {procure.StatusDraft},
	}

	for _, from := range all {
		want := allowed[from]
		for _, to := range all {
			expected := false
			for _, a := range want {
				if a == to {
					expected = true
				}
			}
			if got := from.CanTransitionTo(to); got != expected {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, expected)
			}
		}
	}
}

func TestTransition_Rejected_StatusUnchanged(t *testing.T) {
	// GIVEN: A draft request
	// WHEN: Transitioning straight to approved (not reachable from draft)
	// THEN: The call fails and the stored status is still draft

	engine, _ := newTestEngine()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))

	_, err := engine.Transition(context.Background(), requester, agg.Request.ID, procure.StatusApproved, "")
	if !errors.Is(err, procure.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	var terr *procure.TransitionError
	if !errors.As(err, &terr) || terr.From != procure.StatusDraft || terr.To != procure.StatusApproved {
		t.Fatalf("expected TransitionError{draft, approved}, got %#v", err)
	}

	stored, _ := engine.Get(context.Background(), agg.Request.ID)
	if stored.Request.Status != procure.StatusDraft {
		t.Errorf("status changed on failed transition: %s", stored.Request.Status)
	}
}

func TestTransition_CompleteIsTerminal(t *testing.T) {
	engine, _ := newTestEngine()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	advance(t, engine, agg.Request.ID,
		procure.StatusPending, procure.StatusApproved, procure.StatusOrdered,
		procure.StatusReceived, procure.StatusComplete)

	for _, target := range []procure.Status{
		procure.StatusDraft, procure.StatusPending, procure.StatusCancelled,
	} {
		if _, err := engine.Transition(context.Background(), requester, agg.Request.ID, target, ""); !errors.Is(err, procure.ErrInvalidTransition) {
			t.Errorf("complete -> %s: expected ErrInvalidTransition, got %v", target, err)
		}
	}
}

func TestTransition_StampsOrderedAndReceived(t *testing.T) {
	engine, _ := newTestEngine()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	advance(t, engine, agg.Request.ID, procure.StatusPending, procure.StatusApproved, procure.StatusOrdered)

	stored, _ := engine.Get(context.Background(), agg.Request.ID)
	if stored.Request.OrderedAt == nil {
		t.Fatal("OrderedAt not stamped on ordered")
	}
	if stored.Request.ReceivedAt != nil {
		t.Fatal("ReceivedAt stamped early")
	}

	advance(t, engine, agg.Request.ID, procure.StatusReceived)
	stored, _ = engine.Get(context.Background(), agg.Request.ID)
	if stored.Request.ReceivedAt == nil {
		t.Fatal("ReceivedAt not stamped on received")
	}
}

func TestTransition_AuditCarriesFromAndTo(t *testing.T) {
	engine, mem := newTestEngine()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	advance(t, engine, agg.Request.ID, procure.StatusPending)

	entry := lastAudit(t, mem, agg.Request.ID)
	if entry.Action != procure.AuditSubmitted {
		t.Fatalf("expected submitted action, got %s", entry.Action)
	}

	if _, err := engine.Transition(context.Background(), requester, agg.Request.ID, procure.StatusDraft, "redo"); err != nil {
		t.Fatal(err)
	}
	entry = lastAudit(t, mem, agg.Request.ID)
	if entry.Action != procure.AuditStatusChanged(procure.StatusDraft) {
		t.Fatalf("expected status_changed_draft, got %s", entry.Action)
	}
	if entry.Details["from"] != "pending" || entry.Details["to"] != "draft" {
		t.Errorf("audit details missing from/to: %v", entry.Details)
	}
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmit_EmptyLineItems_Rejected(t *testing.T) {
	// GIVEN: A draft request with no line items
	// WHEN: Submitting
	// THEN: ErrEmptyLineItems, status stays draft

	engine, _ := newTestEngine()
	agg := createDraft(t, engine)

	_, err := engine.Submit(context.Background(), requester, agg.Request.ID)
	if !errors.Is(err, procure.ErrEmptyLineItems) {
		t.Fatalf("expected ErrEmptyLineItems, got %v", err)
	}

	stored, _ := engine.Get(context.Background(), agg.Request.ID)
	if stored.Request.Status != procure.StatusDraft {
		t.Errorf("status changed on failed submit: %s", stored.Request.Status)
	}
}

func TestSubmit_EmptyItemsReportedBeforeStatus(t *testing.T) {
	// GIVEN: A cancelled request with no line items
	// WHEN: Submitting
	// THEN: The empty-items failure wins over the status failure

	engine, _ := newTestEngine()
	agg := createDraft(t, engine)
	advance(t, engine, agg.Request.ID, procure.StatusCancelled)

	_, err := engine.Submit(context.Background(), requester, agg.Request.ID)
	if !errors.Is(err, procure.ErrEmptyLineItems) {
		t.Fatalf("expected ErrEmptyLineItems, got %v", err)
	}
}

func TestSubmit_NonDraft_Rejected(t *testing.T) {
	engine, _ := newTestEngine()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	advance(t, engine, agg.Request.ID, procure.StatusPending)

	_, err := engine.Submit(context.Background(), requester, agg.Request.ID)
	if !errors.Is(err, procure.ErrImmutableStatus) {
		t.Fatalf("expected ErrImmutableStatus, got %v", err)
	}
}

// =============================================================================
// TOTALS TESTS
// =============================================================================

func TestCreate_ComputesTotals(t *testing.T) {
	engine, _ := newTestEngine()
	agg := createDraft(t, engine,
		itemInput("desk", 3, "199.99"),
		itemInput("chair", 2, "89.50"),
		itemInput("cables", 5, ""), // no price yet
	)

	if want := dec("778.97"); !agg.Request.TotalAmount.Equal(want) {
		t.Errorf("total = %s, want %s", agg.Request.TotalAmount, want)
	}
	if !agg.LineItems[2].TotalPrice.Equal(decimal.Zero) {
		t.Errorf("nil-price item total = %s, want 0", agg.LineItems[2].TotalPrice)
	}
}

func TestCreate_ExactDecimalArithmetic(t *testing.T) {
	// 0.1 * 3 must be exactly 0.3, not 0.30000000000000004.
	engine, _ := newTestEngine()
	agg := createDraft(t, engine, itemInput("washers", 3, "0.1"))

	if want := dec("0.3"); !agg.Request.TotalAmount.Equal(want) {
		t.Errorf("total = %s, want exactly %s", agg.Request.TotalAmount, want)
	}
}

func TestLineItemMutations_RecomputeTotal(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	id := agg.Request.ID

	item, err := engine.AddLineItem(ctx, requester, id, itemInput("chair", 2, "50"))
	if err != nil {
		t.Fatal(err)
	}
	stored, _ := engine.Get(ctx, id)
	if want := dec("200"); !stored.Request.TotalAmount.Equal(want) {
		t.Fatalf("after add: total = %s, want %s", stored.Request.TotalAmount, want)
	}

	qty := 4
	if _, err := engine.UpdateLineItem(ctx, requester, id, item.ID, procure.LineItemPatch{Quantity: &qty}); err != nil {
		t.Fatal(err)
	}
	stored, _ = engine.Get(ctx, id)
	if want := dec("300"); !stored.Request.TotalAmount.Equal(want) {
		t.Fatalf("after qty update: total = %s, want %s", stored.Request.TotalAmount, want)
	}

	if err := engine.DeleteLineItem(ctx, requester, id, item.ID); err != nil {
		t.Fatal(err)
	}
	stored, _ = engine.Get(ctx, id)
	if want := dec("100"); !stored.Request.TotalAmount.Equal(want) {
		t.Fatalf("after delete: total = %s, want %s", stored.Request.TotalAmount, want)
	}
}

func TestUpdateLineItem_ClearPrice(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	agg := createDraft(t, engine, itemInput("desk", 2, "100"))
	id := agg.Request.ID
	itemID := agg.LineItems[0].ID

	_, err := engine.UpdateLineItem(ctx, requester, id, itemID, procure.LineItemPatch{
		UnitPrice: procure.OptionalPrice{Set: true, Value: nil},
	})
	if err != nil {
		t.Fatal(err)
	}

	stored, _ := engine.Get(ctx, id)
	if stored.LineItems[0].UnitPrice != nil {
		t.Error("unit price not cleared")
	}
	if !stored.Request.TotalAmount.Equal(decimal.Zero) {
		t.Errorf("total = %s, want 0", stored.Request.TotalAmount)
	}
}

// =============================================================================
// EDIT GATING TESTS
// =============================================================================

func TestMutations_GatedByStatus(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	id := agg.Request.ID
	itemID := agg.LineItems[0].ID
	advance(t, engine, id, procure.StatusPending)

	title := "new title"
	if _, err := engine.Update(ctx, requester, id, procure.RequestPatch{Title: &title}); !errors.Is(err, procure.ErrImmutableStatus) {
		t.Errorf("update: expected ErrImmutableStatus, got %v", err)
	}
	if _, err := engine.AddLineItem(ctx, requester, id, itemInput("chair", 1, "50")); !errors.Is(err, procure.ErrImmutableStatus) {
		t.Errorf("add item: expected ErrImmutableStatus, got %v", err)
	}
	if _, err := engine.UpdateLineItem(ctx, requester, id, itemID, procure.LineItemPatch{}); !errors.Is(err, procure.ErrImmutableStatus) {
		t.Errorf("update item: expected ErrImmutableStatus, got %v", err)
	}
	if err := engine.DeleteLineItem(ctx, requester, id, itemID); !errors.Is(err, procure.ErrImmutableStatus) {
		t.Errorf("delete item: expected ErrImmutableStatus, got %v", err)
	}

	// An approved request is just as locked, and its total must not move.
	advance(t, engine, id, procure.StatusApproved)
	if _, err := engine.AddLineItem(ctx, requester, id, itemInput("chair", 1, "50")); !errors.Is(err, procure.ErrImmutableStatus) {
		t.Errorf("add item to approved: expected ErrImmutableStatus, got %v", err)
	}
	stored, _ := engine.Get(ctx, id)
	if !stored.Request.TotalAmount.Equal(dec("100")) {
		t.Errorf("total after blocked add = %s, want 100", stored.Request.TotalAmount)
	}
}

func TestUpdate_AllowedInRejected(t *testing.T) {
	// GIVEN: A request bounced back by a rejection
	// WHEN: The requester edits it
	// THEN: The edit is accepted (rejected is editable, like draft)

	engine, mem := newTestEngine()
	ctx := context.Background()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	id := agg.Request.ID
	advance(t, engine, id, procure.StatusPending, procure.StatusRejected)

	title := "Standing desks (revised)"
	updated, err := engine.Update(ctx, requester, id, procure.RequestPatch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Request.Title != title {
		t.Errorf("title = %q", updated.Request.Title)
	}

	entry := lastAudit(t, mem, id)
	if entry.Action != procure.AuditUpdated {
		t.Fatalf("expected updated audit action, got %s", entry.Action)
	}
	change, ok := entry.Details["title"].(procure.Details)
	if !ok || change["old"] != "Standing desks" || change["new"] != title {
		t.Errorf("audit old/new not recorded: %v", entry.Details)
	}
}

func TestUpdate_NoChanges_NoAuditEntry(t *testing.T) {
	engine, mem := newTestEngine()
	ctx := context.Background()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	id := agg.Request.ID
	before := len(mem.AuditFor(id))

	same := agg.Request.Title
	if _, err := engine.Update(ctx, requester, id, procure.RequestPatch{Title: &same}); err != nil {
		t.Fatal(err)
	}
	if got := len(mem.AuditFor(id)); got != before {
		t.Errorf("no-op update appended %d audit entries", got-before)
	}
}

func TestDelete_DraftOnly_Cascades(t *testing.T) {
	engine, mem := newTestEngine()
	ctx := context.Background()

	draft := createDraft(t, engine, itemInput("desk", 1, "100"))
	if err := engine.Delete(ctx, requester, draft.Request.ID); err != nil {
		t.Fatal(err)
	}
	if mem.Exists(draft.Request.ID) {
		t.Error("deleted request still stored")
	}
	if _, err := engine.Get(ctx, draft.Request.ID); !errors.Is(err, procure.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}

	pending := createDraft(t, engine, itemInput("desk", 1, "100"))
	advance(t, engine, pending.Request.ID, procure.StatusPending)
	if err := engine.Delete(ctx, requester, pending.Request.ID); !errors.Is(err, procure.ErrImmutableStatus) {
		t.Errorf("expected ErrImmutableStatus deleting pending, got %v", err)
	}
}

func TestUpdateLineItem_UnknownItem_NotFound(t *testing.T) {
	engine, _ := newTestEngine()
	agg := createDraft(t, engine, itemInput("desk", 1, "100"))

	_, err := engine.UpdateLineItem(context.Background(), requester, agg.Request.ID, "item-missing", procure.LineItemPatch{})
	if !errors.Is(err, procure.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestCommit_StaleVersion_Conflict(t *testing.T) {
	// GIVEN: Two engines loaded the same aggregate state
	// WHEN: Both commit a mutation
	// THEN: The second writer observes ErrConflict and nothing half-applies

	mem := store.NewMemory()
	ctx := context.Background()

	engine := procure.NewEngine(mem)
	agg, err := engine.Create(ctx, requester, procure.CreateRequestInput{
		Title:     "Racks",
		LineItems: []procure.LineItemInput{itemInput("rack", 1, "900")},
	})
	if err != nil {
		t.Fatal(err)
	}

	first, _ := mem.LoadAggregate(ctx, agg.Request.ID)
	second, _ := mem.LoadAggregate(ctx, agg.Request.ID)

	first.Request.Title = "Racks (winner)"
	if err := mem.CommitAggregate(ctx, first, nil); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	second.Request.Title = "Racks (loser)"
	if err := mem.CommitAggregate(ctx, second, nil); !errors.Is(err, procure.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	stored, _ := mem.LoadAggregate(ctx, agg.Request.ID)
	if stored.Request.Title != "Racks (winner)" {
		t.Errorf("stored title = %q", stored.Request.Title)
	}
}

func TestEngine_DeterministicClock(t *testing.T) {
	engine, mem := newTestEngine()
	fixed := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	engine.Now = func() time.Time { return fixed }

	agg := createDraft(t, engine, itemInput("desk", 1, "100"))
	if !agg.Request.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", agg.Request.CreatedAt, fixed)
	}

	// Audit entries carry the same injected clock, not the wall clock.
	if entry := lastAudit(t, mem, agg.Request.ID); !entry.CreatedAt.Equal(fixed) {
		t.Errorf("audit CreatedAt = %v, want %v", entry.CreatedAt, fixed)
	}

	if _, err := engine.Submit(context.Background(), requester, agg.Request.ID); err != nil {
		t.Fatal(err)
	}
	if entry := lastAudit(t, mem, agg.Request.ID); !entry.CreatedAt.Equal(fixed) {
		t.Errorf("submit audit CreatedAt = %v, want %v", entry.CreatedAt, fixed)
	}
}
