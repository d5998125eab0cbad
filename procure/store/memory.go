// Package store provides an in-memory Store implementation for tests.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adukes40/ReqPath/procure"
)

// =============================================================================
// MEMORY STORE - In-memory aggregate repository (for testing/dev)
// =============================================================================

// Memory implements procure.Store and procure.Directory with map-backed
// storage. It honours the same version compare-and-set contract as the
// SQLite store, so conflict paths are testable without a database.
type Memory struct {
	mu         sync.RWMutex
	aggregates map[procure.RequestID]*procure.Aggregate
	audit      map[procure.RequestID][]procure.AuditEntry
	users      map[procure.UserID]*procure.User
}

func NewMemory() *Memory {
	return &Memory{
		aggregates: make(map[procure.RequestID]*procure.Aggregate),
		audit:      make(map[procure.RequestID][]procure.AuditEntry),
		users:      make(map[procure.UserID]*procure.User),
	}
}

func (m *Memory) LoadAggregate(_ context.Context, id procure.RequestID) (*procure.Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agg, ok := m.aggregates[id]
	if !ok {
		return nil, procure.ErrRequestNotFound
	}
	return cloneAggregate(agg), nil
}

func (m *Memory) CreateAggregate(_ context.Context, agg *procure.Aggregate, entries []procure.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := agg.Request.ID
	if _, exists := m.aggregates[id]; exists {
		return procure.ErrConflict
	}
	m.aggregates[id] = cloneAggregate(agg)
	m.audit[id] = append(m.audit[id], entries...)
	return nil
}

func (m *Memory) CommitAggregate(_ context.Context, agg *procure.Aggregate, entries []procure.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := agg.Request.ID
	stored, ok := m.aggregates[id]
	if !ok {
		return procure.ErrRequestNotFound
	}
	if stored.Request.Version != agg.Request.Version {
		return procure.ErrConflict
	}

	agg.Request.Version++
	m.aggregates[id] = cloneAggregate(agg)
	m.audit[id] = append(m.audit[id], entries...)
	return nil
}

func (m *Memory) DeleteAggregate(_ context.Context, id procure.RequestID, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.aggregates[id]
	if !ok {
		return procure.ErrRequestNotFound
	}
	if stored.Request.Version != version {
		return procure.ErrConflict
	}
	delete(m.aggregates, id)
	delete(m.audit, id)
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id procure.UserID) (*procure.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, procure.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// PutUser registers a user for directory lookups.
func (m *Memory) PutUser(u procure.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

// =============================================================================
// TEST HELPERS
// =============================================================================

// AuditFor returns the audit trail recorded for a request, oldest first.
func (m *Memory) AuditFor(id procure.RequestID) []procure.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]procure.AuditEntry, len(m.audit[id]))
	copy(out, m.audit[id])
	return out
}

// Exists reports whether a request is stored.
func (m *Memory) Exists(id procure.RequestID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.aggregates[id]
	return ok
}

func cloneAggregate(agg *procure.Aggregate) *procure.Aggregate {
	out := &procure.Aggregate{Request: agg.Request}
	out.Request.NeededBy = cloneTime(agg.Request.NeededBy)
	out.Request.OrderedAt = cloneTime(agg.Request.OrderedAt)
	out.Request.ReceivedAt = cloneTime(agg.Request.ReceivedAt)

	out.LineItems = make([]procure.LineItem, len(agg.LineItems))
	for i, item := range agg.LineItems {
		out.LineItems[i] = item
		out.LineItems[i].UnitPrice = cloneDecimal(item.UnitPrice)
	}

	out.Approvals = make([]procure.Approval, len(agg.Approvals))
	for i, ap := range agg.Approvals {
		out.Approvals[i] = ap
		out.Approvals[i].DecidedAt = cloneTime(ap.DecidedAt)
	}

	out.Documents = make([]procure.Document, len(agg.Documents))
	copy(out.Documents, agg.Documents)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
