/*
reports.go - Spend and pipeline report queries

PURPOSE:
  Read-only rollups over requests and line items: monthly spend, spend by
  department and category, vendor totals, and status counts. Only requests
  in a spend status (approved, ordered, received, complete) count toward
  spend figures; drafts, rejections and cancellations never inflate them.

PRECISION:
  Rows are fetched with their TEXT amount columns and summed in Go using
  shopspring/decimal. SQL SUM over these columns would silently coerce to
  float64 and drift on cent amounts.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adukes40/ReqPath/procure"
)

// MonthlySpend is one month's committed spend.
type MonthlySpend struct {
	Month string // "YYYY-MM"
	Total decimal.Decimal
	Count int
}

// DepartmentSpend is one department's committed spend.
type DepartmentSpend struct {
	Department string
	Total      decimal.Decimal
	Count      int
}

// CategorySpend is committed spend for one line item category.
type CategorySpend struct {
	Category string
	Total    decimal.Decimal
	Items    int
}

// VendorSpendRow is committed spend attributed to one vendor.
type VendorSpendRow struct {
	Vendor   string
	Total    decimal.Decimal
	Items    int
	Requests int
}

// StatusCount is the request count and amount parked in one status.
type StatusCount struct {
	Status procure.Status
	Count  int
	Total  decimal.Decimal
}

// ExportRow is one request flattened for CSV/XLSX export.
type ExportRow struct {
	ID              procure.RequestID
	Title           string
	RequesterName   string
	Department      string
	Status          procure.Status
	Priority        procure.Priority
	TotalAmount     decimal.Decimal
	BudgetCode      string
	PreferredVendor string
	PONumber        string
	CreatedAt       time.Time
	NeededBy        *time.Time
}

func spendStatusClause(column string) (string, []any) {
	statuses := procure.SpendStatuses()
	placeholders := strings.TrimRight(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}
	return column + " IN (" + placeholders + ")", args
}

// SpendingByMonth returns committed spend per calendar month of the given
// year, months with activity only and in ascending order. Department is an
// optional filter.
func (s *Store) SpendingByMonth(ctx context.Context, year int, department string) ([]MonthlySpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := spendStatusClause("status")
	query := `SELECT created_at, total_amount FROM requests WHERE ` + clause +
		` AND strftime('%Y', created_at) = ?`
	args = append(args, fmt.Sprintf("%04d", year))
	if department != "" {
		query += " AND department = ?"
		args = append(args, department)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byMonth := make(map[string]*MonthlySpend)
	for rows.Next() {
		var createdAt, totalAmount string
		if err := rows.Scan(&createdAt, &totalAmount); err != nil {
			return nil, err
		}
		month := parseTime(createdAt).Format("2006-01")
		m, ok := byMonth[month]
		if !ok {
			m = &MonthlySpend{Month: month}
			byMonth[month] = m
		}
		m.Total = m.Total.Add(parseDecimal(totalAmount))
		m.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MonthlySpend, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// SpendingByDepartment returns committed spend grouped by department within
// the optional date window, largest first. Requests with no department fall
// under "unassigned".
func (s *Store) SpendingByDepartment(ctx context.Context, from, to *time.Time) ([]DepartmentSpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := spendStatusClause("status")
	query := `SELECT department, total_amount FROM requests WHERE ` + clause
	query, args = appendDateWindow(query, args, "created_at", from, to)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDept := make(map[string]*DepartmentSpend)
	for rows.Next() {
		var department sql.NullString
		var totalAmount string
		if err := rows.Scan(&department, &totalAmount); err != nil {
			return nil, err
		}
		dept := department.String
		if dept == "" {
			dept = "unassigned"
		}
		d, ok := byDept[dept]
		if !ok {
			d = &DepartmentSpend{Department: dept}
			byDept[dept] = d
		}
		d.Total = d.Total.Add(parseDecimal(totalAmount))
		d.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]DepartmentSpend, 0, len(byDept))
	for _, d := range byDept {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total.GreaterThan(out[j].Total) })
	return out, nil
}

// SpendingByCategory returns committed spend grouped by line item category,
// largest first. Uncategorized items fall under "uncategorized".
func (s *Store) SpendingByCategory(ctx context.Context, from, to *time.Time) ([]CategorySpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := spendStatusClause("r.status")
	query := `
		SELECT li.category, li.total_price
		FROM line_items li
		JOIN requests r ON r.id = li.request_id
		WHERE ` + clause
	query, args = appendDateWindow(query, args, "r.created_at", from, to)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byCat := make(map[string]*CategorySpend)
	for rows.Next() {
		var category sql.NullString
		var totalPrice string
		if err := rows.Scan(&category, &totalPrice); err != nil {
			return nil, err
		}
		cat := category.String
		if cat == "" {
			cat = "uncategorized"
		}
		c, ok := byCat[cat]
		if !ok {
			c = &CategorySpend{Category: cat}
			byCat[cat] = c
		}
		c.Total = c.Total.Add(parseDecimal(totalPrice))
		c.Items++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]CategorySpend, 0, len(byCat))
	for _, c := range byCat {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total.GreaterThan(out[j].Total) })
	return out, nil
}

// VendorSpend returns committed spend per line item vendor, largest first,
// capped at limit rows. Items with no vendor are skipped.
func (s *Store) VendorSpend(ctx context.Context, from, to *time.Time, limit int) ([]VendorSpendRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := spendStatusClause("r.status")
	query := `
		SELECT li.vendor, li.total_price, li.request_id
		FROM line_items li
		JOIN requests r ON r.id = li.request_id
		WHERE li.vendor IS NOT NULL AND li.vendor != '' AND ` + clause
	query, args = appendDateWindow(query, args, "r.created_at", from, to)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type vendorAcc struct {
		row      VendorSpendRow
		requests map[procure.RequestID]struct{}
	}
	byVendor := make(map[string]*vendorAcc)
	for rows.Next() {
		var vendor, totalPrice string
		var requestID procure.RequestID
		if err := rows.Scan(&vendor, &totalPrice, &requestID); err != nil {
			return nil, err
		}
		v, ok := byVendor[vendor]
		if !ok {
			v = &vendorAcc{
				row:      VendorSpendRow{Vendor: vendor},
				requests: make(map[procure.RequestID]struct{}),
			}
			byVendor[vendor] = v
		}
		v.row.Total = v.row.Total.Add(parseDecimal(totalPrice))
		v.row.Items++
		v.requests[requestID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]VendorSpendRow, 0, len(byVendor))
	for _, v := range byVendor {
		v.row.Requests = len(v.requests)
		out = append(out, v.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total.GreaterThan(out[j].Total) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StatusCounts returns count and total amount per lifecycle status, in
// display order. Statuses with no requests are included with zeros.
func (s *Store) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT status, total_amount FROM requests")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStatus := make(map[procure.Status]*StatusCount)
	for _, st := range procure.StatusOrder {
		byStatus[st] = &StatusCount{Status: st}
	}
	for rows.Next() {
		var status procure.Status
		var totalAmount string
		if err := rows.Scan(&status, &totalAmount); err != nil {
			return nil, err
		}
		c, ok := byStatus[status]
		if !ok {
			continue
		}
		c.Count++
		c.Total = c.Total.Add(parseDecimal(totalAmount))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]StatusCount, 0, len(procure.StatusOrder))
	for _, st := range procure.StatusOrder {
		out = append(out, *byStatus[st])
	}
	return out, nil
}

// ExportRows returns flattened request rows for file export, newest first.
// Status and the date window are optional filters.
func (s *Store) ExportRows(ctx context.Context, from, to *time.Time, status string) ([]ExportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT r.id, r.title, u.name, r.department, r.status, r.priority,
		       r.total_amount, r.budget_code, r.preferred_vendor, r.po_number,
		       r.created_at, r.needed_by
		FROM requests r
		LEFT JOIN users u ON u.id = r.requester_id
		WHERE 1 = 1`
	var args []any
	if status != "" {
		query += " AND r.status = ?"
		args = append(args, status)
	}
	query, args = appendDateWindow(query, args, "r.created_at", from, to)
	query += " ORDER BY r.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var (
			r                         ExportRow
			requesterName, department sql.NullString
			budgetCode, vendor        sql.NullString
			poNumber                  sql.NullString
			totalAmount, createdAt    string
			neededBy                  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Title, &requesterName, &department,
			&r.Status, &r.Priority, &totalAmount, &budgetCode, &vendor,
			&poNumber, &createdAt, &neededBy); err != nil {
			return nil, err
		}
		r.RequesterName = requesterName.String
		r.Department = department.String
		r.BudgetCode = budgetCode.String
		r.PreferredVendor = vendor.String
		r.PONumber = poNumber.String
		r.TotalAmount = parseDecimal(totalAmount)
		r.CreatedAt = parseTime(createdAt)
		r.NeededBy = parseTimePtr(neededBy)
		out = append(out, r)
	}
	return out, rows.Err()
}

func appendDateWindow(query string, args []any, column string, from, to *time.Time) (string, []any) {
	if from != nil {
		query += " AND " + column + " >= ?"
		args = append(args, fmtTime(*from))
	}
	if to != nil {
		query += " AND " + column + " <= ?"
		args = append(args, fmtTime(*to))
	}
	return query, args
}
