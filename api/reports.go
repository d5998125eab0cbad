/*
reports.go - Reporting and export endpoints

PURPOSE:
  Spend rollups, pipeline views, and file export. Spend figures count only
  requests in approved, ordered, received, or complete status; the totals
  come back as decimal strings, never floats.

ENDPOINTS:
  GET /api/reports/spending/monthly      ?year=&department=
  GET /api/reports/spending/departments  ?from=&to=
  GET /api/reports/spending/categories   ?from=&to=
  GET /api/reports/vendors               ?from=&to=&limit=
  GET /api/reports/status                Counts per lifecycle status
  GET /api/reports/aging                 Open pipeline bucketed by age
  GET /api/reports/export                ?format=csv|xlsx&status=&from=&to=

MONTHLY SERIES:
  The monthly report always returns twelve rows for the requested year,
  zero-filled, so chart clients never interpolate over missing months.

EXPORT:
  CSV via encoding/csv, XLSX via excelize with a bold header row and
  content-sized columns. Both stream the same flattened request rows.
*/
package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/adukes40/ReqPath/procure"
	"github.com/adukes40/ReqPath/store/sqlite"
)

// =============================================================================
// REPORT PAYLOADS
// =============================================================================

type MonthlySpendDTO struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type DepartmentSpendDTO struct {
	Department string          `json:"department"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
}

type CategorySpendDTO struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Items    int             `json:"items"`
}

type VendorSpendDTO struct {
	Vendor   string          `json:"vendor"`
	Total    decimal.Decimal `json:"total"`
	Items    int             `json:"items"`
	Requests int             `json:"requests"`
}

type StatusCountDTO struct {
	Status string          `json:"status"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

type AgingBucketDTO struct {
	Bucket   string              `json:"bucket"`
	Count    int                 `json:"count"`
	Total    decimal.Decimal     `json:"total"`
	Requests []RequestSummaryDTO `json:"requests"`
}

// =============================================================================
// SPEND REPORTS
// =============================================================================

func (h *Handler) SpendingByMonth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 2000 || year > 2200 {
		year = time.Now().UTC().Year()
	}

	rows, err := h.Store.SpendingByMonth(r.Context(), year, q.Get("department"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	// Zero-fill all twelve months, then overlay actual figures.
	byMonth := make(map[string]sqlite.MonthlySpend, len(rows))
	for _, row := range rows {
		byMonth[row.Month] = row
	}
	out := make([]MonthlySpendDTO, 0, 12)
	for m := 1; m <= 12; m++ {
		month := fmt.Sprintf("%04d-%02d", year, m)
		row := byMonth[month]
		out = append(out, MonthlySpendDTO{Month: month, Total: row.Total, Count: row.Count})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SpendingByDepartment(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date filter", err)
		return
	}

	rows, err := h.Store.SpendingByDepartment(r.Context(), from, to)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]DepartmentSpendDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, DepartmentSpendDTO{Department: row.Department, Total: row.Total, Count: row.Count})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SpendingByCategory(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date filter", err)
		return
	}

	rows, err := h.Store.SpendingByCategory(r.Context(), from, to)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]CategorySpendDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, CategorySpendDTO{Category: row.Category, Total: row.Total, Items: row.Items})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) VendorReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date filter", err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := h.Store.VendorSpend(r.Context(), from, to, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]VendorSpendDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, VendorSpendDTO{
			Vendor: row.Vendor, Total: row.Total, Items: row.Items, Requests: row.Requests,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// PIPELINE REPORTS
// =============================================================================

func (h *Handler) StatusReport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.StatusCounts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]StatusCountDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, StatusCountDTO{Status: string(row.Status), Count: row.Count, Total: row.Total})
	}
	writeJSON(w, http.StatusOK, out)
}

var agingBuckets = []struct {
	label   string
	minDays int
	maxDays int // exclusive; -1 means unbounded
}{
	{"0-7", 0, 8},
	{"8-14", 8, 15},
	{"15-30", 15, 31},
	{"30+", 31, -1},
}

// AgingReport buckets the open pipeline (pending, approved, ordered) by
// request age in days.
func (h *Handler) AgingReport(w http.ResponseWriter, r *http.Request) {
	open := []procure.Status{procure.StatusPending, procure.StatusApproved, procure.StatusOrdered}
	rows, err := h.Store.ListByStatuses(r.Context(), open)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	now := time.Now().UTC()
	out := make([]AgingBucketDTO, 0, len(agingBuckets))
	for _, b := range agingBuckets {
		out = append(out, AgingBucketDTO{Bucket: b.label, Requests: []RequestSummaryDTO{}})
	}
	for i := range rows {
		days := int(now.Sub(rows[i].CreatedAt).Hours() / 24)
		for j, b := range agingBuckets {
			if days >= b.minDays && (b.maxDays < 0 || days < b.maxDays) {
				out[j].Count++
				out[j].Total = out[j].Total.Add(rows[i].TotalAmount)
				out[j].Requests = append(out[j].Requests, toSummaryDTO(&rows[i]))
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// EXPORT
// =============================================================================

var exportHeader = []string{
	"ID", "Title", "Requester", "Department", "Status", "Priority",
	"Total Amount", "Budget Code", "Vendor", "PO Number", "Created", "Needed By",
}

func exportCells(row *sqlite.ExportRow) []string {
	neededBy := ""
	if row.NeededBy != nil {
		neededBy = row.NeededBy.Format("2006-01-02")
	}
	return []string{
		string(row.ID), row.Title, row.RequesterName, row.Department,
		string(row.Status), string(row.Priority), row.TotalAmount.String(),
		row.BudgetCode, row.PreferredVendor, row.PONumber,
		row.CreatedAt.Format("2006-01-02"), neededBy,
	}
}

func (h *Handler) ExportRequests(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date filter", err)
		return
	}

	rows, err := h.Store.ExportRows(r.Context(), from, to, r.URL.Query().Get("status"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		h.exportCSV(w, rows)
	case "xlsx":
		h.exportXLSX(w, r, rows)
	default:
		writeError(w, http.StatusBadRequest, "unknown export format", nil)
	}
}

func (h *Handler) exportCSV(w http.ResponseWriter, rows []sqlite.ExportRow) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="requests.csv"`)

	cw := csv.NewWriter(w)
	cw.Write(exportHeader)
	for i := range rows {
		cw.Write(exportCells(&rows[i]))
	}
	cw.Flush()
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request, rows []sqlite.ExportRow) {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Requests"
	f.SetSheetName("Sheet1", sheet)

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	widths := make([]int, len(exportHeader))
	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
		f.SetCellStyle(sheet, cell, cell, bold)
		widths[col] = len(title)
	}
	for i := range rows {
		for col, val := range exportCells(&rows[i]) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			f.SetCellValue(sheet, cell, val)
			if len(val) > widths[col] {
				widths[col] = len(val)
			}
		}
	}
	for col := range exportHeader {
		name, _ := excelize.ColumnNumberToName(col + 1)
		width := float64(widths[col]) + 2
		if width > 60 {
			width = 60
		}
		f.SetColWidth(sheet, name, name, width)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="requests.xlsx"`)
	if err := f.Write(w); err != nil {
		h.Log.WithError(err).Error("failed to stream xlsx export")
	}
}

// dateWindow parses optional from/to query parameters, accepting plain
// dates or RFC3339 timestamps.
func dateWindow(r *http.Request) (*time.Time, *time.Time, error) {
	parse := func(s string) (*time.Time, error) {
		if s == "" {
			return nil, nil
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return &t, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	from, err := parse(r.URL.Query().Get("from"))
	if err != nil {
		return nil, nil, err
	}
	to, err := parse(r.URL.Query().Get("to"))
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
