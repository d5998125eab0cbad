/*
Package sqlite provides the SQLite-backed aggregate repository.

PURPOSE:
  Implements procure.Store (aggregate load/commit/delete), procure.Directory
  (user lookups), and the read models the HTTP layer needs: request listing,
  approval queues, document metadata, audit trails, and report queries.

AGGREGATE COMMIT:
  A request and everything it owns is written in one database transaction.
  The request row carries a version column; every commit is guarded by
  "WHERE id = ? AND version = ?" and bumps the version. A stale writer
  affects zero rows and gets procure.ErrConflict, so two operations on the
  same request cannot both succeed against stale state. Audit entries ride
  in the same transaction: if the commit rolls back, no orphan entries
  survive.

KEY TABLES:
  users:       identity, role, api key
  requests:    aggregate root with derived total_amount and version
  line_items:  owned by requests, ON DELETE CASCADE
  documents:   attachment metadata, ON DELETE CASCADE
  approvals:   approval records, ON DELETE CASCADE
  audit_logs:  append-only trail, ON DELETE CASCADE

DECIMALS:
  Monetary columns are stored as TEXT and parsed with shopspring/decimal.
  Report sums are accumulated in Go with decimal arithmetic rather than
  SQL SUM, which would coerce to binary floating point.

WAL MODE:
  SQLite is opened with foreign keys on and WAL journaling. Multiple
  readers do not block; a single writer at a time.

USAGE:
  st, err := sqlite.New("./data/reqpath.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  engine := procure.NewEngine(st)

SEE ALSO:
  - procure/store.go: the contracts implemented here
  - procure/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/adukes40/ReqPath/procure"
)

// Store implements the persistence interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		department TEXT,
		role TEXT NOT NULL DEFAULT 'requester',
		api_key TEXT UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_api_key
		ON users(api_key) WHERE api_key IS NOT NULL;

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		description TEXT,
		department TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		priority TEXT NOT NULL DEFAULT 'normal',
		total_amount TEXT NOT NULL DEFAULT '0',
		budget_code TEXT,
		fiscal_year TEXT,
		preferred_vendor TEXT,
		po_number TEXT,
		notes TEXT,
		needed_by TEXT,
		ordered_at TEXT,
		received_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_requester ON requests(requester_id);
	CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);

	CREATE TABLE IF NOT EXISTS line_items (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		unit TEXT,
		unit_price TEXT,
		total_price TEXT NOT NULL DEFAULT '0',
		vendor TEXT,
		vendor_sku TEXT,
		category TEXT,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_request ON line_items(request_id);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		doc_type TEXT NOT NULL DEFAULT 'other',
		filename TEXT NOT NULL,
		original_filename TEXT,
		file_path TEXT NOT NULL,
		file_size INTEGER,
		mime_type TEXT,
		description TEXT,
		uploaded_by TEXT,
		uploaded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_request ON documents(request_id);

	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		approver_id TEXT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'pending',
		comments TEXT,
		requested_at TEXT NOT NULL,
		decided_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_request ON approvals(request_id);
	CREATE INDEX IF NOT EXISTS idx_approvals_approver_status
		ON approvals(approver_id, status);

	-- Append-only. No UPDATE or DELETE statements are ever issued against
	-- this table; rows disappear only via the request cascade.
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		request_id TEXT REFERENCES requests(id) ON DELETE CASCADE,
		user_id TEXT,
		action TEXT NOT NULL,
		details_json TEXT,
		ip_address TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_request ON audit_logs(request_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// AGGREGATE REPOSITORY (procure.Store interface)
// =============================================================================

// LoadAggregate reads the request and all owned collections.
func (s *Store) LoadAggregate(ctx context.Context, id procure.RequestID) (*procure.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, err := s.getRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	agg := &procure.Aggregate{Request: *req}

	if agg.LineItems, err = s.queryLineItems(ctx, id); err != nil {
		return nil, err
	}
	if agg.Approvals, err = s.queryApprovals(ctx,
		`SELECT id, request_id, approver_id, status, comments, requested_at, decided_at
		 FROM approvals WHERE request_id = ? ORDER BY requested_at ASC, id ASC`, id); err != nil {
		return nil, err
	}
	if agg.Documents, err = s.queryDocuments(ctx,
		`SELECT id, request_id, doc_type, filename, original_filename, file_path,
		        file_size, mime_type, description, uploaded_by, uploaded_at
		 FROM documents WHERE request_id = ? ORDER BY uploaded_at DESC`, id); err != nil {
		return nil, err
	}
	return agg, nil
}

// CreateAggregate inserts a new request with its line items and audit
// entries in one transaction.
func (s *Store) CreateAggregate(ctx context.Context, agg *procure.Aggregate, entries []procure.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req := &agg.Request
	_, err = tx.ExecContext(ctx, `
		INSERT INTO requests
		(id, requester_id, title, description, department, status, priority,
		 total_amount, budget_code, fiscal_year, preferred_vendor, po_number,
		 notes, needed_by, ordered_at, received_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.RequesterID, req.Title, req.Description, req.Department,
		req.Status, req.Priority, req.TotalAmount.String(), req.BudgetCode,
		req.FiscalYear, req.PreferredVendor, req.PONumber, req.Notes,
		fmtTimePtr(req.NeededBy), fmtTimePtr(req.OrderedAt), fmtTimePtr(req.ReceivedAt),
		req.Version, fmtTime(req.CreatedAt), fmtTime(req.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	if err := insertLineItems(ctx, tx, agg.LineItems); err != nil {
		return err
	}
	if err := insertAuditEntries(ctx, tx, entries); err != nil {
		return err
	}
	return tx.Commit()
}

// CommitAggregate writes a mutated aggregate guarded by the version
// compare-and-set. Line items and approvals are replaced wholesale;
// documents are managed through AddDocument/DeleteDocument and left alone.
func (s *Store) CommitAggregate(ctx context.Context, agg *procure.Aggregate, entries []procure.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req := &agg.Request
	res, err := tx.ExecContext(ctx, `
		UPDATE requests SET
			requester_id = ?, title = ?, description = ?, department = ?,
			status = ?, priority = ?, total_amount = ?, budget_code = ?,
			fiscal_year = ?, preferred_vendor = ?, po_number = ?, notes = ?,
			needed_by = ?, ordered_at = ?, received_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		req.RequesterID, req.Title, req.Description, req.Department,
		req.Status, req.Priority, req.TotalAmount.String(), req.BudgetCode,
		req.FiscalYear, req.PreferredVendor, req.PONumber, req.Notes,
		fmtTimePtr(req.NeededBy), fmtTimePtr(req.OrderedAt), fmtTimePtr(req.ReceivedAt),
		fmtTime(req.UpdatedAt),
		req.ID, req.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.staleWriteError(ctx, req.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM line_items WHERE request_id = ?", req.ID); err != nil {
		return fmt.Errorf("failed to clear line items: %w", err)
	}
	if err := insertLineItems(ctx, tx, agg.LineItems); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM approvals WHERE request_id = ?", req.ID); err != nil {
		return fmt.Errorf("failed to clear approvals: %w", err)
	}
	for _, ap := range agg.Approvals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO approvals (id, request_id, approver_id, status, comments, requested_at, decided_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ap.ID, ap.RequestID, ap.ApproverID, ap.Status, ap.Comments,
			fmtTime(ap.RequestedAt), fmtTimePtr(ap.DecidedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert approval: %w", err)
		}
	}

	if err := insertAuditEntries(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	req.Version++
	return nil
}

// DeleteAggregate removes the request row; line items, documents, approvals
// and audit entries go with it via ON DELETE CASCADE.
func (s *Store) DeleteAggregate(ctx context.Context, id procure.RequestID, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM requests WHERE id = ? AND version = ?", id, version)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.staleWriteError(ctx, id)
	}
	return nil
}

// staleWriteError distinguishes a vanished request from a version mismatch.
func (s *Store) staleWriteError(ctx context.Context, id procure.RequestID) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM requests WHERE id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return procure.ErrRequestNotFound
	}
	return procure.ErrConflict
}

func (s *Store) getRequest(ctx context.Context, id procure.RequestID) (*procure.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, requester_id, title, description, department, status, priority,
		       total_amount, budget_code, fiscal_year, preferred_vendor, po_number,
		       notes, needed_by, ordered_at, received_at, version, created_at, updated_at
		FROM requests WHERE id = ?`, id)
	return scanRequest(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*procure.Request, error) {
	var (
		req                             procure.Request
		description, department         sql.NullString
		budgetCode, fiscalYear          sql.NullString
		preferredVendor, poNumber       sql.NullString
		notes                           sql.NullString
		totalAmount                     string
		neededBy, orderedAt, receivedAt sql.NullString
		createdAt, updatedAt            string
	)

	err := row.Scan(
		&req.ID, &req.RequesterID, &req.Title, &description, &department,
		&req.Status, &req.Priority, &totalAmount, &budgetCode, &fiscalYear,
		&preferredVendor, &poNumber, &notes, &neededBy, &orderedAt, &receivedAt,
		&req.Version, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, procure.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	req.Description = description.String
	req.Department = department.String
	req.BudgetCode = budgetCode.String
	req.FiscalYear = fiscalYear.String
	req.PreferredVendor = preferredVendor.String
	req.PONumber = poNumber.String
	req.Notes = notes.String
	req.TotalAmount = parseDecimal(totalAmount)
	req.NeededBy = parseTimePtr(neededBy)
	req.OrderedAt = parseTimePtr(orderedAt)
	req.ReceivedAt = parseTimePtr(receivedAt)
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)
	return &req, nil
}

func insertLineItems(ctx context.Context, tx *sql.Tx, items []procure.LineItem) error {
	for _, item := range items {
		var unitPrice any
		if item.UnitPrice != nil {
			unitPrice = item.UnitPrice.String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO line_items
			(id, request_id, description, quantity, unit, unit_price, total_price,
			 vendor, vendor_sku, category, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.RequestID, item.Description, item.Quantity, item.Unit,
			unitPrice, item.TotalPrice.String(), item.Vendor, item.VendorSKU,
			item.Category, item.Notes, fmtTime(item.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}
	return nil
}

func insertAuditEntries(ctx context.Context, tx *sql.Tx, entries []procure.AuditEntry) error {
	for _, entry := range entries {
		var detailsJSON any
		if entry.Details != nil {
			b, err := json.Marshal(entry.Details)
			if err != nil {
				return fmt.Errorf("failed to marshal audit details: %w", err)
			}
			detailsJSON = string(b)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_logs (id, request_id, user_id, action, details_json, ip_address, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.RequestID, entry.UserID, entry.Action,
			detailsJSON, nullString(entry.IPAddress), fmtTime(entry.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}
	return nil
}

func (s *Store) queryLineItems(ctx context.Context, id procure.RequestID) ([]procure.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, description, quantity, unit, unit_price, total_price,
		       vendor, vendor_sku, category, notes, created_at
		FROM line_items WHERE request_id = ? ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []procure.LineItem
	for rows.Next() {
		var (
			item                    procure.LineItem
			unit, vendor, vendorSKU sql.NullString
			category, notes         sql.NullString
			unitPrice               sql.NullString
			totalPrice, createdAt   string
		)
		if err := rows.Scan(
			&item.ID, &item.RequestID, &item.Description, &item.Quantity, &unit,
			&unitPrice, &totalPrice, &vendor, &vendorSKU, &category, &notes, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		item.Unit = unit.String
		item.Vendor = vendor.String
		item.VendorSKU = vendorSKU.String
		item.Category = category.String
		item.Notes = notes.String
		item.TotalPrice = parseDecimal(totalPrice)
		item.CreatedAt = parseTime(createdAt)
		if unitPrice.Valid {
			d := parseDecimal(unitPrice.String)
			item.UnitPrice = &d
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) queryApprovals(ctx context.Context, query string, args ...any) ([]procure.Approval, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []procure.Approval
	for rows.Next() {
		var (
			ap          procure.Approval
			comments    sql.NullString
			requestedAt string
			decidedAt   sql.NullString
		)
		if err := rows.Scan(&ap.ID, &ap.RequestID, &ap.ApproverID, &ap.Status,
			&comments, &requestedAt, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		ap.Comments = comments.String
		ap.RequestedAt = parseTime(requestedAt)
		ap.DecidedAt = parseTimePtr(decidedAt)
		approvals = append(approvals, ap)
	}
	return approvals, rows.Err()
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]procure.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []procure.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func scanDocument(row rowScanner) (*procure.Document, error) {
	var (
		doc                        procure.Document
		originalFilename, mimeType sql.NullString
		description, uploadedBy    sql.NullString
		fileSize                   sql.NullInt64
		uploadedAt                 string
	)
	err := row.Scan(&doc.ID, &doc.RequestID, &doc.Type, &doc.Filename,
		&originalFilename, &doc.FilePath, &fileSize, &mimeType,
		&description, &uploadedBy, &uploadedAt)
	if err == sql.ErrNoRows {
		return nil, procure.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.OriginalFilename = originalFilename.String
	doc.MimeType = mimeType.String
	doc.Description = description.String
	doc.UploadedBy = procure.UserID(uploadedBy.String)
	doc.FileSize = fileSize.Int64
	doc.UploadedAt = parseTime(uploadedAt)
	return &doc, nil
}

// =============================================================================
// REQUEST LISTING
// =============================================================================

// RequestFilter narrows ListRequests. Zero values mean "no filter".
type RequestFilter struct {
	Status      string
	Department  string
	RequesterID string
	Priority    string
	Search      string // matches title or description
	Page        int
	PageSize    int
}

// RequestSummary is the lightweight row returned by list views.
type RequestSummary struct {
	ID            procure.RequestID
	Title         string
	Department    string
	Status        procure.Status
	Priority      procure.Priority
	TotalAmount   decimal.Decimal
	RequesterID   procure.UserID
	RequesterName string
	CreatedAt     time.Time
	NeededBy      *time.Time
}

// ListRequests returns request summaries newest first, filtered and
// paginated.
func (s *Store) ListRequests(ctx context.Context, f RequestFilter) ([]RequestSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, f.Status)
	}
	if f.Department != "" {
		where = append(where, "r.department = ?")
		args = append(args, f.Department)
	}
	if f.RequesterID != "" {
		where = append(where, "r.requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.Priority != "" {
		where = append(where, "r.priority = ?")
		args = append(args, f.Priority)
	}
	if f.Search != "" {
		where = append(where, "(r.title LIKE ? OR r.description LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := `
		SELECT r.id, r.title, r.department, r.status, r.priority, r.total_amount,
		       r.requester_id, u.name, r.created_at, r.needed_by
		FROM requests r
		LEFT JOIN users u ON u.id = r.requester_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.created_at DESC"

	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, pageSize, (page-1)*pageSize)

	return s.querySummaries(ctx, query, args...)
}

// ListByStatuses returns summaries for requests in any of the given
// statuses, oldest first. The pipeline aging report uses this.
func (s *Store) ListByStatuses(ctx context.Context, statuses []procure.Status) ([]RequestSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}

	return s.querySummaries(ctx, `
		SELECT r.id, r.title, r.department, r.status, r.priority, r.total_amount,
		       r.requester_id, u.name, r.created_at, r.needed_by
		FROM requests r
		LEFT JOIN users u ON u.id = r.requester_id
		WHERE r.status IN (`+placeholders+`)
		ORDER BY r.created_at ASC`, args...)
}

func (s *Store) querySummaries(ctx context.Context, query string, args ...any) ([]RequestSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RequestSummary
	for rows.Next() {
		var (
			r                         RequestSummary
			department, requesterName sql.NullString
			totalAmount, createdAt    string
			neededBy                  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Title, &department, &r.Status, &r.Priority,
			&totalAmount, &r.RequesterID, &requesterName, &createdAt, &neededBy); err != nil {
			return nil, fmt.Errorf("failed to scan request summary: %w", err)
		}
		r.Department = department.String
		r.RequesterName = requesterName.String
		r.TotalAmount = parseDecimal(totalAmount)
		r.CreatedAt = parseTime(createdAt)
		r.NeededBy = parseTimePtr(neededBy)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// USER STORE (procure.Directory interface)
// =============================================================================

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id procure.UserID) (*procure.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "WHERE id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*procure.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "WHERE email = ?", email)
}

// GetUserByAPIKey retrieves an active user by API key.
func (s *Store) GetUserByAPIKey(ctx context.Context, apiKey string) (*procure.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "WHERE api_key = ? AND is_active = 1", apiKey)
}

func (s *Store) queryUser(ctx context.Context, clause string, args ...any) (*procure.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, department, role, api_key, is_active, created_at, updated_at
		FROM users `+clause, args...)
	return scanUser(row)
}

func scanUser(row rowScanner) (*procure.User, error) {
	var (
		u                    procure.User
		department, apiKey   sql.NullString
		isActive             int
		createdAt, updatedAt string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &department, &u.Role, &apiKey,
		&isActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, procure.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Department = department.String
	u.APIKey = apiKey.String
	u.IsActive = isActive == 1
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// SaveUser inserts or updates a user record.
func (s *Store) SaveUser(ctx context.Context, u *procure.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	isActive := 0
	if u.IsActive {
		isActive = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, department, role, api_key, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			department = excluded.department,
			role = excluded.role,
			api_key = excluded.api_key,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		u.ID, u.Email, u.Name, u.Department, u.Role, nullString(u.APIKey),
		isActive, fmtTime(u.CreatedAt), fmtTime(u.UpdatedAt),
	)
	return err
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Role       string
	Department string
	ActiveOnly bool
}

// ListUsers returns users ordered by name.
func (s *Store) ListUsers(ctx context.Context, f UserFilter) ([]procure.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.Department != "" {
		where = append(where, "department = ?")
		args = append(args, f.Department)
	}
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT id, email, name, department, role, api_key, is_active, created_at, updated_at FROM users`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name"

	return s.queryUsers(ctx, query, args...)
}

// ListApprovers returns all active users with approval rights.
func (s *Store) ListApprovers(ctx context.Context) ([]procure.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryUsers(ctx, `
		SELECT id, email, name, department, role, api_key, is_active, created_at, updated_at
		FROM users
		WHERE role IN ('approver', 'admin') AND is_active = 1
		ORDER BY name`)
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]procure.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []procure.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// =============================================================================
// APPROVAL QUERIES
// =============================================================================

// ListApprovals returns all approvals for a request, newest first.
func (s *Store) ListApprovals(ctx context.Context, requestID procure.RequestID) ([]procure.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApprovals(ctx, `
		SELECT id, request_id, approver_id, status, comments, requested_at, decided_at
		FROM approvals WHERE request_id = ?
		ORDER BY requested_at DESC`, requestID)
}

// PendingApprovals returns the approver's open queue, oldest first.
func (s *Store) PendingApprovals(ctx context.Context, approverID procure.UserID) ([]procure.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApprovals(ctx, `
		SELECT id, request_id, approver_id, status, comments, requested_at, decided_at
		FROM approvals WHERE approver_id = ? AND status = 'pending'
		ORDER BY requested_at ASC`, approverID)
}

// ApprovalHistory returns the approver's decided approvals, newest first.
func (s *Store) ApprovalHistory(ctx context.Context, approverID procure.UserID, limit int) ([]procure.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.queryApprovals(ctx, `
		SELECT id, request_id, approver_id, status, comments, requested_at, decided_at
		FROM approvals WHERE approver_id = ? AND status != 'pending'
		ORDER BY decided_at DESC LIMIT ?`, approverID, limit)
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// AddDocument inserts a document record and its audit entry atomically.
func (s *Store) AddDocument(ctx context.Context, doc *procure.Document, entry procure.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fileSize any
	if doc.FileSize > 0 {
		fileSize = doc.FileSize
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents
		(id, request_id, doc_type, filename, original_filename, file_path,
		 file_size, mime_type, description, uploaded_by, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.RequestID, doc.Type, doc.Filename, doc.OriginalFilename,
		doc.FilePath, fileSize, doc.MimeType, doc.Description,
		nullString(string(doc.UploadedBy)), fmtTime(doc.UploadedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	if err := insertAuditEntries(ctx, tx, []procure.AuditEntry{entry}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetDocument retrieves a document scoped to its request.
func (s *Store) GetDocument(ctx context.Context, requestID procure.RequestID, docID procure.DocumentID) (*procure.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, doc_type, filename, original_filename, file_path,
		       file_size, mime_type, description, uploaded_by, uploaded_at
		FROM documents WHERE id = ? AND request_id = ?`, docID, requestID)
	return scanDocument(row)
}

// ListDocuments returns documents for a request, optionally filtered by type.
func (s *Store) ListDocuments(ctx context.Context, requestID procure.RequestID, docType string) ([]procure.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, request_id, doc_type, filename, original_filename, file_path,
		       file_size, mime_type, description, uploaded_by, uploaded_at
		FROM documents WHERE request_id = ?`
	args := []any{requestID}
	if docType != "" {
		query += " AND doc_type = ?"
		args = append(args, docType)
	}
	query += " ORDER BY uploaded_at DESC"

	return s.queryDocuments(ctx, query, args...)
}

// DeleteDocument removes a document record and appends its audit entry in
// one transaction. Removing the file on disk is the caller's job.
func (s *Store) DeleteDocument(ctx context.Context, requestID procure.RequestID, docID procure.DocumentID, entry procure.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE id = ? AND request_id = ?", docID, requestID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return procure.ErrDocumentNotFound
	}

	if err := insertAuditEntries(ctx, tx, []procure.AuditEntry{entry}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

// ListAudit returns the audit trail for a request, newest first.
func (s *Store) ListAudit(ctx context.Context, requestID procure.RequestID) ([]procure.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, user_id, action, details_json, ip_address, created_at
		FROM audit_logs WHERE request_id = ?
		ORDER BY created_at DESC, id DESC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []procure.AuditEntry
	for rows.Next() {
		var (
			entry               procure.AuditEntry
			reqID, userID       sql.NullString
			detailsJSON, ipAddr sql.NullString
			createdAt           string
		)
		if err := rows.Scan(&entry.ID, &reqID, &userID, &entry.Action,
			&detailsJSON, &ipAddr, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.RequestID = procure.RequestID(reqID.String)
		entry.UserID = procure.UserID(userID.String)
		entry.IPAddress = ipAddr.String
		entry.CreatedAt = parseTime(createdAt)
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
