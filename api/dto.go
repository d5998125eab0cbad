/*
dto.go - Request/response payloads for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients, kept separate from the domain types so
  wire compatibility never leaks into the engine. Input structs carry
  go-playground/validator tags; converters translate between DTOs and
  domain entities.

MONEY ON THE WIRE:
  decimal.Decimal marshals as a quoted string ("149.99"), which clients must
  parse with their own decimal type. Unit prices arrive as strings for the
  same reason: a JSON float64 would lose cents.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/adukes40/ReqPath/procure"
	"github.com/adukes40/ReqPath/store/sqlite"
)

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	Role       string    `json:"role"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// APIKey is present only in the create response; it is never readable
	// again afterwards.
	APIKey string `json:"api_key,omitempty"`
}

type CreateUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required,max=200"`
	Department string `json:"department" validate:"max=100"`
	Role       string `json:"role" validate:"omitempty,oneof=requester approver admin"`
}

type UpdateUserRequest struct {
	Name       *string `json:"name" validate:"omitempty,max=200"`
	Department *string `json:"department" validate:"omitempty,max=100"`
	Role       *string `json:"role" validate:"omitempty,oneof=requester approver admin"`
	IsActive   *bool   `json:"is_active"`
}

func toUserDTO(u *procure.User, includeKey bool) UserDTO {
	dto := UserDTO{
		ID:         string(u.ID),
		Email:      u.Email,
		Name:       u.Name,
		Department: u.Department,
		Role:       string(u.Role),
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
	if includeKey {
		dto.APIKey = u.APIKey
	}
	return dto
}

// =============================================================================
// REQUESTS
// =============================================================================

type LineItemDTO struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Quantity    int              `json:"quantity"`
	Unit        string           `json:"unit,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal  `json:"total_price"`
	Vendor      string           `json:"vendor,omitempty"`
	VendorSKU   string           `json:"vendor_sku,omitempty"`
	Category    string           `json:"category,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type ApprovalDTO struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"request_id"`
	ApproverID  string     `json:"approver_id"`
	Status      string     `json:"status"`
	Comments    string     `json:"comments,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at"`
}

type DocumentDTO struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	DocType          string    `json:"doc_type"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	FileSize         int64     `json:"file_size,omitempty"`
	MimeType         string    `json:"mime_type,omitempty"`
	Description      string    `json:"description,omitempty"`
	UploadedBy       string    `json:"uploaded_by,omitempty"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

type RequestDTO struct {
	ID              string          `json:"id"`
	RequesterID     string          `json:"requester_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Department      string          `json:"department,omitempty"`
	Status          string          `json:"status"`
	Priority        string          `json:"priority"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	BudgetCode      string          `json:"budget_code,omitempty"`
	FiscalYear      string          `json:"fiscal_year,omitempty"`
	PreferredVendor string          `json:"preferred_vendor,omitempty"`
	PONumber        string          `json:"po_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	NeededBy        *time.Time      `json:"needed_by"`
	OrderedAt       *time.Time      `json:"ordered_at"`
	ReceivedAt      *time.Time      `json:"received_at"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	LineItems []LineItemDTO `json:"line_items"`
	Approvals []ApprovalDTO `json:"approvals"`
	Documents []DocumentDTO `json:"documents"`
}

// RequestSummaryDTO is the slim row returned by list endpoints.
type RequestSummaryDTO struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Department    string          `json:"department,omitempty"`
	Status        string          `json:"status"`
	Priority      string          `json:"priority"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	RequesterID   string          `json:"requester_id"`
	RequesterName string          `json:"requester_name,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	NeededBy      *time.Time      `json:"needed_by"`
}

type LineItemInputDTO struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    int     `json:"quantity" validate:"omitempty,gte=1,lte=100000"`
	Unit        string  `json:"unit" validate:"max=50"`
	UnitPrice   *string `json:"unit_price"`
	Vendor      string  `json:"vendor" validate:"max=200"`
	VendorSKU   string  `json:"vendor_sku" validate:"max=100"`
	Category    string  `json:"category" validate:"max=100"`
	Notes       string  `json:"notes" validate:"max=1000"`
}

type CreateRequestRequest struct {
	Title           string             `json:"title" validate:"required,max=300"`
	Description     string             `json:"description" validate:"max=5000"`
	Department      string             `json:"department" validate:"max=100"`
	Priority        string             `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	BudgetCode      string             `json:"budget_code" validate:"max=50"`
	FiscalYear      string             `json:"fiscal_year" validate:"max=10"`
	PreferredVendor string             `json:"preferred_vendor" validate:"max=200"`
	Notes           string             `json:"notes" validate:"max=5000"`
	NeededBy        *time.Time         `json:"needed_by"`
	LineItems       []LineItemInputDTO `json:"line_items" validate:"dive"`
}

type UpdateRequestRequest struct {
	Title           *string    `json:"title" validate:"omitempty,max=300"`
	Description     *string    `json:"description" validate:"omitempty,max=5000"`
	Department      *string    `json:"department" validate:"omitempty,max=100"`
	Priority        *string    `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	BudgetCode      *string    `json:"budget_code" validate:"omitempty,max=50"`
	FiscalYear      *string    `json:"fiscal_year" validate:"omitempty,max=10"`
	PreferredVendor *string    `json:"preferred_vendor" validate:"omitempty,max=200"`
	PONumber        *string    `json:"po_number" validate:"omitempty,max=50"`
	Notes           *string    `json:"notes" validate:"omitempty,max=5000"`
	NeededBy        *time.Time `json:"needed_by"`
}

type UpdateLineItemRequest struct {
	Description *string `json:"description" validate:"omitempty,max=500"`
	Quantity    *int    `json:"quantity" validate:"omitempty,gte=1,lte=100000"`
	Unit        *string `json:"unit" validate:"omitempty,max=50"`
	UnitPrice   *string `json:"unit_price"`
	Vendor      *string `json:"vendor" validate:"omitempty,max=200"`
	VendorSKU   *string `json:"vendor_sku" validate:"omitempty,max=100"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	Notes       *string `json:"notes" validate:"omitempty,max=1000"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=1000"`
}

type RequestApprovalRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
}

type DecisionRequest struct {
	Comments string `json:"comments" validate:"max=2000"`
}

type AuditEntryDTO struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id"`
	UserID    string         `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toRequestDTO(agg *procure.Aggregate) RequestDTO {
	req := agg.Request
	dto := RequestDTO{
		ID:              string(req.ID),
		RequesterID:     string(req.RequesterID),
		Title:           req.Title,
		Description:     req.Description,
		Department:      req.Department,
		Status:          string(req.Status),
		Priority:        string(req.Priority),
		TotalAmount:     req.TotalAmount,
		BudgetCode:      req.BudgetCode,
		FiscalYear:      req.FiscalYear,
		PreferredVendor: req.PreferredVendor,
		PONumber:        req.PONumber,
		Notes:           req.Notes,
		NeededBy:        req.NeededBy,
		OrderedAt:       req.OrderedAt,
		ReceivedAt:      req.ReceivedAt,
		Version:         req.Version,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
		LineItems:       make([]LineItemDTO, 0, len(agg.LineItems)),
		Approvals:       make([]ApprovalDTO, 0, len(agg.Approvals)),
		Documents:       make([]DocumentDTO, 0, len(agg.Documents)),
	}
	for i := range agg.LineItems {
		dto.LineItems = append(dto.LineItems, toLineItemDTO(&agg.LineItems[i]))
	}
	for i := range agg.Approvals {
		dto.Approvals = append(dto.Approvals, toApprovalDTO(&agg.Approvals[i]))
	}
	for i := range agg.Documents {
		dto.Documents = append(dto.Documents, toDocumentDTO(&agg.Documents[i]))
	}
	return dto
}

func toLineItemDTO(item *procure.LineItem) LineItemDTO {
	return LineItemDTO{
		ID:          string(item.ID),
		Description: item.Description,
		Quantity:    item.Quantity,
		Unit:        item.Unit,
		UnitPrice:   item.UnitPrice,
		TotalPrice:  item.TotalPrice,
		Vendor:      item.Vendor,
		VendorSKU:   item.VendorSKU,
		Category:    item.Category,
		Notes:       item.Notes,
		CreatedAt:   item.CreatedAt,
	}
}

func toApprovalDTO(ap *procure.Approval) ApprovalDTO {
	return ApprovalDTO{
		ID:          string(ap.ID),
		RequestID:   string(ap.RequestID),
		ApproverID:  string(ap.ApproverID),
		Status:      string(ap.Status),
		Comments:    ap.Comments,
		RequestedAt: ap.RequestedAt,
		DecidedAt:   ap.DecidedAt,
	}
}

func toDocumentDTO(doc *procure.Document) DocumentDTO {
	return DocumentDTO{
		ID:               string(doc.ID),
		RequestID:        string(doc.RequestID),
		DocType:          string(doc.Type),
		Filename:         doc.Filename,
		OriginalFilename: doc.OriginalFilename,
		FileSize:         doc.FileSize,
		MimeType:         doc.MimeType,
		Description:      doc.Description,
		UploadedBy:       string(doc.UploadedBy),
		UploadedAt:       doc.UploadedAt,
	}
}

func toSummaryDTO(r *sqlite.RequestSummary) RequestSummaryDTO {
	return RequestSummaryDTO{
		ID:            string(r.ID),
		Title:         r.Title,
		Department:    r.Department,
		Status:        string(r.Status),
		Priority:      string(r.Priority),
		TotalAmount:   r.TotalAmount,
		RequesterID:   string(r.RequesterID),
		RequesterName: r.RequesterName,
		CreatedAt:     r.CreatedAt,
		NeededBy:      r.NeededBy,
	}
}

func toAuditDTO(e *procure.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		RequestID: string(e.RequestID),
		UserID:    string(e.UserID),
		Action:    string(e.Action),
		Details:   e.Details,
		CreatedAt: e.CreatedAt,
	}
}

// parsePrice converts a wire price string to a decimal, nil meaning absent.
func parsePrice(s *string) (*decimal.Decimal, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toLineItemInput(dto LineItemInputDTO) (procure.LineItemInput, error) {
	price, err := parsePrice(dto.UnitPrice)
	if err != nil {
		return procure.LineItemInput{}, err
	}
	return procure.LineItemInput{
		Description: dto.Description,
		Quantity:    dto.Quantity,
		Unit:        dto.Unit,
		UnitPrice:   price,
		Vendor:      dto.Vendor,
		VendorSKU:   dto.VendorSKU,
		Category:    dto.Category,
		Notes:       dto.Notes,
	}, nil
}
