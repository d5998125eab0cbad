/*
handlers.go - HTTP handlers for requests, line items, and approvals

PURPOSE:
  Exposes the procurement lifecycle engine over REST. Handlers parse and
  validate input, resolve the authenticated actor, delegate to the engine or
  coordinator, and translate domain errors to HTTP status codes.

ENDPOINTS (this file):
  Requests:
    GET    /api/requests                     List with filters
    POST   /api/requests                     Create (draft)
    GET    /api/requests/{id}                Full aggregate
    PUT    /api/requests/{id}                Field patch (draft/rejected)
    DELETE /api/requests/{id}                Delete (draft only)
    POST   /api/requests/{id}/submit         draft -> pending
    POST   /api/requests/{id}/transition     Generic status move
    GET    /api/requests/{id}/audit          Audit trail

  Line items:
    POST   /api/requests/{id}/items
    PUT    /api/requests/{id}/items/{itemID}
    DELETE /api/requests/{id}/items/{itemID}

  Approvals:
    GET    /api/requests/{id}/approvals      Approvals on a request
    POST   /api/requests/{id}/approvals      Ask a user to approve
    POST   /api/requests/{id}/approve        Decide: approve
    POST   /api/requests/{id}/reject         Decide: reject
    GET    /api/approvals/pending            Caller's open queue
    GET    /api/approvals/history            Caller's decided approvals

ERROR MAPPING:
  404  not-found sentinels
  409  version conflict (concurrent writer won)
  400  validation failures and rule violations (bad transition, immutable
       status, empty submit, approval eligibility)
  500  everything else, logged with the request id

SEE ALSO:
  - dto.go: payload shapes and converters
  - users.go, documents.go, reports.go: remaining endpoint groups
  - server.go: router wiring
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/adukes40/ReqPath/procure"
	"github.com/adukes40/ReqPath/storage"
	"github.com/adukes40/ReqPath/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Engine      *procure.Engine
	Coordinator *procure.Coordinator
	Files       *storage.Service
	Log         *logrus.Logger
	Validate    *validator.Validate

	// StaticKeys authenticate as the system admin; see auth.go.
	StaticKeys map[string]bool
}

// NewHandler wires a handler around the store and its services.
func NewHandler(store *sqlite.Store, files *storage.Service, log *logrus.Logger, staticKeys []string) *Handler {
	keys := make(map[string]bool, len(staticKeys))
	for _, k := range staticKeys {
		keys[k] = true
	}
	return &Handler{
		Store:       store,
		Engine:      procure.NewEngine(store),
		Coordinator: procure.NewCoordinator(store, store),
		Files:       files,
		Log:         log,
		Validate:    validator.New(),
		StaticKeys:  keys,
	}
}

// decode unmarshals and validates a JSON body into dst.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.Validate.Struct(dst)
}

// =============================================================================
// REQUESTS
// =============================================================================

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	summaries, err := h.Store.ListRequests(r.Context(), sqlite.RequestFilter{
		Status:      q.Get("status"),
		Department:  q.Get("department"),
		RequesterID: q.Get("requester_id"),
		Priority:    q.Get("priority"),
		Search:      q.Get("search"),
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	out := make([]RequestSummaryDTO, 0, len(summaries))
	for i := range summaries {
		out = append(out, toSummaryDTO(&summaries[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateRequestRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	items := make([]procure.LineItemInput, 0, len(req.LineItems))
	for _, dto := range req.LineItems {
		in, err := toLineItemInput(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid unit price", err)
			return
		}
		items = append(items, in)
	}

	user := userFrom(r.Context())
	agg, err := h.Engine.Create(r.Context(), user.Actor(), procure.CreateRequestInput{
		Title:           req.Title,
		Description:     req.Description,
		Department:      req.Department,
		Priority:        procure.Priority(req.Priority),
		BudgetCode:      req.BudgetCode,
		FiscalYear:      req.FiscalYear,
		PreferredVendor: req.PreferredVendor,
		NeededBy:        req.NeededBy,
		Notes:           req.Notes,
		LineItems:       items,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(agg))
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))
	agg, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(agg))
}

func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	var req UpdateRequestRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	patch := procure.RequestPatch{
		Title:           req.Title,
		Description:     req.Description,
		Department:      req.Department,
		BudgetCode:      req.BudgetCode,
		FiscalYear:      req.FiscalYear,
		PreferredVendor: req.PreferredVendor,
		PONumber:        req.PONumber,
		Notes:           req.Notes,
		NeededBy:        req.NeededBy,
	}
	if req.Priority != nil {
		p := procure.Priority(*req.Priority)
		patch.Priority = &p
	}

	user := userFrom(r.Context())
	agg, err := h.Engine.Update(r.Context(), user.Actor(), id, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(agg))
}

func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))
	user := userFrom(r.Context())

	if err := h.Engine.Delete(r.Context(), user.Actor(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))
	user := userFrom(r.Context())

	agg, err := h.Engine.Submit(r.Context(), user.Actor(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(agg))
}

func (h *Handler) TransitionRequest(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	user := userFrom(r.Context())
	agg, err := h.Engine.Transition(r.Context(), user.Actor(), id, procure.Status(req.Status), req.Notes)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(agg))
}

func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	// Verify the request exists so an unknown id is a 404, not an empty list.
	if _, err := h.Engine.Get(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}

	entries, err := h.Store.ListAudit(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]AuditEntryDTO, 0, len(entries))
	for i := range entries {
		out = append(out, toAuditDTO(&entries[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func (h *Handler) AddLineItem(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	var req LineItemInputDTO
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	in, err := toLineItemInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unit price", err)
		return
	}

	user := userFrom(r.Context())
	item, err := h.Engine.AddLineItem(r.Context(), user.Actor(), id, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineItemDTO(item))
}

func (h *Handler) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))
	itemID := procure.ItemID(chi.URLParam(r, "itemID"))

	var req UpdateLineItemRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	patch := procure.LineItemPatch{
		Description: req.Description,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		Vendor:      req.Vendor,
		VendorSKU:   req.VendorSKU,
		Category:    req.Category,
		Notes:       req.Notes,
	}
	if req.UnitPrice != nil {
		price, err := parsePrice(req.UnitPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid unit price", err)
			return
		}
		patch.UnitPrice = procure.OptionalPrice{Set: true, Value: price}
	}

	user := userFrom(r.Context())
	item, err := h.Engine.UpdateLineItem(r.Context(), user.Actor(), id, itemID, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineItemDTO(item))
}

func (h *Handler) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))
	itemID := procure.ItemID(chi.URLParam(r, "itemID"))
	user := userFrom(r.Context())

	if err := h.Engine.DeleteLineItem(r.Context(), user.Actor(), id, itemID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// APPROVALS
// =============================================================================

func (h *Handler) ListRequestApprovals(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	if _, err := h.Engine.Get(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}

	approvals, err := h.Store.ListApprovals(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]ApprovalDTO, 0, len(approvals))
	for i := range approvals {
		out = append(out, toApprovalDTO(&approvals[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) RequestApproval(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	var req RequestApprovalRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	user := userFrom(r.Context())
	approval, err := h.Coordinator.RequestApproval(r.Context(), user.Actor(), id, procure.UserID(req.ApproverID))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApprovalDTO(approval))
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, procure.DecisionApproved)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, procure.DecisionRejected)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision procure.Decision) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	// An empty body is a decision with no comments.
	var req DecisionRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	user := userFrom(r.Context())
	approval, err := h.Coordinator.Decide(r.Context(), user.Actor(), id, decision, req.Comments)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(approval))
}

func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	approvals, err := h.Store.PendingApprovals(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]ApprovalDTO, 0, len(approvals))
	for i := range approvals {
		out = append(out, toApprovalDTO(&approvals[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	approvals, err := h.Store.ApprovalHistory(r.Context(), user.ID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]ApprovalDTO, 0, len(approvals))
	for i := range approvals {
		out = append(out, toApprovalDTO(&approvals[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

// respondError maps domain errors to HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case procure.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, procure.ErrConflict):
		writeError(w, http.StatusConflict, "request was modified concurrently", err)
	case procure.IsClientError(err):
		writeError(w, http.StatusBadRequest, "request rejected", err)
	case errors.Is(err, storage.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file too large", err)
	case errors.Is(err, storage.ErrExtensionNotAllowed), errors.Is(err, storage.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "invalid file", err)
	default:
		h.Log.WithFields(logrus.Fields{
			"path":   r.URL.Path,
			"method": r.Method,
		}).WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
