/*
users.go - User management endpoints

PURPOSE:
  Admin-facing CRUD for users plus the approver listing the frontend uses
  to populate approval pickers. Creating a user mints their API key; the
  key appears once in the create response and is never readable afterwards.

ENDPOINTS:
  GET    /api/users             List (role/department/active filters)
  POST   /api/users             Create, returns the fresh API key
  GET    /api/users/{id}        Get
  PUT    /api/users/{id}        Patch name/department/role/active
  GET    /api/users/approvers   Active approvers and admins
  GET    /api/users/me          The authenticated caller
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adukes40/ReqPath/procure"
	"github.com/adukes40/ReqPath/store/sqlite"
)

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := h.Store.ListUsers(r.Context(), sqlite.UserFilter{
		Role:       q.Get("role"),
		Department: q.Get("department"),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	out := make([]UserDTO, 0, len(users))
	for i := range users {
		out = append(out, toUserDTO(&users[i], false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if _, err := h.Store.GetUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered", nil)
		return
	}

	role := procure.Role(req.Role)
	if role == "" {
		role = procure.RoleRequester
	}

	now := time.Now().UTC()
	user := &procure.User{
		ID:         procure.UserID("user-" + uuid.NewString()),
		Email:      req.Email,
		Name:       req.Name,
		Department: req.Department,
		Role:       role,
		APIKey:     NewAPIKey(),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user, true))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := procure.UserID(chi.URLParam(r, "id"))
	user, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user, false))
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := procure.UserID(chi.URLParam(r, "id"))

	var req UpdateUserRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	user, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Department != nil {
		user.Department = *req.Department
	}
	if req.Role != nil {
		user.Role = procure.Role(*req.Role)
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	user.UpdatedAt = time.Now().UTC()

	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user, false))
}

func (h *Handler) ListApprovers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListApprovers(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]UserDTO, 0, len(users))
	for i := range users {
		out = append(out, toUserDTO(&users[i], false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	writeJSON(w, http.StatusOK, toUserDTO(user, false))
}
