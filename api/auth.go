/*
auth.go - API key authentication middleware

PURPOSE:
  Resolves the caller before any handler runs. Keys arrive in the X-API-Key
  header or, for browser download links, the api_key query parameter.

TWO KINDS OF KEYS:
  - Static keys from configuration authenticate as the built-in system
    admin. Meant for service callers and for bootstrapping the first real
    users.
  - Per-user keys (pk_ prefix) are minted at user creation and resolve to
    that user's identity and role.

  An unknown or missing key is a 401 before routing reaches any handler;
  an inactive user's key stops working without being deleted.
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/adukes40/ReqPath/procure"
)

// SystemUserID identifies the built-in admin that static keys resolve to.
const SystemUserID = procure.UserID("user-system")

// SystemUserEmail is the seeded system account's address.
const SystemUserEmail = "system@local"

type contextKey string

const userContextKey contextKey = "user"

// NewAPIKey mints a per-user key. The pk_ prefix makes keys recognizable in
// config files and logs without revealing anything.
func NewAPIKey() string {
	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	return "pk_" + raw
}

// userFrom returns the authenticated user stored by the middleware.
func userFrom(ctx context.Context) *procure.User {
	u, _ := ctx.Value(userContextKey).(*procure.User)
	return u
}

func apiKeyFrom(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// Authenticate resolves the API key to a user and rejects the request
// otherwise. The /health endpoint is mounted outside this middleware.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFrom(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key", nil)
			return
		}

		var user *procure.User
		if h.StaticKeys[key] {
			u, err := h.Store.GetUser(r.Context(), SystemUserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "system user not seeded", err)
				return
			}
			user = u
		} else {
			u, err := h.Store.GetUserByAPIKey(r.Context(), key)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid API key", nil)
				return
			}
			user = u
		}

		if !user.IsActive {
			writeError(w, http.StatusUnauthorized, "user is inactive", nil)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireApprover gates a route on approval rights (approver or admin).
func (h *Handler) RequireApprover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		if user == nil || !user.Role.CanApprove() {
			writeError(w, http.StatusForbidden, "approver role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin gates a route on the admin role.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		if user == nil || user.Role != procure.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
