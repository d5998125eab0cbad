/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route tree. This is the
  wiring layer that connects URLs to handlers; no business rules live here.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. RealIP:       Client address behind proxies
  3. Logger:       Request logging
  4. Recoverer:    Panic recovery (500 instead of crash)
  5. CORS:         Cross-origin requests for browser clients
  6. Authenticate: API key resolution (everything under /api)

ROUTE GROUPS:
  /health                  Liveness probe, unauthenticated
  /api/users/*             User management (admin-gated writes)
  /api/requests/*          Request lifecycle, line items, documents
  /api/approvals/*         Approver queues (approver-gated)
  /api/reports/*           Spend and pipeline reports

SEE ALSO:
  - handlers.go: handler implementations and error mapping
  - auth.go: authentication middleware
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Authenticate)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Get("/me", h.CurrentUser)
			r.Get("/approvers", h.ListApprovers)
			r.Get("/{id}", h.GetUser)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireAdmin)
				r.Post("/", h.CreateUser)
				r.Put("/{id}", h.UpdateUser)
			})
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.CreateRequest)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRequest)
				r.Put("/", h.UpdateRequest)
				r.Delete("/", h.DeleteRequest)
				r.Post("/submit", h.SubmitRequest)
				r.Post("/transition", h.TransitionRequest)
				r.Get("/audit", h.GetAudit)

				r.Post("/items", h.AddLineItem)
				r.Put("/items/{itemID}", h.UpdateLineItem)
				r.Delete("/items/{itemID}", h.DeleteLineItem)

				r.Get("/approvals", h.ListRequestApprovals)
				r.Post("/approvals", h.RequestApproval)
				r.Group(func(r chi.Router) {
					r.Use(h.RequireApprover)
					r.Post("/approve", h.ApproveRequest)
					r.Post("/reject", h.RejectRequest)
				})

				r.Post("/documents", h.UploadDocument)
				r.Get("/documents", h.ListDocuments)
				r.Get("/documents/{docID}/download", h.DownloadDocument)
				r.Delete("/documents/{docID}", h.DeleteDocument)
			})
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Use(h.RequireApprover)
			r.Get("/pending", h.PendingApprovals)
			r.Get("/history", h.ApprovalHistory)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/spending/monthly", h.SpendingByMonth)
			r.Get("/spending/departments", h.SpendingByDepartment)
			r.Get("/spending/categories", h.SpendingByCategory)
			r.Get("/vendors", h.VendorReport)
			r.Get("/status", h.StatusReport)
			r.Get("/aging", h.AgingReport)
			r.Get("/export", h.ExportRequests)
		})
	})

	return r
}
