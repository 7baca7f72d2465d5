/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:        Request logging
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. CORS:          Cross-origin requests for frontend
  5. Authenticator: Bearer JWT → placement.Actor (everything under /api)

ROUTE GROUPS:
  /api/consultants/*   Consultant, job details and agreement operations
  /api/agreements/*    Operations addressed by agreement ID
  /api/placements      Placed job details listing
  /api/admin/*         Admin operations
  /api/scenarios/*     Demo scenarios
  /health              Liveness and database check (no auth)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/consultants", func(r chi.Router) {
			r.Get("/", h.ListConsultants)
			r.Post("/", h.RegisterConsultant)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetConsultant)
				r.Delete("/", h.DeleteConsultant)
				r.Put("/assignment", h.AssignStaff)
				r.Put("/work-status", h.UpdateWorkStatus)
				r.Post("/job-lost-count", h.IncrementJobLostCount)

				r.Post("/documents/verification-request", h.RequestDocumentVerification)
				r.Post("/documents/approve", h.ApproveDocuments)
				r.Post("/documents/reject", h.RejectDocuments)
				r.Post("/resume-builder", h.ClaimResume)
				r.Delete("/resume-builder", h.ReleaseResume)
				r.Put("/resume-status", h.UpdateResumeStatus)

				r.Route("/job-details", func(r chi.Router) {
					r.Get("/", h.GetJobDetails)
					r.Post("/", h.CreateJobDetails)
					r.Delete("/", h.DeleteJobDetails)
					r.Put("/status", h.UpdatePlacementStatus)
					r.Put("/fees", h.UpdateFees)
					r.Post("/fees/reset", h.ResetFees)
					r.Post("/reoffer", h.UpdateAfterJobLost)
				})

				r.Route("/agreement", func(r chi.Router) {
					r.Get("/", h.GetAgreement)
					r.Post("/", h.CreateAgreement)
					r.Delete("/", h.DeleteAgreement)
					r.Post("/installments/{n}/proof", h.UploadInstallmentProof)
					r.Get("/installments/{n}/proof", h.DownloadInstallmentProof)
				})
			})
		})

		r.Route("/agreements/{agreementID}", func(r chi.Router) {
			r.Post("/installments/{n}/payment", h.RecordPayment)
			r.Post("/job-lost", h.RecordJobLost)
		})

		r.Get("/placements", h.ListPlacements)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/overdue-sweep", h.SweepOverdue)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
