package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/pdfaccess/internal/api/handlers"
	"github.com/nikhilbhutani/pdfaccess/internal/api/middleware"
	"github.com/nikhilbhutani/pdfaccess/internal/auth"
	"github.com/nikhilbhutani/pdfaccess/internal/config"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

// Deps are the services behind the HTTP API. AnalyzeQueue and BulkQueue may
// be nil when no task queue is configured.
type Deps struct {
	Documents    handlers.DocumentService
	DocumentRepo handlers.DocumentGetter
	Issues       handlers.IssueGetter
	Contents     store.ContentStore
	Machine      handlers.Remediator
	Bulk         handlers.BulkRunner
	AnalyzeQueue handlers.AnalyzeEnqueuer
	BulkQueue    handlers.BulkEnqueuer
	Summaries    handlers.Summarizer
	Audit        AuditReader
	Checks       map[string]handlers.Pinger
}

// AuditReader serves the remediation history and LLM usage routes.
type AuditReader interface {
	handlers.TrailReader
	handlers.UsageReporter
}

type Router struct {
	mux         *chi.Mux
	cfg         *config.Config
	deps        Deps
	jwt         *auth.JWTMiddleware
	rbac        *auth.RBAC
	RateLimiter *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:         chi.NewRouter(),
		cfg:         cfg,
		deps:        deps,
		jwt:         auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		rbac:        auth.NewRBAC(nil),
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.CORS.AllowedOrigins))
	r.Use(rt.RateLimiter.Limit)

	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	docH := handlers.NewDocumentHandler(rt.deps.Documents, rt.deps.DocumentRepo, rt.deps.AnalyzeQueue)
	remH := handlers.NewRemediationHandler(rt.deps.Machine, rt.deps.Issues, rt.deps.Contents, rt.deps.Audit)
	repH := handlers.NewReportsHandler(rt.deps.Summaries, rt.deps.Audit)
	bulkH := handlers.NewBulkHandler(rt.deps.Bulk, rt.deps.BulkQueue)
	perm := rt.rbac.RequirePermission

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)
		r.Use(middleware.Actor)

		r.Route("/documents/{id}", func(r chi.Router) {
			r.With(perm(auth.PermDocumentsAnalyze)).Post("/analyze", docH.Analyze)
			r.With(perm(auth.PermDocumentsRead)).Get("/report", docH.Report)
			r.With(perm(auth.PermDocumentsRead)).Get("/score", docH.Score)
			r.With(perm(auth.PermDocumentsRead)).Get("/issues", docH.Issues)
		})

		r.Route("/issues/{id}/remediation", func(r chi.Router) {
			r.With(perm(auth.PermRemediationRead)).Get("/", remH.Get)
			r.With(perm(auth.PermRemediationGenerate)).Post("/generate", remH.Generate)
			r.With(perm(auth.PermRemediationReview)).Post("/approve", remH.Approve)
			r.With(perm(auth.PermRemediationReview)).Post("/reject", remH.Reject)
			r.With(perm(auth.PermRemediationReview)).Post("/fail", remH.Fail)
			r.With(perm(auth.PermRemediationRead)).Get("/history", remH.History)
			r.With(perm(auth.PermRemediationImplement)).Post("/implement", remH.Implement)
		})

		r.Route("/reports", func(r chi.Router) {
			r.With(perm(auth.PermDocumentsRead)).Get("/summary", repH.Summary)
			r.With(perm(auth.PermReportsUsage)).Get("/llm-usage", repH.Usage)
		})

		r.Route("/remediation/bulk", func(r chi.Router) {
			r.Use(perm(auth.PermRemediationBulk))
			r.Post("/", bulkH.Run)
			r.Post("/async", bulkH.Enqueue)
		})
	})

	return r
}
