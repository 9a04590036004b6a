package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/config"
	"github.com/straye-as/finance-dashboard/internal/http/handler"
	"github.com/straye-as/finance-dashboard/internal/http/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	_ "github.com/straye-as/finance-dashboard/docs" // swagger docs
)

// HealthCheck checks one dependency for the readiness probe
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers groups the HTTP handlers the router mounts
type Handlers struct {
	Auth         *handler.AuthHandler
	Invoice      *handler.InvoiceHandler
	Identity     *handler.IdentityHandler
	Notification *handler.NotificationHandler
	SystemStatus *handler.SystemStatusHandler
	ActionLog    *handler.ActionLogHandler
}

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	handlers       Handlers
	checks         []HealthCheck
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
	checks ...HealthCheck,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		handlers:       handlers,
		checks:         checks,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))

	// Liveness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	// Readiness: every dependency must answer
	r.Get("/health/ready", rt.ready)

	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	h := rt.handlers
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Use(rt.rateLimiter.LimitByIP)
			r.Post("/auth/login", h.Auth.Login)

			r.Group(func(r chi.Router) {
				r.Use(rt.rateLimiter.LimitIdentity)
				r.Post("/auth/password-reset", h.Identity.StartPasswordReset)
				r.Post("/auth/password-reset/{flowId}/resend", h.Identity.ResendPasswordReset)
				r.Post("/auth/password-reset/{flowId}/verify", h.Identity.VerifyPasswordReset)
				r.Post("/auth/password-reset/{flowId}/complete", h.Identity.CompletePasswordReset)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.Authenticate)
			r.Use(middleware.CaptureUser)
			r.Use(rt.rateLimiter.LimitByUser)

			r.Get("/auth/me", h.Auth.Me)
			r.Post("/auth/refresh", h.Auth.Refresh)
			r.Post("/auth/logout", h.Auth.Logout)

			r.Group(func(r chi.Router) {
				r.Use(rt.rateLimiter.LimitIdentity)
				r.Post("/profile/email-change", h.Identity.StartEmailChange)
				r.Post("/profile/email-change/{flowId}/resend", h.Identity.ResendEmailChange)
				r.Post("/profile/email-change/{flowId}/confirm", h.Identity.ConfirmEmailChange)
			})

			// Permission checks happen per action so that an action the status does
			// not allow reports a conflict rather than a missing permission.
			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.Invoice.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Invoice.Get)
					r.Put("/", h.Invoice.Update)
					r.Get("/actions", h.Invoice.Actions)
					r.Get("/audit-trail", h.Invoice.AuditTrail)
					r.Post("/submit-to-finance", h.Invoice.Submit)
					r.Post("/approve", h.Invoice.Approve)
					r.Post("/reject", h.Invoice.Reject)
					r.Post("/mark-paid", h.Invoice.MarkPaid)
				})
			})

			r.Get("/notifications", h.Notification.List)
			r.Get("/notifications/count", h.Notification.GetUnreadCount)

			r.Get("/system/status", h.SystemStatus.Get)
			r.Get("/action-logs", h.ActionLog.List)
		})
	})

	return r
}

func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]interface{}, len(rt.checks))
	allHealthy := true
	for _, c := range rt.checks {
		if err := c.Check(ctx); err != nil {
			rt.logger.Error("readiness check failed", zap.String("service", c.Name), zap.Error(err))
			checks[c.Name] = map[string]string{"status": "unhealthy", "error": err.Error()}
			allHealthy = false
			continue
		}
		checks[c.Name] = map[string]string{"status": "healthy"}
	}

	status, label := http.StatusOK, "healthy"
	if !allHealthy {
		status, label = http.StatusServiceUnavailable, "unhealthy"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": label,
		"checks": checks,
	})
}
