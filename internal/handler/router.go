package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/handler/middleware"
	"github.com/thatlq1812/user-agreement/internal/handler/response"
	"github.com/thatlq1812/user-agreement/internal/repository"
	"github.com/thatlq1812/user-agreement/internal/service"
)

const (
	apiPrefix = "/api/v1"
	visitPath = apiPrefix + "/consent/visit"
)

// RouterConfig collects what the HTTP API needs
type RouterConfig struct {
	Agreements service.AgreementService
	Consent    service.ConsentService
	Evaluator  service.ConsentEvaluator
	Settings   service.SettingsService
	Ledger     repository.SubmissionLedger
	// Deactivated accounts are refused when set
	Accounts   repository.AccountRepository

	JWTSecret       string
	AdminRoles      []string
	DefaultLangcode string

	// Decision endpoints only; nil disables limiting
	Limiter *middleware.RateLimiter

	Metrics http.Handler
	// Optional readiness probe, e.g. a database ping
	Health func(ctx context.Context) error

	Log *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if len(cfg.AdminRoles) == 0 {
		cfg.AdminRoles = []string{domain.RoleAdministrator}
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.RequestLogger(cfg.Log))

	r.GET("/health", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	agreements := NewAgreementHandler(cfg.Agreements, cfg.DefaultLangcode)
	consent := NewConsentHandler(cfg.Consent, cfg.Evaluator, cfg.Ledger)
	settings := NewSettingsHandler(cfg.Settings)

	limit := func(c *gin.Context) { c.Next() }
	if cfg.Limiter != nil {
		limit = cfg.Limiter.Handler()
	}

	api := r.Group(apiPrefix, middleware.Auth(cfg.JWTSecret))
	if cfg.Accounts != nil {
		api.Use(middleware.ActiveAccount(cfg.Accounts))
	}
	// Everything a non-compliant user needs to become compliant stays reachable
	api.Use(middleware.ComplianceGate(cfg.Evaluator, visitPath,
		apiPrefix+"/consent",
		apiPrefix+"/agreements",
	))
	admin := middleware.RequireRole(cfg.AdminRoles...)

	// Agreements
	api.GET("/agreements", agreements.List)
	api.GET("/agreements/:id", agreements.Get)
	api.POST("/agreements/:id/decision", limit, consent.DecideDirect)

	api.POST("/agreements", admin, agreements.Create)
	api.PUT("/agreements/:id", admin, agreements.Edit)
	api.DELETE("/agreements/:id", admin, agreements.Delete)
	api.GET("/agreements/:id/submissions", admin, agreements.Submissions)

	// Revisions
	rev := api.Group("/agreements/:id/revisions", admin)
	rev.GET("", agreements.Revisions)
	rev.GET("/:vid", agreements.GetRevision)
	rev.DELETE("/:vid", agreements.DeleteRevision)
	rev.POST("/:vid/publish", agreements.Publish)
	rev.POST("/:vid/revert", agreements.Revert)
	rev.POST("/:vid/revert-translation", agreements.RevertTranslation)
	rev.POST("/:vid/set-active", agreements.SetActive)
	rev.GET("/:vid/submissions", agreements.Submissions)

	// Consent flow
	api.GET("/consent/outstanding", consent.Outstanding)
	api.POST("/consent/login", consent.BeginLogin)
	api.GET("/consent/visit", consent.BeginVisit)
	api.GET("/consent/sessions/:sid", consent.Current)
	api.POST("/consent/sessions/:sid/decision", limit, consent.Decide)
	api.POST("/consent/sessions/:sid/cancel", consent.Cancel)

	// Gated
	api.GET("/me/submissions", consent.History)

	// Settings
	api.GET("/settings", admin, settings.Get)
	api.PUT("/settings", admin, settings.Update)

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Route not found")
	})
	return r
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "user-agreement"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "user-agreement"})
	}
}
