package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/nodeboss/internal/audit"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	"github.com/smallbiznis/nodeboss/internal/auth"
	authdomain "github.com/smallbiznis/nodeboss/internal/auth/domain"
	"github.com/smallbiznis/nodeboss/internal/authorization"
	"github.com/smallbiznis/nodeboss/internal/commission"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/ledger"
	"github.com/smallbiznis/nodeboss/internal/observability"
	obsmiddleware "github.com/smallbiznis/nodeboss/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nodeboss/internal/observability/metrics"
	obstracing "github.com/smallbiznis/nodeboss/internal/observability/tracing"
	"github.com/smallbiznis/nodeboss/internal/organization"
	orgdomain "github.com/smallbiznis/nodeboss/internal/organization/domain"
	"github.com/smallbiznis/nodeboss/internal/providers"
	"github.com/smallbiznis/nodeboss/internal/ratelimit"
	"github.com/smallbiznis/nodeboss/internal/referral"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	"github.com/smallbiznis/nodeboss/internal/reporting"
	reportingdomain "github.com/smallbiznis/nodeboss/internal/reporting/domain"
	"github.com/smallbiznis/nodeboss/internal/sale"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
	"github.com/smallbiznis/nodeboss/internal/user"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	"github.com/smallbiznis/nodeboss/internal/webhook"
	webhookdomain "github.com/smallbiznis/nodeboss/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	organization.Module,
	user.Module,
	auth.Module,
	ledger.Module,
	referral.Module,
	commission.Module,
	sale.Module,
	providers.Module,
	reporting.Module,
	ratelimit.Module,
	webhook.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(newCORS(cfg))
	r.Use(ClientContext())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, cfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authsvc         authdomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	organizationSvc orgdomain.Service
	orgRepo         orgdomain.Repository
	userSvc         userdomain.Service
	referralSvc     referraldomain.Service
	saleSvc         saledomain.Service
	commissionSvc   commissiondomain.Service
	reportingSvc    reportingdomain.Service
	webhookSvc      webhookdomain.Service
	resolveLimiter  *ratelimit.ResolveLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Authsvc         authdomain.Service
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc orgdomain.Service
	OrgRepo         orgdomain.Repository
	UserSvc         userdomain.Service
	ReferralSvc     referraldomain.Service
	SaleSvc         saledomain.Service
	CommissionSvc   commissiondomain.Service
	ReportingSvc    reportingdomain.Service
	WebhookSvc      webhookdomain.Service
	ResolveLimiter  *ratelimit.ResolveLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authsvc:         p.Authsvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		orgRepo:         p.OrgRepo,
		userSvc:         p.UserSvc,
		referralSvc:     p.ReferralSvc,
		saleSvc:         p.SaleSvc,
		commissionSvc:   p.CommissionSvc,
		reportingSvc:    p.ReportingSvc,
		webhookSvc:      p.WebhookSvc,
		resolveLimiter:  p.ResolveLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerPublicRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerPublicRoutes() {
	s.engine.GET("/r/:code", s.ResolveReferral)
	s.engine.POST("/webhooks/:org_id/sales", s.HandleSaleWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.GET("/organization", s.GetOrganization)

	// -------- Users --------
	api.POST("/users", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionUserCreate), s.CreateUser)
	api.GET("/users", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionUserView), s.ListUsers)
	api.GET("/users/:id", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionUserView), s.GetUserByID)
	api.PUT("/users/:id/referrer", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionUserSetReferrer), s.SetUserReferrer)
	api.PUT("/users/:id/big-boss", s.authorizeOrgAction(authorization.ObjectUser, authorization.ActionUserSetBigBoss), s.SetUserBigBoss)

	// -------- Referral links --------
	api.POST("/links", s.authorizeOrgAction(authorization.ObjectReferralLink, authorization.ActionReferralLinkCreate), s.CreateLink)
	api.GET("/links", s.authorizeOrgAction(authorization.ObjectReferralLink, authorization.ActionReferralLinkView), s.ListLinks)
	api.GET("/links/:id", s.authorizeOrgAction(authorization.ObjectReferralLink, authorization.ActionReferralLinkView), s.GetLinkByID)
	api.PATCH("/links/:id/status", s.authorizeOrgAction(authorization.ObjectReferralLink, authorization.ActionReferralLinkUpdate), s.SetLinkStatus)
	api.PATCH("/links/:id/percentage", s.authorizeOrgAction(authorization.ObjectReferralLink, authorization.ActionReferralLinkUpdate), s.UpdateLinkPercentage)

	// -------- Sales --------
	api.POST("/sales", s.authorizeOrgAction(authorization.ObjectSale, authorization.ActionSaleCreate), s.CreatePendingSale)
	api.GET("/sales", s.authorizeOrgAction(authorization.ObjectSale, authorization.ActionSaleView), s.ListSales)
	api.GET("/sales/:id", s.authorizeOrgAction(authorization.ObjectSale, authorization.ActionSaleView), s.GetSaleByID)
	api.POST("/sales/complete", s.authorizeOrgAction(authorization.ObjectSale, authorization.ActionSaleComplete), s.CompleteSale)
	api.POST("/sales/fail", s.authorizeOrgAction(authorization.ObjectSale, authorization.ActionSaleComplete), s.FailSale)
	api.POST("/sales/cancel", s.authorizeOrgAction(authorization.ObjectSale, authorization.ActionSaleComplete), s.CancelSale)

	// -------- Commissions --------
	api.GET("/commissions", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionView), s.ListCommissions)
	api.GET("/commissions/:id", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionView), s.GetCommissionByID)
	api.POST("/commissions/adjustments", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionAdjust), s.CreateAdjustment)

	// -------- Reports --------
	api.GET("/reports/links/:id", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionReportView), s.GetLinkReport)
	api.GET("/reports/users/:id", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionReportView), s.GetUserReport)
	api.GET("/reports/users/:id/statement", s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionReportView), s.GetUserStatement)

	api.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
