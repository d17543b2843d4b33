package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/handler"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	"github.com/noah-isme/clearance-api/pkg/config"
	"github.com/noah-isme/clearance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clearance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clearance-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth          *service.AuthService
	metrics       *service.MetricsService
	db            *sqlx.DB
	engine        *service.ApprovalEngine
	exporter      *service.ExportService
	authority     *service.RoleResolver
	dashboard     *service.DashboardService
	clearance     *service.ClearanceService
	certificates  *service.CertificateService
	documents     *service.DocumentService
	notifications *service.NotificationService
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(deps.metrics, deps.db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	if cfg.Env != config.EnvProduction {
		authHandler := handler.NewAuthHandler(deps.auth)
		api.POST("/auth/token", authHandler.IssueToken)
	}

	clearanceHandler := handler.NewClearanceHandler(deps.clearance, deps.certificates)
	// The signed token is the credential for downloads.
	api.GET("/certificates/download", clearanceHandler.DownloadCertificate)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.auth))

	staffOnly := middleware.RequireRoles(models.PrincipalStaff, models.PrincipalAdmin)
	studentOnly := middleware.RequireRoles(models.PrincipalStudent)

	formHandler := handler.NewFormHandler(deps.engine)
	forms := secured.Group("/forms")
	forms.POST("/:kind", studentOnly, formHandler.Submit)
	forms.GET("/:kind", formHandler.Get)
	forms.POST("/:kind/:id/approve", staffOnly, formHandler.Approve)

	approvalHandler := handler.NewApprovalHandler(deps.engine, deps.exporter, deps.authority)
	approvals := secured.Group("/approvals", staffOnly)
	approvals.GET("/pending", approvalHandler.Pending)
	approvals.GET("/pending/export", approvalHandler.ExportPending)
	approvals.GET("/history", approvalHandler.History)
	approvals.GET("/students", approvalHandler.Students)

	dashboardHandler := handler.NewDashboardHandler(deps.dashboard)
	secured.GET("/dashboard/stats", staffOnly, dashboardHandler.Stats)

	secured.GET("/clearance/status", studentOnly, clearanceHandler.OwnStatus)
	secured.GET("/clearance/status/:studentId",
		middleware.RBAC(string(models.PrincipalStaff), string(models.PrincipalAdmin), middleware.Self),
		clearanceHandler.Status)
	secured.POST("/clearance/certificate", clearanceHandler.IssueCertificate)

	documentHandler := handler.NewDocumentHandler(deps.documents)
	secured.POST("/documents", documentHandler.Record)
	secured.GET("/documents", documentHandler.List)
	secured.POST("/documents/:id/review", staffOnly, documentHandler.Review)

	notificationHandler := handler.NewNotificationHandler(deps.notifications)
	secured.GET("/notifications", notificationHandler.List)
	secured.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	secured.POST("/notifications/:id/read", notificationHandler.MarkRead)

	return r
}
