package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/clearance-api/api/swagger"
	"github.com/noah-isme/clearance-api/internal/repository"
	"github.com/noah-isme/clearance-api/internal/service"
	"github.com/noah-isme/clearance-api/pkg/cache"
	"github.com/noah-isme/clearance-api/pkg/config"
	"github.com/noah-isme/clearance-api/pkg/database"
	"github.com/noah-isme/clearance-api/pkg/export"
	"github.com/noah-isme/clearance-api/pkg/jobs"
	"github.com/noah-isme/clearance-api/pkg/ledger"
	"github.com/noah-isme/clearance-api/pkg/logger"
	"github.com/noah-isme/clearance-api/pkg/messaging"
	"github.com/noah-isme/clearance-api/pkg/storage"
	"github.com/noah-isme/clearance-api/pkg/tracing"
)

// @title Clearance API
// @version 1.0.0
// @description Student clearance approval routing: forms, documents, approvals and certificates.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const certificateSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logr.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logr.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if cfg.Dashboard.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)

	studentRepo := repository.NewStudentRepository(db)
	staffRepo := repository.NewStaffRepository(db)
	formRepo := repository.NewFormRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	completionRepo := repository.NewCompletionRepository(db)

	var publisher *messaging.Publisher
	if cfg.Notifications.NATSURL != "" {
		conn, err := messaging.Connect(cfg.Notifications.NATSURL, "clearance-api", logr)
		if err != nil {
			logr.Warn("nats unavailable, notifications stay local", zap.Error(err))
		} else {
			defer conn.Drain() //nolint:errcheck
			publisher = messaging.NewPublisher(conn, cfg.Notifications.SubjectPrefix, logr)
		}
	}
	var dispatcher *service.NotificationDispatcher
	if publisher != nil {
		dispatcher = service.NewNotificationDispatcher(notificationRepo, staffRepo, publisher, logr)
	} else {
		dispatcher = service.NewNotificationDispatcher(notificationRepo, staffRepo, nil, logr)
	}

	var ledgerClient service.LedgerClient
	if cfg.Audit.LedgerEnabled {
		ledgerClient = ledger.NewHTTPClient(cfg.Audit.LedgerURL, cfg.Audit.Timeout)
	}
	auditSvc := service.NewAuditService(ledgerClient, auditRepo, cfg.Audit.Timeout, metrics, logr)
	auditQueue := jobs.NewQueue("audit", auditSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.Retries,
		Logger:     logr,
	})
	auditQueue.Start(ctx)
	defer auditQueue.Stop()
	auditSvc.UseQueue(auditQueue)

	clearanceSvc := service.NewClearanceService(service.ClearanceServiceDeps{
		Students:    studentRepo,
		Forms:       formRepo,
		Documents:   documentRepo,
		Completions: completionRepo,
		Notifier:    dispatcher,
		Audit:       auditSvc,
		Cache:       cacheSvc,
		Metrics:     metrics,
		CacheTTL:    cfg.Dashboard.CacheTTL,
		Logger:      logr,
	})
	engine := service.NewApprovalEngine(service.ApprovalEngineDeps{
		Forms:      formRepo,
		Students:   studentRepo,
		Notifier:   dispatcher,
		Audit:      auditSvc,
		Completion: clearanceSvc,
		Cache:      cacheSvc,
		Metrics:    metrics,
		Validator:  validate,
		Logger:     logr,
	})
	documentSvc := service.NewDocumentService(service.DocumentServiceDeps{
		Documents:  documentRepo,
		Students:   studentRepo,
		Notifier:   dispatcher,
		Audit:      auditSvc,
		Completion: clearanceSvc,
		Cache:      cacheSvc,
		Metrics:    metrics,
		Validator:  validate,
		Logger:     logr,
	})
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Queue:    engine,
		Students: studentRepo,
		Forms:    formRepo,
		Cache:    cacheSvc,
		CacheTTL: cfg.Dashboard.CacheTTL,
		Logger:   logr,
	})

	certStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare certificate storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	certificateSvc := service.NewCertificateService(clearanceSvc, studentRepo, certStore, signer, nil, service.CertificateConfig{
		APIPrefix: cfg.APIPrefix,
	}, logr)
	go sweepCertificates(ctx, certificateSvc, logr)

	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	router := newRouter(cfg, logr, routeDeps{
		auth:          authSvc,
		metrics:       metrics,
		db:            db,
		engine:        engine,
		exporter:      service.NewExportService(engine, export.NewCSVExporter()),
		authority:     service.NewRoleResolver(studentRepo),
		dashboard:     dashboardSvc,
		clearance:     clearanceSvc,
		certificates:  certificateSvc,
		documents:     documentSvc,
		notifications: service.NewNotificationService(notificationRepo),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func sweepCertificates(ctx context.Context, svc *service.CertificateService, logr *zap.Logger) {
	ticker := time.NewTicker(certificateSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := svc.Cleanup(0)
			if err != nil {
				logr.Warn("certificate cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired certificates removed", zap.Int("count", len(removed)))
			}
		}
	}
}
