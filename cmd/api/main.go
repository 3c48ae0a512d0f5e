package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/rivashah/expense-management-api/api/swagger"
	"github.com/rivashah/expense-management-api/internal/handler"
	"github.com/rivashah/expense-management-api/internal/middleware"
	"github.com/rivashah/expense-management-api/internal/models"
	"github.com/rivashah/expense-management-api/internal/repository"
	"github.com/rivashah/expense-management-api/internal/service"
	"github.com/rivashah/expense-management-api/pkg/cache"
	"github.com/rivashah/expense-management-api/pkg/config"
	"github.com/rivashah/expense-management-api/pkg/database"
	"github.com/rivashah/expense-management-api/pkg/exchange"
	"github.com/rivashah/expense-management-api/pkg/jobs"
	"github.com/rivashah/expense-management-api/pkg/logger"
	corsmiddleware "github.com/rivashah/expense-management-api/pkg/middleware/cors"
	reqidmiddleware "github.com/rivashah/expense-management-api/pkg/middleware/requestid"
	"github.com/rivashah/expense-management-api/pkg/storage"
)

// @title Expense Management API
// @version 1.0.0
// @description Multi-tenant expense submission and approval workflow service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	flowRepo := repository.NewApprovalFlowRepository(db)
	recordRepo := repository.NewApprovalRecordRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, companyRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "expense-management-api",
	})

	currencySvc := service.NewCurrencyService(
		exchange.NewClient(cfg.Exchange),
		cacheRepo,
		cfg.Exchange.CacheTTL,
		logr,
	)

	approvalSvc := service.NewApprovalService(
		expenseRepo,
		flowRepo,
		recordRepo,
		userRepo,
		userRepo,
		logr,
		cfg.Approvals.FastTrackThreshold,
		models.ApprovalRole(cfg.Approvals.FinanceRole),
		service.WithDecisionObserver(metricsSvc),
	)

	expenseSvc := service.NewExpenseService(
		expenseRepo,
		companyRepo,
		userRepo,
		recordRepo,
		approvalSvc,
		currencySvc,
		userRepo,
		nil,
		logr,
	)

	flowSvc := service.NewFlowService(flowRepo, userRepo, userRepo, nil, logr)
	userSvc := service.NewUserService(userRepo, nil, logr)
	dashboardSvc := service.NewDashboardService(expenseRepo, companyRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	flowHandler := handler.NewFlowHandler(flowSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)

	var receiptStorage *storage.LocalStorage
	if cfg.Receipts.StorageDir != "" {
		receiptStorage, err = storage.NewLocalStorage(cfg.Receipts.StorageDir)
		if err != nil {
			logr.Warn("receipt storage unavailable, uploads disabled", zap.Error(err))
		}
	}
	expenseHandler := handler.NewExpenseHandler(expenseSvc, metricsSvc, receiptStorage, cfg.Receipts.MaxFileSizeBytes)

	var (
		reportHandler *handler.ReportHandler
		reportQueue   *jobs.Queue
	)
	if cfg.Reports.Enabled {
		reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init report storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

		reportSvc := service.NewReportService(
			reportRepo,
			expenseRepo,
			nil,
			reportStorage,
			signer,
			metricsSvc,
			nil,
			logr,
			service.ReportServiceConfig{
				ResultTTL:       cfg.Reports.SignedURLTTL,
				CleanupInterval: cfg.Reports.CleanupInterval,
			},
		)
		reportQueue = jobs.NewQueue("reports", reportSvc.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.SetQueue(reportQueue)
		reportQueue.Start(ctx)
		reportSvc.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	// Router.
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	users := api.Group("/users", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), middleware.Audit(userRepo, "admin.users", "users"))
	{
		users.GET("", userHandler.List)
		users.POST("", userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.PUT("/:id/manager", userHandler.AssignManager)
	}

	flow := api.Group("/approval-flow", middleware.JWT(authSvc))
	{
		flow.GET("", flowHandler.Get)
		flow.PUT("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(userRepo, "admin.flow", "approval_flow"), flowHandler.Replace)
	}

	expenses := api.Group("/expenses", middleware.JWT(authSvc))
	{
		expenses.POST("", expenseHandler.Submit)
		expenses.GET("", expenseHandler.List)
		expenses.GET("/:id", expenseHandler.Get)
		expenses.POST("/:id/receipt", expenseHandler.UploadReceipt)
		expenses.GET("/:id/next-approver", approvalHandler.NextApprover)
		expenses.POST("/:id/decision", approvalHandler.Decide)
	}

	api.GET("/approvals/pending", middleware.JWT(authSvc), approvalHandler.Pending)
	api.GET("/dashboard/summary", middleware.JWT(authSvc), dashboardHandler.Summary)

	if reportHandler != nil {
		reports := api.Group("/reports")
		{
			// Downloads are gated by the signed token, not a session.
			reports.GET("/download/:token", reportHandler.Download)

			authed := reports.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleFinance, models.RoleDirector, models.RoleAdmin))
			authed.POST("", reportHandler.Create)
			authed.GET("/:id", reportHandler.Get)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown failed", zap.Error(err))
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
	logr.Info("server stopped")
}
