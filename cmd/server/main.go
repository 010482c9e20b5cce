package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/vetpms/backend/internal/application/billing"
	"github.com/vetpms/backend/internal/infrastructure/cache"
	"github.com/vetpms/backend/internal/infrastructure/clinic"
	"github.com/vetpms/backend/internal/infrastructure/config"
	"github.com/vetpms/backend/internal/infrastructure/logger"
	"github.com/vetpms/backend/internal/infrastructure/persistence"
	"github.com/vetpms/backend/internal/interfaces/http/handler"
	"github.com/vetpms/backend/internal/interfaces/http/middleware"
	"github.com/vetpms/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)

	// Analytics cache: Redis when enabled and reachable, in-memory otherwise
	analyticsCache := cache.NewAnalyticsCache(&cfg.Redis, log)

	// Clinic-data service client
	clinicClient := clinic.NewClient(&cfg.Clinic)

	// Initialize application services
	invoiceService := appbilling.NewInvoiceService(invoiceRepo, log,
		appbilling.WithClinicDirectory(clinicClient),
		appbilling.WithAnalyticsCache(analyticsCache),
	)
	paymentService := appbilling.NewPaymentService(paymentRepo, invoiceRepo, log,
		appbilling.WithPaymentAnalyticsCache(analyticsCache),
	)
	analyticsService := appbilling.NewAnalyticsService(invoiceRepo, analyticsCache, cfg.Cache.AnalyticsTTL, log)
	importService := appbilling.NewImportService(clinicClient, invoiceRepo, log)

	// Initialize HTTP handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, analyticsService, importService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	systemHandler := handler.NewSystemHandler(db, version)

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack: request id, panic recovery, request logging, CORS
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithOrigins(cfg.HTTP.CORSAllowOrigins))

	// Register routes at the engine root
	r := router.NewRouter(engine)
	r.Register(invoiceHandler).
		Register(paymentHandler).
		Register(systemHandler)
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
