package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/staffline/backoffice/internal/payroll/consumers"
	"github.com/staffline/backoffice/internal/payroll/events"
	"github.com/staffline/backoffice/internal/payroll/handler"
	"github.com/staffline/backoffice/internal/payroll/repository"
	"github.com/staffline/backoffice/internal/payroll/service"
	"github.com/staffline/backoffice/pkg/auth"
	"github.com/staffline/backoffice/pkg/config"
	"github.com/staffline/backoffice/pkg/database"
	"github.com/staffline/backoffice/pkg/httputil"
	"github.com/staffline/backoffice/pkg/logger"
	"github.com/staffline/backoffice/pkg/messaging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation("payroll-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("payroll-service", cfg.Server.Environment)
	log.Info().Msg("starting Payroll Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		log.Info().Msg("payroll schema applied")
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	var notifier service.Notifier = events.Nop{}
	if cfg.Payroll.PublishEvents {
		publisher, err := events.NewPayrollEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		notifier = publisher
	}

	// Initialize repositories
	payrollRepo := repository.NewPayrollRepository(db)
	timesheetRepo := repository.NewTimesheetRepository(db)
	placementRepo := repository.NewPlacementRepository(db)
	payConfigRepo := repository.NewPayConfigRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)

	// Initialize services
	builder := service.NewLineBuilder(
		timesheetRepo,
		placementRepo,
		service.NewBandResolver(payConfigRepo),
		service.DefaultBaselines(timesheetRepo),
		service.LineBuilderConfig{SalaryRemainderOnLastDay: cfg.Payroll.SalaryRemainderOnLastDay},
		log,
	)
	netter := service.NewExpenseNetter(expenseRepo, log)
	payrollService := service.NewPayrollService(
		db, payrollRepo, timesheetRepo, placementRepo, builder, netter, notifier, cfg.Payroll, log,
	)

	// Initialize handlers
	payrollHandler := handler.NewPayrollHandler(payrollService, log)
	authenticator := auth.NewAuthenticator(&cfg.JWT, log)

	// Start timesheet event consumer
	timesheetConsumer, err := consumers.NewTimesheetEventConsumer(rmq, timesheetRepo, payrollService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create timesheet event consumer")
	}
	if err := timesheetConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start timesheet event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no token required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "payroll-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes (operator token required)
	r.With(authenticator.Middleware).Mount("/api/v1/payroll", payrollHandler.Routes())

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the consumer
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
