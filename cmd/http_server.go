package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amacgov/revenue-collection/internal"
	"github.com/amacgov/revenue-collection/internal/auth"
	"github.com/amacgov/revenue-collection/internal/core/events"
	"github.com/amacgov/revenue-collection/internal/gateway"
	"github.com/amacgov/revenue-collection/internal/notification"
	"github.com/amacgov/revenue-collection/internal/payment"
	paymentpg "github.com/amacgov/revenue-collection/internal/payment/postgres"
	"github.com/amacgov/revenue-collection/internal/receipt"
	receiptpg "github.com/amacgov/revenue-collection/internal/receipt/postgres"
	"github.com/amacgov/revenue-collection/internal/reconciliation"
	reconciliationpg "github.com/amacgov/revenue-collection/internal/reconciliation/postgres"
	"github.com/amacgov/revenue-collection/internal/reference"
	"github.com/amacgov/revenue-collection/internal/transport"
	"github.com/amacgov/revenue-collection/internal/transport/rest"
	"github.com/amacgov/revenue-collection/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle payment and reconciliation API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config                *internal.Config
	DB                    *sqlx.DB
	Router                *chi.Mux
	TokenService          *auth.JWTTokenService
	PaymentHandler        *payment.Handler
	WebhookHandler        *payment.WebhookHandler
	ReconciliationHandler *reconciliation.Handler
	Logger                *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Config.Server.AllowedOrigins, deps.TokenService,
		deps.PaymentHandler, deps.WebhookHandler, deps.ReconciliationHandler, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitWithConfig(config.Observability.Logging.Level, config.Observability.Logging.Format)
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	eventBus := events.NewEventBus(appLogger)
	baseHandler := transport.NewBaseHandler(appLogger)

	gatewayClient := gateway.NewClient(gateway.ClientConfig{
		BaseURL:        config.Gateway.BaseURL,
		MerchantID:     config.Gateway.MerchantID,
		ServiceTypeID:  config.Gateway.ServiceTypeID,
		APIKey:         config.Gateway.APIKey,
		PublicKey:      config.Gateway.PublicKey,
		RequestTimeout: config.Gateway.RequestTimeout,
		MaxRetries:     config.Gateway.MaxRetries,
		RetryBackoff:   config.Gateway.RetryBackoff,
	}, appLogger)
	webhookVerifier := gateway.NewWebhookVerifier(config.Gateway.WebhookSecret)

	receiptService := receipt.NewService(receiptpg.NewReceiptRepository(gormDB), appLogger)

	paymentRepository := paymentpg.NewPaymentRepository(gormDB)
	reconciliationLog := reconciliationpg.NewLogRepository(gormDB)

	paymentService := payment.NewService(
		paymentRepository,
		gatewayClient,
		reference.NewGenerator(),
		receiptService,
		eventBus,
		appLogger,
	)

	reconciliationEngine := reconciliation.NewEngine(
		paymentpg.NewReconciliationStore(gormDB),
		reconciliationLog,
		reconciliation.NewFeedClient(config.Reconciliation),
		reconciliation.EngineConfig{
			GraceWindow:   config.Reconciliation.GraceWindow,
			AmountEpsilon: config.Reconciliation.AmountEpsilon,
		},
		appLogger,
	)

	notifier := notification.NewSubscriber(
		notification.NewHTTPSender(config.Notification),
		receiptService,
		appLogger,
	)
	notifier.Register(eventBus)

	tokenService := auth.NewJWTTokenService(config.Security.JWTSecret, config.Security.AccessTokenDuration)

	return &Dependencies{
		Config:                config,
		DB:                    db,
		Router:                chi.NewRouter(),
		TokenService:          tokenService,
		PaymentHandler:        payment.NewHandler(baseHandler, paymentService, appLogger),
		WebhookHandler:        payment.NewWebhookHandler(baseHandler, paymentService, webhookVerifier, config.Gateway.AllowUnsigned, appLogger),
		ReconciliationHandler: reconciliation.NewHandler(baseHandler, reconciliationEngine, reconciliationLog, paymentRepository, appLogger),
		Logger:                appLogger,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
