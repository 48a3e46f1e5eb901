package cmd

import (
	"context"
	"fmt"
	"os"

	paymentpg "github.com/amacgov/revenue-collection/internal/payment/postgres"
	"github.com/amacgov/revenue-collection/internal/reconciliation"
	reconciliationpg "github.com/amacgov/revenue-collection/internal/reconciliation/postgres"
	"github.com/amacgov/revenue-collection/pkg/logger"

	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	reconcileDaysBack    int
	reconcileAutoResolve bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass",
	Long:  `Cross-check recorded payments against the settlement feed and record matches and discrepancies`,
	Run: func(cmd *cobra.Command, args []string) {
		runReconciliation()
	},
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileDaysBack, "days-back", 30, "How many days of payments to check")
	reconcileCmd.Flags().BoolVar(&reconcileAutoResolve, "auto-resolve", false, "Close exact matches without manual sign-off")
}

func runReconciliation() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(config.Observability.Logging.Level, config.Observability.Logging.Format)
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	engine := reconciliation.NewEngine(
		paymentpg.NewReconciliationStore(gormDB),
		reconciliationpg.NewLogRepository(gormDB),
		reconciliation.NewFeedClient(config.Reconciliation),
		reconciliation.EngineConfig{
			GraceWindow:   config.Reconciliation.GraceWindow,
			AmountEpsilon: config.Reconciliation.AmountEpsilon,
		},
		appLogger,
	)

	summary, err := engine.Run(context.Background(), reconcileDaysBack, reconcileAutoResolve)
	if err != nil {
		appLogger.Error("reconciliation failed", "error", err)
		os.Exit(1)
	}

	appLogger.Info("reconciliation complete",
		"total_checked", summary.TotalChecked,
		"matched", summary.Matched,
		"discrepancies", summary.Discrepancies,
		"unresolved", summary.Unresolved,
		"new_matches", summary.NewMatches)
}
