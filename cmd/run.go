package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rattadan/cacmin-bot-sub002/chain"
	"github.com/rattadan/cacmin-bot-sub002/config"
	"github.com/rattadan/cacmin-bot-sub002/database"
	"github.com/rattadan/cacmin-bot-sub002/events"
	"github.com/rattadan/cacmin-bot-sub002/money"
	"github.com/rattadan/cacmin-bot-sub002/repository"
	"github.com/rattadan/cacmin-bot-sub002/service"
)

// Application bundles the wired services for upstream callers such as
// chat-command handlers.
type Application struct {
	Ledger   service.LedgerService
	Locks    service.LockService
	Deposits service.DepositService
	Duels    service.DuelService
	Events   *events.Bus
}

// Run initializes and starts the application. Hooks receive the wired
// Application before the background loops start; embedders use them to
// attach their command handlers.
func Run(ctx context.Context, hooks ...func(*Application)) error {
	log.Info("Starting custodial ledger service...")

	// Load configuration
	cfg := config.Get()

	minWager, err := money.Parse(cfg.MinWager)
	if err != nil {
		return fmt.Errorf("invalid MIN_WAGER: %w", err)
	}
	maxWager, err := money.Parse(cfg.MaxWager)
	if err != nil {
		return fmt.Errorf("invalid MAX_WAGER: %w", err)
	}

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize chain RPC client
	chainClient := chain.NewClient(cfg.ChainRPCURL, cfg.ChainRateLimit, 1)

	// Initialize services
	log.Info("Initializing services...")
	ledgerService := service.NewLedgerService(uowFactory, chainClient, cfg.CustodialAddress)
	lockService := service.NewLockService(uowFactory, chainClient, cfg.CustodialAddress, service.LockTimeouts{
		Withdrawal: cfg.WithdrawalLockTimeout,
		Deposit:    cfg.DepositLockTimeout,
		Transfer:   cfg.TransferLockTimeout,
	})
	depositService := service.NewDepositService(chainClient, ledgerService)
	duelService := service.NewDuelService(uowFactory, ledgerService, lockService, service.DuelConfig{
		MinWager: minWager,
		MaxWager: maxWager,
		Expiry:   cfg.DuelExpiry,
	})
	app := &Application{
		Ledger:   ledgerService,
		Locks:    lockService,
		Deposits: depositService,
		Duels:    duelService,
		Events:   eventBus,
	}
	for _, hook := range hooks {
		hook(app)
	}

	// Start background maintenance loops
	sweeper := service.NewSweeper(lockService, duelService, ledgerService, eventBus, service.SweeperConfig{
		LockSweepInterval: cfg.LockSweepInterval,
		DuelSweepInterval: cfg.DuelSweepInterval,
		ReconcileInterval: cfg.ReconcileInterval,
	})
	sweeper.Start(ctx)

	log.WithField("environment", cfg.Environment).Info("Service is running")
	<-ctx.Done()

	// Cleanup resources
	log.Info("Shutting down...")
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("Closing database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Info("Shutdown completed")
	}

	return nil
}
