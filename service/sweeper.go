package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rattadan/cacmin-bot-sub002/events"
)

// SweeperConfig holds the intervals for the background maintenance loops.
type SweeperConfig struct {
	LockSweepInterval time.Duration
	DuelSweepInterval time.Duration
	ReconcileInterval time.Duration
}

// DefaultSweeperConfig returns the standard sweep intervals
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		LockSweepInterval: 30 * time.Second,
		DuelSweepInterval: time.Minute,
		ReconcileInterval: 10 * time.Minute,
	}
}

// Sweeper runs the periodic maintenance loops: expired lock removal,
// duel expiry, and ledger-vs-chain reconciliation. Each loop is guarded
// so a slow run is skipped rather than overlapped.
type Sweeper struct {
	locks  LockService
	duels  DuelService
	ledger LedgerService
	bus    *events.Bus
	config SweeperConfig

	lockRunning      atomic.Bool
	duelRunning      atomic.Bool
	reconcileRunning atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a new background sweeper
func NewSweeper(locks LockService, duels DuelService, ledger LedgerService, bus *events.Bus, config SweeperConfig) *Sweeper {
	return &Sweeper{
		locks:  locks,
		duels:  duels,
		ledger: ledger,
		bus:    bus,
		config: config,
	}
}

// Start launches the sweep loops. Call Stop to shut them down.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(3)
	go s.loop(ctx, s.config.LockSweepInterval, &s.lockRunning, s.sweepLocks)
	go s.loop(ctx, s.config.DuelSweepInterval, &s.duelRunning, s.sweepDuels)
	go s.loop(ctx, s.config.ReconcileInterval, &s.reconcileRunning, s.reconcile)

	log.WithFields(log.Fields{
		"lockInterval":      s.config.LockSweepInterval,
		"duelInterval":      s.config.DuelSweepInterval,
		"reconcileInterval": s.config.ReconcileInterval,
	}).Info("Background sweeper started")
}

// Stop signals the loops to exit and waits for them.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Info("Background sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, running *atomic.Bool, fn func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !running.CompareAndSwap(false, true) {
				log.Debug("Previous sweep still running, skipping tick")
				continue
			}
			fn(ctx)
			running.Store(false)
		}
	}
}

func (s *Sweeper) sweepLocks(ctx context.Context) {
	if _, err := s.locks.SweepExpired(ctx); err != nil {
		log.WithError(err).Error("Failed to sweep expired locks")
	}
}

func (s *Sweeper) sweepDuels(ctx context.Context) {
	if _, err := s.duels.CleanExpired(ctx); err != nil {
		log.WithError(err).Error("Failed to expire pending duels")
	}
}

func (s *Sweeper) reconcile(ctx context.Context) {
	result, err := s.ledger.Reconcile(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to reconcile ledger against chain")
		return
	}
	if !result.Matched {
		s.bus.Emit(ctx, events.ReconcileMismatchEvent{
			OnChainBalance: result.OnChainBalance,
			InternalTotal:  result.InternalTotal,
		})
	}
}
