/**
 * @description
 * Cron-driven expiry sweeper. Two things decay in this system: pending
 * payment tickets (short TTL, in the ticket store) and payment requests
 * (24-hour TTL, in the database). The sweeper moves lapsed requests to the
 * terminal expired status and evicts dead tickets from stores that cannot
 * expire entries themselves.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stablepay/walletbot/internal/store"
)

// Sweeper runs the periodic expiry jobs.
type Sweeper struct {
	cron     *cron.Cron
	repo     store.Repository
	tickets  store.TicketStore
	logger   *slog.Logger
	schedule string
}

// NewSweeper creates a sweeper on the given cron schedule.
func NewSweeper(repo store.Repository, tickets store.TicketStore, logger *slog.Logger, schedule string) *Sweeper {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Sweeper{
		cron:     c,
		repo:     repo,
		tickets:  tickets,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (s *Sweeper) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.RunSweep); err != nil {
		s.logger.Error("failed to schedule expiry sweep", "error", err)
	} else {
		s.logger.Info("scheduled expiry sweep", "schedule", s.schedule)
	}
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunSweep performs one pass over both decaying stores.
func (s *Sweeper) RunSweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	evicted := s.tickets.Sweep(ctx, now)
	if evicted > 0 {
		s.logger.Info("evicted expired payment tickets", "count", evicted)
	}

	expired, err := s.repo.ExpirePaymentRequestsBefore(ctx, now)
	if err != nil {
		s.logger.Error("failed to expire payment requests", "error", err)
		return
	}
	if expired > 0 {
		s.logger.Info("expired payment requests", "count", expired)
	}
}
