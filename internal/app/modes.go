package app

import (
	"context"
	"fmt"
	"log/slog"

	"perparb/internal/engine"
)

// TradeMode acquires the per-market instance lock (when Redis is configured)
// and runs the arbitrage engine with live order submission.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	if deps.Lock != nil {
		unlock, err := deps.Lock.Acquire(ctx, a.cfg.Trading.Market, a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: acquire instance lock: %w", err)
		}
		defer unlock()
	}

	return a.newEngine(deps, false).Run(ctx)
}

// WatchMode runs the engine in dry-run: spreads are evaluated and logged but
// no orders are ever submitted. No instance lock is taken since a watcher
// cannot conflict with a trader.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	return a.newEngine(deps, true).Run(ctx)
}

func (a *App) newEngine(deps *Dependencies, dryRun bool) *engine.Engine {
	return engine.New(
		deps.ChainVenue,
		deps.CexVenue,
		engine.Config{
			Symbol:      a.cfg.Trading.Market,
			MinProfit:   a.cfg.Trading.MinProfit,
			OrderSize:   a.cfg.Trading.OrderSize,
			MaxNotional: a.cfg.Trading.MaxNotional,
			Interval:    a.cfg.Trading.Interval.Duration,
			ShortShave:  a.cfg.Trading.ShortShave,
			LongPad:     a.cfg.Trading.LongPad,
			DryRun:      dryRun,
		},
		a.logger.With(slog.String("market", a.cfg.Trading.Market)),
		deps.Notifier,
	)
}
