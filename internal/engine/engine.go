// Package engine owns the arbitrage decision loop: fetch both venues,
// compare marks, and when the spread clears the threshold submit one
// opposing limit order to each venue, sized to stay inside the notional cap.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"perparb/internal/domain"
	"perparb/internal/venue"
)

// State is the engine's loop state. Transitions are purely time-driven:
// Idle -> Evaluating at the start of a cycle, Evaluating -> Idle when the
// cycle completes, success or handled failure alike.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
)

// Notification event types emitted by the engine.
const (
	EventArbDetected = "arb_detected"
	EventLegFailed   = "leg_failed"
	EventNoCapacity  = "no_capacity"
)

// Notifier delivers operator notifications. notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the engine's trading parameters.
type Config struct {
	// Symbol is the single instrument this instance trades. It must name
	// the same market on both venues.
	Symbol string
	// MinProfit is the absolute mark-price gap required to act.
	MinProfit float64
	// OrderSize is the maximum leg size per cycle.
	OrderSize float64
	// MaxNotional caps each venue's unsigned exposure.
	MaxNotional float64
	// Interval is the delay between cycles.
	Interval time.Duration
	// ShortShave multiplies the mark for the short leg's limit price so the
	// order is marketable against the opposing bids.
	ShortShave float64
	// LongPad multiplies the mark for the long leg's limit price.
	LongPad float64
	// DryRun logs decisions without submitting orders.
	DryRun bool
}

// Engine runs the decision loop over two venue adapters. Exactly one cycle
// is in flight at a time; each adapter's snapshot state stays owned by that
// adapter and is read through its accessors only.
type Engine struct {
	venueA venue.Venue
	venueB venue.Venue
	cfg    Config

	logger   *slog.Logger
	notifier Notifier

	mu    sync.RWMutex
	state State

	clientSeq atomic.Int64
}

// New creates an Engine over the two venues. Zero-valued pricing and timing
// parameters get their defaults: 1s interval, 0.999 short shave, 1.001 long
// pad.
func New(venueA, venueB venue.Venue, cfg Config, logger *slog.Logger, notifier Notifier) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.ShortShave == 0 {
		cfg.ShortShave = 0.999
	}
	if cfg.LongPad == 0 {
		cfg.LongPad = 1.001
	}

	e := &Engine{
		venueA: venueA,
		venueB: venueB,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "engine")),
		state:  StateIdle,
	}
	if notifier != nil {
		e.notifier = notifier
	}
	e.clientSeq.Store(time.Now().UnixNano())
	return e
}

// State returns the current loop state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Run executes cycles until the context is cancelled. Cycle failures are
// logged and never terminate the loop; the next cycle starts from fresh
// fetches after the configured delay.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "engine starting",
		slog.String("symbol", e.cfg.Symbol),
		slog.Float64("min_profit", e.cfg.MinProfit),
		slog.Float64("order_size", e.cfg.OrderSize),
		slog.Float64("max_notional", e.cfg.MaxNotional),
		slog.Bool("dry_run", e.cfg.DryRun),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.WarnContext(ctx, "cycle failed",
				slog.String("error", err.Error()),
			)
		}

		timer.Reset(e.cfg.Interval)
	}
}

// RunCycle executes one full Evaluating cycle: parallel fetch, spread
// decision, and at most one pair of leg submissions.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.setState(StateEvaluating)
	defer e.setState(StateIdle)

	g, fctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.venueA.FetchAll(fctx) })
	g.Go(func() error { return e.venueB.FetchAll(fctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("engine: fetch: %w", err)
	}

	markA, err := e.venueA.Mark(e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("engine: %s mark: %w", e.venueA.Name(), err)
	}
	markB, err := e.venueB.Mark(e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("engine: %s mark: %w", e.venueB.Name(), err)
	}

	diff := markA - markB
	e.logger.DebugContext(ctx, "cycle marks",
		slog.String("symbol", e.cfg.Symbol),
		slog.Float64("mark_a", markA),
		slog.Float64("mark_b", markB),
		slog.Float64("diff", diff),
		slog.Float64("pnl_a", e.venueA.PnL()),
		slog.Float64("pnl_b", e.venueB.PnL()),
	)

	switch {
	case diff > e.cfg.MinProfit:
		e.placeLegs(ctx, e.venueA, markA, e.venueB, markB, diff)
	case diff < -e.cfg.MinProfit:
		e.placeLegs(ctx, e.venueB, markB, e.venueA, markA, -diff)
	}
	return nil
}

// placeLegs shorts the expensive venue and longs the cheap one. Legs are
// submitted in fixed order, short first, and independently: a failed leg is
// logged and notified but never rolls back or suppresses the other. The
// next cycle's fresh position fetch observes whatever actually happened.
func (e *Engine) placeLegs(ctx context.Context, shortVenue venue.Venue, shortMark float64, longVenue venue.Venue, longMark float64, edge float64) {
	sym := e.cfg.Symbol

	e.logger.InfoContext(ctx, "arb opportunity",
		slog.String("symbol", sym),
		slog.String("short_venue", shortVenue.Name()),
		slog.Float64("short_mark", shortMark),
		slog.String("long_venue", longVenue.Name()),
		slog.Float64("long_mark", longMark),
		slog.Float64("edge", edge),
	)
	e.notify(ctx, EventArbDetected, "Arb opportunity",
		fmt.Sprintf("%s: short %s at %.4f / long %s at %.4f (edge %.4f)",
			sym, shortVenue.Name(), shortMark, longVenue.Name(), longMark, edge))

	_, canShort := shortVenue.CanOpen(sym, e.cfg.MaxNotional)
	canLong, _ := longVenue.CanOpen(sym, e.cfg.MaxNotional)
	if !canShort || !canLong {
		e.logger.InfoContext(ctx, "risk gate closed, skipping cycle",
			slog.String("symbol", sym),
			slog.Bool("can_short", canShort),
			slog.Bool("can_long", canLong),
		)
		return
	}

	size := e.legSize(shortVenue, shortMark, longVenue, longMark)
	if size <= 0 {
		e.logger.InfoContext(ctx, "no capacity, skipping order placement",
			slog.String("symbol", sym),
			slog.Float64("max_notional", e.cfg.MaxNotional),
		)
		e.notify(ctx, EventNoCapacity, "No capacity",
			fmt.Sprintf("%s: notional cap %.2f reached on %s/%s",
				sym, e.cfg.MaxNotional, shortVenue.Name(), longVenue.Name()))
		return
	}

	shortOrder := domain.Order{
		Symbol:   sym,
		Side:     domain.SideShort,
		Size:     size,
		Price:    e.cfg.ShortShave * shortMark,
		ClientID: e.nextClientID(),
	}
	longOrder := domain.Order{
		Symbol:   sym,
		Side:     domain.SideLong,
		Size:     size,
		Price:    e.cfg.LongPad * longMark,
		ClientID: e.nextClientID(),
	}

	if e.cfg.DryRun {
		e.logger.InfoContext(ctx, "dry run, orders not submitted",
			slog.Float64("size", size),
			slog.Float64("short_price", shortOrder.Price),
			slog.Float64("long_price", longOrder.Price),
		)
		return
	}

	e.submitLeg(ctx, shortVenue, shortOrder)
	e.submitLeg(ctx, longVenue, longOrder)
}

// legSize returns the per-leg order size: the configured size clamped by
// the notional headroom remaining on each venue being extended, so both
// legs stay equal-sized and neither venue passes its cap.
func (e *Engine) legSize(shortVenue venue.Venue, shortMark float64, longVenue venue.Venue, longMark float64) float64 {
	sym := e.cfg.Symbol
	size := e.cfg.OrderSize

	if headroom := e.cfg.MaxNotional - shortVenue.Position(sym).AbsNotional(shortMark); headroom < size {
		size = headroom
	}
	if headroom := e.cfg.MaxNotional - longVenue.Position(sym).AbsNotional(longMark); headroom < size {
		size = headroom
	}
	return size
}

func (e *Engine) submitLeg(ctx context.Context, v venue.Venue, order domain.Order) {
	err := v.PlaceOrder(ctx, order)
	if err == nil {
		e.logger.InfoContext(ctx, "leg placed",
			slog.String("venue", v.Name()),
			slog.String("side", string(order.Side)),
			slog.Float64("price", order.Price),
			slog.Float64("size", order.Size),
			slog.Int64("client_id", order.ClientID),
		)
		return
	}

	e.logger.ErrorContext(ctx, "leg failed",
		slog.String("venue", v.Name()),
		slog.String("side", string(order.Side)),
		slog.Float64("price", order.Price),
		slog.Float64("size", order.Size),
		slog.String("error", err.Error()),
	)
	e.notify(ctx, EventLegFailed, "Leg failed",
		fmt.Sprintf("%s: %s %s %.4f@%.4f: %v",
			order.Symbol, v.Name(), order.Side, order.Size, order.Price, err))
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Notify(ctx, event, title, message)
}

// nextClientID returns a fresh venue-scoped client id. Ids are unique within
// this process run, which is all cancellation needs.
func (e *Engine) nextClientID() int64 {
	return e.clientSeq.Add(1)
}
