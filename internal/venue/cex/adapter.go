// Package cex adapts the centralized exchange to the venue contract. The
// exchange already reports real-valued prices and sizes, so the adapter
// passes them through unchanged apart from increment rounding on outbound
// orders.
package cex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"perparb/internal/domain"
	rest "perparb/internal/platform/cex"
	"perparb/internal/venue"
)

// Client is the narrow slice of the REST client the adapter needs.
type Client interface {
	ListMarkets(ctx context.Context) ([]rest.Market, error)
	GetOrderbook(ctx context.Context, market string, depth int) (rest.Orderbook, error)
	GetAccount(ctx context.Context) (rest.Account, error)
	PlaceOrder(ctx context.Context, req rest.PlaceOrderRequest) error
	CancelByClientID(ctx context.Context, clientID int64) error
}

// Config holds the adapter's static parameters.
type Config struct {
	// Symbols restricts which markets are fetched each cycle. Empty means
	// every perpetual the exchange lists.
	Symbols []string
	// BookDepth is the number of levels requested per side, capped by the
	// exchange at 100.
	BookDepth int
	// Risk holds the per-venue risk parameters. The historical default
	// reserves a 10-unit notional buffer on this venue.
	Risk venue.RiskConfig
}

// Adapter implements venue.Venue over the exchange REST client. Snapshot
// maps are rebuilt wholesale on every fetch and swapped in under the lock.
type Adapter struct {
	client Client
	cfg    Config

	mu        sync.RWMutex
	symbols   []string
	infos     map[string]domain.MarketInfo // fetched once, then immutable
	books     map[string]domain.Orderbook
	marks     map[string]float64
	indices   map[string]float64
	positions map[string]domain.Position

	totalNotional float64
	accountValue  float64
	startValue    float64
	initialized   bool
}

// New creates the adapter. Call Init before first use so PnL has a baseline.
func New(client Client, cfg Config) *Adapter {
	if cfg.BookDepth <= 0 || cfg.BookDepth > rest.MaxOrderbookDepth {
		cfg.BookDepth = rest.MaxOrderbookDepth
	}
	return &Adapter{
		client:    client,
		cfg:       cfg,
		infos:     map[string]domain.MarketInfo{},
		books:     map[string]domain.Orderbook{},
		marks:     map[string]float64{},
		indices:   map[string]float64{},
		positions: map[string]domain.Position{},
	}
}

// Name identifies the venue.
func (a *Adapter) Name() string { return "cex" }

// Init performs the establishing fetch and records the starting account
// value for PnL.
func (a *Adapter) Init(ctx context.Context) error {
	if err := a.FetchAll(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	a.startValue = a.accountValue
	a.initialized = true
	a.mu.Unlock()
	return nil
}

// FetchAll refreshes the perpetual market list (symbols and increments are
// cached after the first call, index prices every call), orderbooks,
// positions, and account value, in that order.
func (a *Adapter) FetchAll(ctx context.Context) error {
	if err := a.fetchMarkets(ctx); err != nil {
		return err
	}
	if err := a.fetchOrderbooks(ctx); err != nil {
		return err
	}
	return a.fetchAccount(ctx)
}

func (a *Adapter) fetchMarkets(ctx context.Context) error {
	a.mu.RLock()
	cached := len(a.infos) > 0
	a.mu.RUnlock()

	markets, err := a.client.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("cex venue: fetch markets: %w", err)
	}

	symbols := make([]string, 0, len(markets))
	infos := make(map[string]domain.MarketInfo, len(markets))
	indices := make(map[string]float64, len(markets))

	for _, m := range markets {
		if !strings.Contains(m.Name, "-PERP") {
			continue
		}
		symbols = append(symbols, m.Name)
		infos[m.Name] = domain.MarketInfo{
			PriceIncrement: m.PriceIncrement,
			SizeIncrement:  m.SizeIncrement,
		}
		indices[m.Name] = m.Index
	}

	a.mu.Lock()
	if !cached {
		a.symbols = symbols
		a.infos = infos
	}
	a.indices = indices
	a.mu.Unlock()
	return nil
}

func (a *Adapter) fetchOrderbooks(ctx context.Context) error {
	tracked := a.trackedSymbols()

	books := make(map[string]domain.Orderbook, len(tracked))
	marks := make(map[string]float64, len(tracked))

	for _, sym := range tracked {
		raw, err := a.client.GetOrderbook(ctx, sym, a.cfg.BookDepth)
		if err != nil {
			return fmt.Errorf("cex venue: fetch orderbook %s: %w", sym, err)
		}

		book := domain.Orderbook{
			Symbol: sym,
			Asks:   convertLevels(raw.Asks),
			Bids:   convertLevels(raw.Bids),
		}
		books[sym] = book
		if mark, ok := book.Mark(); ok {
			marks[sym] = mark
		}
	}

	a.mu.Lock()
	a.books = books
	a.marks = marks
	a.mu.Unlock()
	return nil
}

// fetchAccount refreshes positions, total notional, and account value from
// the single account endpoint.
func (a *Adapter) fetchAccount(ctx context.Context) error {
	acct, err := a.client.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("cex venue: fetch account: %w", err)
	}

	positions := make(map[string]domain.Position, len(acct.Positions))
	for _, p := range acct.Positions {
		if p.Future == "" {
			continue
		}
		if p.NetSize == 0 {
			positions[p.Future] = domain.Position{}
			continue
		}
		positions[p.Future] = domain.Position{NetSize: p.NetSize, EntryPrice: p.EntryPrice}
	}

	a.mu.Lock()
	a.positions = positions
	a.totalNotional = acct.TotalPositionSize
	a.accountValue = acct.TotalAccountValue
	a.mu.Unlock()
	return nil
}

// Mark returns the latest mid price for the symbol.
func (a *Adapter) Mark(symbol string) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	mark, ok := a.marks[symbol]
	if !ok {
		return 0, fmt.Errorf("cex venue: mark %s: %w", symbol, domain.ErrNotFound)
	}
	return mark, nil
}

// IndexPrice returns the latest index price for the symbol.
func (a *Adapter) IndexPrice(symbol string) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.indices[symbol]
	if !ok {
		return 0, fmt.Errorf("cex venue: index %s: %w", symbol, domain.ErrNotFound)
	}
	return idx, nil
}

// MarketInfo returns the symbol's tick and lot granularity.
func (a *Adapter) MarketInfo(symbol string) (domain.MarketInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	info, ok := a.infos[symbol]
	if !ok {
		return domain.MarketInfo{}, fmt.Errorf("cex venue: market %s: %w", symbol, domain.ErrNotFound)
	}
	return info, nil
}

// Position returns the latest fetched position, flat when unknown.
func (a *Adapter) Position(symbol string) domain.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.positions[symbol]
}

// TotalNotional returns the exchange-reported aggregate position size.
func (a *Adapter) TotalNotional() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalNotional
}

// AccountValue returns the account value from the latest fetch.
func (a *Adapter) AccountValue() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accountValue
}

// PnL returns the account value change since Init.
func (a *Adapter) PnL() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return 0
	}
	return a.accountValue - a.startValue
}

// PlaceOrder rounds the order to the venue increments and submits it as a
// resting limit order.
func (a *Adapter) PlaceOrder(ctx context.Context, order domain.Order) error {
	info, err := a.MarketInfo(order.Symbol)
	if err != nil {
		return err
	}

	size := info.RoundSize(order.Size)
	if size <= 0 {
		return fmt.Errorf("cex venue: order size %v below increment: %w", order.Size, domain.ErrInvalidOrder)
	}

	return a.client.PlaceOrder(ctx, rest.PlaceOrderRequest{
		Market:   order.Symbol,
		Side:     sideWord(order.Side),
		Price:    info.RoundPrice(order.Price),
		Size:     size,
		Type:     "limit",
		ClientID: strconv.FormatInt(order.ClientID, 10),
	})
}

// CancelOrder cancels by the order's client id.
func (a *Adapter) CancelOrder(ctx context.Context, order domain.Order) error {
	return a.client.CancelByClientID(ctx, order.ClientID)
}

// ClosePosition flattens the currently fetched position with a reduce-only
// immediate-or-cancel order priced at the index. A flat position is a no-op.
func (a *Adapter) ClosePosition(ctx context.Context, symbol string) error {
	pos := a.Position(symbol)
	if pos.IsFlat() {
		return nil
	}

	index, err := a.IndexPrice(symbol)
	if err != nil {
		return err
	}

	side := domain.SideShort
	if pos.IsShort() {
		side = domain.SideLong
	}

	info, err := a.MarketInfo(symbol)
	if err != nil {
		return err
	}

	return a.client.PlaceOrder(ctx, rest.PlaceOrderRequest{
		Market:     symbol,
		Side:       sideWord(side),
		Price:      info.RoundPrice(index),
		Size:       info.RoundSize(absFloat(pos.NetSize)),
		Type:       "limit",
		IOC:        true,
		ReduceOnly: true,
	})
}

// CanOpen applies the shared per-venue risk rule.
func (a *Adapter) CanOpen(symbol string, maxNotional float64) (long, short bool) {
	a.mu.RLock()
	pos := a.positions[symbol]
	total := a.totalNotional
	a.mu.RUnlock()
	return a.cfg.Risk.AllowOpen(pos, total, maxNotional)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (a *Adapter) trackedSymbols() []string {
	if len(a.cfg.Symbols) > 0 {
		return a.cfg.Symbols
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.symbols
}

func sideWord(s domain.Side) string {
	if s == domain.SideLong {
		return "buy"
	}
	return "sell"
}

func convertLevels(levels [][2]float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.PriceLevel{Price: l[0], Size: l[1]})
	}
	return out
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Compile-time interface check.
var _ venue.Venue = (*Adapter)(nil)
