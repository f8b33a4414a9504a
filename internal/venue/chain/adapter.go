// Package chain adapts the on-chain clearinghouse to the venue contract.
// The clearinghouse quotes everything in integer lot units scaled by
// per-market decimal exponents; this adapter owns the conversion to real
// prices and sizes, so nothing upstream ever sees a lot.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"perparb/internal/domain"
	rpc "perparb/internal/platform/chain"
	"perparb/internal/venue"
)

// Client is the narrow slice of the clearinghouse RPC client the adapter
// needs.
type Client interface {
	GetMarkets(ctx context.Context) ([]rpc.Market, error)
	GetOrderbook(ctx context.Context, marketId [32]byte, depth uint8) (rpc.Book, error)
	GetPositions(ctx context.Context) ([]rpc.Position, error)
	GetCollateral(ctx context.Context) (*big.Int, error)
	PlaceOrder(ctx context.Context, req rpc.OrderRequest) error
	CancelOrderByClientId(ctx context.Context, marketId [32]byte, clientId uint64) error
	ClosePosition(ctx context.Context, marketId [32]byte) error
}

// Config holds the adapter's static parameters.
type Config struct {
	// Symbols restricts which markets are fetched each cycle. Empty means
	// every listed market.
	Symbols []string
	// BookDepth is the number of levels requested per side.
	BookDepth uint8
	// CollateralDecimals scales the raw collateral balance to real units.
	CollateralDecimals int32
	// Risk holds the per-venue risk parameters.
	Risk venue.RiskConfig
}

// marketMeta is the immutable per-market unit system, resolved once on the
// first fetch.
type marketMeta struct {
	id        [32]byte
	info      domain.MarketInfo
	priceStep decimal.Decimal // real price per price lot
	sizeStep  decimal.Decimal // real size per base lot
	quotePow  decimal.Decimal // 10^quoteDecimals
	indexRaw  uint64
}

// Adapter implements venue.Venue over the clearinghouse client. All snapshot
// maps are rebuilt wholesale by FetchAll and swapped in under the lock, so
// readers never observe a partially merged field.
type Adapter struct {
	client Client
	cfg    Config

	mu        sync.RWMutex
	meta      map[string]marketMeta // fetched once, then immutable
	symbols   []string
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
	if cfg.BookDepth == 0 {
		cfg.BookDepth = 32
	}
	if cfg.CollateralDecimals == 0 {
		cfg.CollateralDecimals = 6
	}
	return &Adapter{
		client:    client,
		cfg:       cfg,
		meta:      map[string]marketMeta{},
		books:     map[string]domain.Orderbook{},
		marks:     map[string]float64{},
		indices:   map[string]float64{},
		positions: map[string]domain.Position{},
	}
}

// Name identifies the venue.
func (a *Adapter) Name() string { return "chain" }

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

// FetchAll refreshes market metadata (first call only), orderbooks,
// positions, and account value, in that order.
func (a *Adapter) FetchAll(ctx context.Context) error {
	if err := a.fetchMarkets(ctx); err != nil {
		return err
	}
	if err := a.fetchOrderbooks(ctx); err != nil {
		return err
	}
	if err := a.fetchPositions(ctx); err != nil {
		return err
	}
	return a.fetchAccountValue(ctx)
}

// fetchMarkets resolves the symbol list and each market's unit system. The
// result is cached for the adapter's lifetime; lot and tick sizes do not
// change during a run. Index prices ride along on the same record and are
// refreshed every call.
func (a *Adapter) fetchMarkets(ctx context.Context) error {
	a.mu.RLock()
	cached := len(a.meta) > 0
	a.mu.RUnlock()

	markets, err := a.client.GetMarkets(ctx)
	if err != nil {
		return fmt.Errorf("chain venue: fetch markets: %w", err)
	}

	indices := make(map[string]float64, len(markets))
	meta := make(map[string]marketMeta, len(markets))
	symbols := make([]string, 0, len(markets))

	for _, m := range markets {
		quotePow := decimal.New(1, int32(m.QuoteDecimals))
		basePow := decimal.New(1, int32(m.BaseDecimals))

		// priceStep is the real price represented by one quote lot per base
		// lot; sizeStep is the real size of one base lot.
		priceLot := decimal.NewFromUint64(m.QuoteLotSize).Div(quotePow)
		sizeStep := decimal.NewFromUint64(m.BaseLotSize).Div(basePow)
		priceStep := priceLot.Div(sizeStep)

		info := domain.MarketInfo{
			PriceIncrement: priceStep.InexactFloat64(),
			SizeIncrement:  sizeStep.InexactFloat64(),
		}
		meta[m.Symbol] = marketMeta{
			id:        m.Id,
			info:      info,
			priceStep: priceStep,
			sizeStep:  sizeStep,
			quotePow:  quotePow,
			indexRaw:  m.IndexPrice,
		}
		symbols = append(symbols, m.Symbol)
		indices[m.Symbol] = decimal.NewFromUint64(m.IndexPrice).Div(quotePow).InexactFloat64()
	}

	a.mu.Lock()
	if !cached {
		a.meta = meta
		a.symbols = symbols
	}
	a.indices = indices
	a.mu.Unlock()
	return nil
}

// fetchOrderbooks pulls a fresh book per tracked symbol and recomputes
// marks. Books and marks are replaced wholesale.
func (a *Adapter) fetchOrderbooks(ctx context.Context) error {
	tracked := a.trackedSymbols()

	books := make(map[string]domain.Orderbook, len(tracked))
	marks := make(map[string]float64, len(tracked))

	for _, sym := range tracked {
		meta, ok := a.lookupMeta(sym)
		if !ok {
			return fmt.Errorf("chain venue: market %s: %w", sym, domain.ErrNotFound)
		}

		raw, err := a.client.GetOrderbook(ctx, meta.id, a.cfg.BookDepth)
		if err != nil {
			return fmt.Errorf("chain venue: fetch orderbook %s: %w", sym, err)
		}

		book := domain.Orderbook{
			Symbol: sym,
			Asks:   convertLevels(raw.Asks, meta),
			Bids:   convertLevels(raw.Bids, meta),
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

// fetchPositions converts the raw lot positions and recomputes the account's
// total notional against the freshly fetched marks.
func (a *Adapter) fetchPositions(ctx context.Context) error {
	raw, err := a.client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("chain venue: fetch positions: %w", err)
	}

	positions := make(map[string]domain.Position, len(raw))
	total := 0.0

	a.mu.RLock()
	marks := a.marks
	metaBySym := a.meta
	a.mu.RUnlock()

	for _, p := range raw {
		sym, meta, ok := findMetaByID(metaBySym, p.MarketId)
		if !ok {
			continue
		}

		netSize := decimal.NewFromInt(p.SizeLots).Mul(meta.sizeStep).InexactFloat64()

		entry := 0.0
		if netSize != 0 {
			value := decimal.NewFromBigInt(p.QuoteValue, 0).Div(meta.quotePow)
			realized := decimal.NewFromBigInt(p.RealizedPnl, 0).Div(meta.quotePow)
			entry = value.Sub(realized).InexactFloat64() / abs(netSize)
		}

		positions[sym] = domain.Position{NetSize: netSize, EntryPrice: entry}
		if mark, ok := marks[sym]; ok {
			total += abs(netSize) * mark
		}
	}

	a.mu.Lock()
	a.positions = positions
	a.totalNotional = total
	a.mu.Unlock()
	return nil
}

// fetchAccountValue computes collateral plus unrealized PnL across the
// freshly fetched positions.
func (a *Adapter) fetchAccountValue(ctx context.Context) error {
	collateral, err := a.client.GetCollateral(ctx)
	if err != nil {
		return fmt.Errorf("chain venue: fetch collateral: %w", err)
	}

	val := decimal.NewFromBigInt(collateral, 0).
		Div(decimal.New(1, a.cfg.CollateralDecimals)).
		InexactFloat64()

	a.mu.Lock()
	for sym, pos := range a.positions {
		if mark, ok := a.marks[sym]; ok {
			val += pos.NetSize * (mark - pos.EntryPrice)
		}
	}
	a.accountValue = val
	a.mu.Unlock()
	return nil
}

// Mark returns the latest mid price for the symbol.
func (a *Adapter) Mark(symbol string) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	mark, ok := a.marks[symbol]
	if !ok {
		return 0, fmt.Errorf("chain venue: mark %s: %w", symbol, domain.ErrNotFound)
	}
	return mark, nil
}

// IndexPrice returns the latest index price for the symbol.
func (a *Adapter) IndexPrice(symbol string) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.indices[symbol]
	if !ok {
		return 0, fmt.Errorf("chain venue: index %s: %w", symbol, domain.ErrNotFound)
	}
	return idx, nil
}

// MarketInfo returns the symbol's tick and lot granularity.
func (a *Adapter) MarketInfo(symbol string) (domain.MarketInfo, error) {
	meta, ok := a.lookupMeta(symbol)
	if !ok {
		return domain.MarketInfo{}, fmt.Errorf("chain venue: market %s: %w", symbol, domain.ErrNotFound)
	}
	return meta.info, nil
}

// Position returns the latest fetched position, flat when unknown.
func (a *Adapter) Position(symbol string) domain.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.positions[symbol]
}

// TotalNotional returns the aggregate unsigned exposure at the latest marks.
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

// PlaceOrder converts the normalized order back into lot units and submits
// it as a resting limit order.
func (a *Adapter) PlaceOrder(ctx context.Context, order domain.Order) error {
	req, err := a.toOrderRequest(order, rpc.OrderTypeLimit)
	if err != nil {
		return err
	}
	return a.client.PlaceOrder(ctx, req)
}

// CancelOrder cancels by the order's client id.
func (a *Adapter) CancelOrder(ctx context.Context, order domain.Order) error {
	meta, ok := a.lookupMeta(order.Symbol)
	if !ok {
		return fmt.Errorf("chain venue: market %s: %w", order.Symbol, domain.ErrNotFound)
	}
	return a.client.CancelOrderByClientId(ctx, meta.id, uint64(order.ClientID))
}

// ClosePosition flattens the current position via the clearinghouse's
// reduce-only close. A flat position is a no-op.
func (a *Adapter) ClosePosition(ctx context.Context, symbol string) error {
	if a.Position(symbol).IsFlat() {
		return nil
	}
	meta, ok := a.lookupMeta(symbol)
	if !ok {
		return fmt.Errorf("chain venue: market %s: %w", symbol, domain.ErrNotFound)
	}
	return a.client.ClosePosition(ctx, meta.id)
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

func (a *Adapter) toOrderRequest(order domain.Order, orderType uint8) (rpc.OrderRequest, error) {
	meta, ok := a.lookupMeta(order.Symbol)
	if !ok {
		return rpc.OrderRequest{}, fmt.Errorf("chain venue: market %s: %w", order.Symbol, domain.ErrNotFound)
	}

	priceLots := decimal.NewFromFloat(order.Price).Div(meta.priceStep).Round(0)
	sizeLots := decimal.NewFromFloat(order.Size).Div(meta.sizeStep).Floor()

	if sizeLots.Sign() <= 0 || priceLots.Sign() <= 0 {
		return rpc.OrderRequest{}, fmt.Errorf("chain venue: order below lot granularity: %w", domain.ErrInvalidOrder)
	}

	return rpc.OrderRequest{
		MarketId:  meta.id,
		IsBid:     order.Side == domain.SideLong,
		PriceLots: uint64(priceLots.IntPart()),
		SizeLots:  uint64(sizeLots.IntPart()),
		OrderType: orderType,
		ClientId:  uint64(order.ClientID),
	}, nil
}

func (a *Adapter) lookupMeta(symbol string) (marketMeta, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	meta, ok := a.meta[symbol]
	return meta, ok
}

func (a *Adapter) trackedSymbols() []string {
	if len(a.cfg.Symbols) > 0 {
		return a.cfg.Symbols
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.symbols
}

func convertLevels(levels []rpc.BookLevel, meta marketMeta) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.PriceLevel{
			Price: decimal.NewFromUint64(l.Price).Mul(meta.priceStep).InexactFloat64(),
			Size:  decimal.NewFromUint64(l.Size).Mul(meta.sizeStep).InexactFloat64(),
		})
	}
	return out
}

func findMetaByID(meta map[string]marketMeta, id [32]byte) (string, marketMeta, bool) {
	for sym, m := range meta {
		if m.id == id {
			return sym, m, true
		}
	}
	return "", marketMeta{}, false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Compile-time interface check.
var _ venue.Venue = (*Adapter)(nil)
