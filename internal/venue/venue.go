// Package venue defines the capability contract that both trading venues
// satisfy. The arbitrage engine consumes this interface only; everything
// venue-specific (unit systems, order vocabulary, wire protocols) stays
// behind the adapters in the sub-packages.
package venue

import (
	"context"

	"perparb/internal/domain"
)

// Venue is the uniform contract over one exchange. An implementation owns
// its snapshot state exclusively: FetchAll wholesale-overwrites each field
// of the snapshot, and the accessors read from the most recent fetch. The
// engine never observes a partially merged field, though different fields
// may come from different round-trips within one FetchAll.
type Venue interface {
	// Name identifies the venue in logs and notifications.
	Name() string

	// Init performs the establishing fetch at construction time and records
	// the starting account value that PnL is measured against.
	Init(ctx context.Context) error

	// FetchAll refreshes, in order: the market symbol list (first call only,
	// cached thereafter), orderbooks (recomputing marks), positions
	// (recomputing total notional), and account value.
	FetchAll(ctx context.Context) error

	// Mark returns the mid price from the latest fetched orderbook. It fails
	// with domain.ErrNotFound if the symbol was never fetched.
	Mark(symbol string) (float64, error)

	// IndexPrice returns the venue's index price for the symbol, with the
	// same error contract as Mark.
	IndexPrice(symbol string) (float64, error)

	// MarketInfo returns the tick/lot granularity for the symbol.
	MarketInfo(symbol string) (domain.MarketInfo, error)

	// Position returns the latest fetched position for the symbol. It
	// returns a flat position, never an error, when the venue has not
	// reported one.
	Position(symbol string) domain.Position

	// TotalNotional returns the account's aggregate unsigned exposure as of
	// the latest fetch.
	TotalNotional() float64

	// AccountValue returns the account value as of the latest fetch.
	AccountValue() float64

	// PnL returns AccountValue minus the account value recorded by Init.
	PnL() float64

	// PlaceOrder submits a resting limit order. A nil error means the venue
	// acknowledged acceptance; a rejection wraps domain.ErrVenueRejected and
	// a network/RPC failure wraps domain.ErrTransport.
	PlaceOrder(ctx context.Context, order domain.Order) error

	// CancelOrder cancels a resting order by its venue-scoped client id.
	CancelOrder(ctx context.Context, order domain.Order) error

	// ClosePosition submits a reduce-only immediate-or-cancel order sized to
	// the currently fetched net position. Callers must have fetched no
	// earlier than this call to avoid acting on a stale size.
	ClosePosition(ctx context.Context, symbol string) error

	// CanOpen reports whether the account may extend exposure long and
	// short. The reducing direction is always allowed; the extending
	// direction is allowed only while total notional stays below
	// maxNotional minus the venue's configured notional buffer.
	CanOpen(symbol string, maxNotional float64) (long, short bool)
}

// RiskConfig holds per-venue risk parameters applied uniformly by CanOpen.
type RiskConfig struct {
	// NotionalBuffer is reserved headroom below the max-notional cap before
	// the venue refuses to extend exposure further.
	NotionalBuffer float64
}

// AllowOpen implements the shared CanOpen rule: when the position already
// holds directional exposure the opposite (reducing) side stays open
// unconditionally, while the extending side requires headroom under the cap.
func (r RiskConfig) AllowOpen(pos domain.Position, totalNotional, maxNotional float64) (long, short bool) {
	if pos.IsFlat() {
		return true, true
	}
	underCap := totalNotional < maxNotional-r.NotionalBuffer
	if pos.IsLong() {
		return underCap, true
	}
	return true, underCap
}
