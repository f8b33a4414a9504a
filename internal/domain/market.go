// Package domain defines the normalized value types shared by the venue
// adapters and the arbitrage engine. Venue wire vocabulary never crosses this
// boundary; each adapter translates its exchange's raw types into these.
package domain

import "math"

// MarketInfo describes the minimum tick and lot granularity a venue accepts
// for one symbol. It is fetched once per run and treated as immutable.
type MarketInfo struct {
	PriceIncrement float64
	SizeIncrement  float64
}

// RoundPrice rounds p to the nearest price increment. A zero increment
// passes p through unchanged.
func (m MarketInfo) RoundPrice(p float64) float64 {
	if m.PriceIncrement <= 0 {
		return p
	}
	return math.Round(p/m.PriceIncrement) * m.PriceIncrement
}

// RoundSize rounds s down to the size increment so the order never exceeds
// the intended exposure. A zero increment passes s through unchanged.
func (m MarketInfo) RoundSize(s float64) float64 {
	if m.SizeIncrement <= 0 {
		return s
	}
	return math.Floor(s/m.SizeIncrement) * m.SizeIncrement
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Orderbook is one venue's book for one symbol, best level first on both
// sides. It is rebuilt wholesale on every fetch cycle and never mutated.
type Orderbook struct {
	Symbol string
	Asks   []PriceLevel
	Bids   []PriceLevel
}

// Mark returns the midpoint of the best ask and best bid. The boolean is
// false when either side of the book is empty, in which case no mark price
// exists for this cycle.
func (b Orderbook) Mark() (float64, bool) {
	if len(b.Asks) == 0 || len(b.Bids) == 0 {
		return 0, false
	}
	return (b.Asks[0].Price + b.Bids[0].Price) / 2, true
}
