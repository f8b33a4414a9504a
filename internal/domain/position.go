package domain

import "math"

// Position is the per-symbol net position reported by a venue. NetSize > 0
// is net long, < 0 net short, 0 flat. EntryPrice is zero when flat.
type Position struct {
	NetSize    float64
	EntryPrice float64
}

// IsFlat reports whether the position holds no exposure.
func (p Position) IsFlat() bool { return p.NetSize == 0 }

// IsLong reports whether the position is net long.
func (p Position) IsLong() bool { return p.NetSize > 0 }

// IsShort reports whether the position is net short.
func (p Position) IsShort() bool { return p.NetSize < 0 }

// Notional returns the signed exposure of the position at the given mark
// price, in quote-currency terms.
func (p Position) Notional(mark float64) float64 {
	return p.NetSize * mark
}

// AbsNotional returns the unsigned exposure at the given mark price.
func (p Position) AbsNotional(mark float64) float64 {
	return math.Abs(p.Notional(mark))
}
