package domain

// Side is the normalized order direction. Each adapter maps it to its
// venue's own vocabulary (bid/ask, buy/sell) at the wire boundary.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the reducing direction for this side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Sign returns +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == SideLong {
		return 1
	}
	return -1
}

// Order is the intent to rest a limit order on one venue. ClientID is a
// venue-scoped idempotency and cancellation token; it is not unique across
// venues.
type Order struct {
	Symbol   string
	Side     Side
	Size     float64
	Price    float64
	ClientID int64
}
