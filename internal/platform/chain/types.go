package chain

import "math/big"

// Market mirrors the clearinghouse market record. Lot sizes and decimal
// exponents define the venue's integer unit system; the venue adapter owns
// the conversion to real prices and sizes.
type Market struct {
	Id            [32]byte
	Symbol        string
	BaseLotSize   uint64
	QuoteLotSize  uint64
	BaseDecimals  uint8
	QuoteDecimals uint8
	IndexPrice    uint64 // scaled by 10^quoteDecimals
}

// BookLevel is one orderbook level in integer lot units.
type BookLevel struct {
	Price uint64 // quote lots per base lot
	Size  uint64 // base lots
}

// Book is a depth snapshot in lot units, best level first.
type Book struct {
	Asks []BookLevel
	Bids []BookLevel
}

// Position mirrors the clearinghouse position record for one market.
type Position struct {
	MarketId    [32]byte
	SizeLots    int64    // signed, base lots
	QuoteValue  *big.Int // scaled by 10^quoteDecimals
	RealizedPnl *big.Int // scaled by 10^quoteDecimals
}

// OrderRequest is the raw order submitted to the clearinghouse.
type OrderRequest struct {
	MarketId  [32]byte
	IsBid     bool
	PriceLots uint64
	SizeLots  uint64
	OrderType uint8 // see OrderType* constants
	ClientId  uint64
}

// Order types accepted by the clearinghouse placeOrder call.
const (
	OrderTypeLimit uint8 = iota
	OrderTypeImmediateOrCancel
	OrderTypePostOnly
)
