package domain

import (
	"math"
	"testing"
)

func TestOrderbookMark(t *testing.T) {
	tests := []struct {
		name     string
		book     Orderbook
		wantMark float64
		wantOK   bool
	}{
		{
			name: "midpoint of best levels",
			book: Orderbook{
				Asks: []PriceLevel{{Price: 101, Size: 1}, {Price: 102, Size: 5}},
				Bids: []PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 3}},
			},
			wantMark: 100.5,
			wantOK:   true,
		},
		{
			name: "single level per side",
			book: Orderbook{
				Asks: []PriceLevel{{Price: 50, Size: 1}},
				Bids: []PriceLevel{{Price: 48, Size: 1}},
			},
			wantMark: 49,
			wantOK:   true,
		},
		{
			name:   "empty asks",
			book:   Orderbook{Bids: []PriceLevel{{Price: 100, Size: 1}}},
			wantOK: false,
		},
		{
			name:   "empty bids",
			book:   Orderbook{Asks: []PriceLevel{{Price: 100, Size: 1}}},
			wantOK: false,
		},
		{
			name:   "empty book",
			book:   Orderbook{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mark, ok := tt.book.Mark()
			if ok != tt.wantOK {
				t.Fatalf("Mark() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && mark != tt.wantMark {
				t.Errorf("Mark() = %g, want %g", mark, tt.wantMark)
			}
		})
	}
}

func TestMarketInfoRounding(t *testing.T) {
	info := MarketInfo{PriceIncrement: 0.1, SizeIncrement: 0.25}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"price rounds to nearest", info.RoundPrice(99.94), 99.9},
		{"price rounds up", info.RoundPrice(99.96), 100.0},
		{"price on tick unchanged", info.RoundPrice(100.2), 100.2},
		{"size floors", info.RoundSize(1.99), 1.75},
		{"size on step unchanged", info.RoundSize(2.5), 2.5},
		{"size below one step floors to zero", info.RoundSize(0.2), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > 1e-9 {
				t.Errorf("got %g, want %g", tt.got, tt.want)
			}
		})
	}
}

func TestMarketInfoZeroIncrementPassthrough(t *testing.T) {
	var info MarketInfo
	if got := info.RoundPrice(123.456); got != 123.456 {
		t.Errorf("RoundPrice() = %g, want passthrough", got)
	}
	if got := info.RoundSize(7.89); got != 7.89 {
		t.Errorf("RoundSize() = %g, want passthrough", got)
	}
}
