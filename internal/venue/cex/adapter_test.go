package cex

import (
	"context"
	"errors"
	"math"
	"testing"

	"perparb/internal/domain"
	rest "perparb/internal/platform/cex"
	"perparb/internal/venue"
)

// fakeClient serves one perpetual and one spot market so the perp filter is
// exercised, plus a scripted account snapshot.
type fakeClient struct {
	account  rest.Account
	placed   []rest.PlaceOrderRequest
	cancels  []int64
	placeErr error

	bookDepths []int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		account: rest.Account{TotalAccountValue: 1000},
	}
}

func (f *fakeClient) ListMarkets(context.Context) ([]rest.Market, error) {
	return []rest.Market{
		{Name: "SOL-PERP", PriceIncrement: 0.01, SizeIncrement: 0.1, Index: 100.2},
		{Name: "SOL/USD", PriceIncrement: 0.01, SizeIncrement: 0.1, Index: 100.2},
	}, nil
}

func (f *fakeClient) GetOrderbook(_ context.Context, market string, depth int) (rest.Orderbook, error) {
	if market != "SOL-PERP" {
		return rest.Orderbook{}, domain.ErrNotFound
	}
	f.bookDepths = append(f.bookDepths, depth)
	return rest.Orderbook{
		Asks: [][2]float64{{100.5, 3}, {100.6, 8}},
		Bids: [][2]float64{{100.3, 2}, {100.2, 5}},
	}, nil
}

func (f *fakeClient) GetAccount(context.Context) (rest.Account, error) {
	return f.account, nil
}

func (f *fakeClient) PlaceOrder(_ context.Context, req rest.PlaceOrderRequest) error {
	if f.placeErr != nil {
		return f.placeErr
	}
	f.placed = append(f.placed, req)
	return nil
}

func (f *fakeClient) CancelByClientID(_ context.Context, clientID int64) error {
	f.cancels = append(f.cancels, clientID)
	return nil
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFetchAllFiltersPerpetuals(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})

	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	mark, err := a.Mark("SOL-PERP")
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if !approx(mark, 100.4) {
		t.Errorf("Mark() = %g, want 100.4", mark)
	}

	// The spot market never makes it past the filter.
	if _, err := a.Mark("SOL/USD"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Mark(spot) error = %v, want ErrNotFound", err)
	}
	if _, err := a.MarketInfo("SOL/USD"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("MarketInfo(spot) error = %v, want ErrNotFound", err)
	}

	idx, err := a.IndexPrice("SOL-PERP")
	if err != nil || !approx(idx, 100.2) {
		t.Errorf("IndexPrice() = %g, %v, want 100.2", idx, err)
	}
}

func TestBookDepthDefaultsToExchangeCap(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(client.bookDepths) == 0 || client.bookDepths[0] != rest.MaxOrderbookDepth {
		t.Errorf("requested depths = %v, want %d", client.bookDepths, rest.MaxOrderbookDepth)
	}
}

func TestFetchAllLoadsAccountSnapshot(t *testing.T) {
	client := newFakeClient()
	client.account = rest.Account{
		TotalAccountValue: 1000,
		TotalPositionSize: 201,
		Positions: []rest.AccountPosition{
			{Future: "SOL-PERP", NetSize: -2, EntryPrice: 101},
			{Future: "BTC-PERP", NetSize: 0, EntryPrice: 0},
		},
	}
	a := New(client, Config{})

	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	pos := a.Position("SOL-PERP")
	if !approx(pos.NetSize, -2) || !approx(pos.EntryPrice, 101) {
		t.Errorf("Position() = %+v, want -2 @ 101", pos)
	}
	if pos := a.Position("BTC-PERP"); !pos.IsFlat() {
		t.Errorf("zero-size position = %+v, want flat", pos)
	}
	if got := a.TotalNotional(); !approx(got, 201) {
		t.Errorf("TotalNotional() = %g, want 201", got)
	}
	if got := a.AccountValue(); !approx(got, 1000) {
		t.Errorf("AccountValue() = %g, want 1000", got)
	}
}

func TestPnLTracksAccountValueSinceInit(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})

	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	client.account.TotalAccountValue = 985.5
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := a.PnL(); !approx(got, -14.5) {
		t.Errorf("PnL() = %g, want -14.5", got)
	}
}

func TestPlaceOrderRoundsToIncrements(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	order := domain.Order{
		Symbol:   "SOL-PERP",
		Side:     domain.SideShort,
		Size:     2.57,    // floors to 2.5 on the 0.1 step
		Price:    100.387, // rounds to 100.39 on the 0.01 tick
		ClientID: 42,
	}
	if err := a.PlaceOrder(context.Background(), order); err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	if len(client.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(client.placed))
	}
	req := client.placed[0]
	if req.Side != "sell" || req.Type != "limit" {
		t.Errorf("req = %+v, want sell limit", req)
	}
	if !approx(req.Price, 100.39) || !approx(req.Size, 2.5) {
		t.Errorf("price/size = (%g, %g), want (100.39, 2.5)", req.Price, req.Size)
	}
	if req.ClientID != "42" {
		t.Errorf("ClientID = %q, want \"42\"", req.ClientID)
	}
	if req.IOC || req.ReduceOnly {
		t.Errorf("resting limit order flagged IOC/reduce-only: %+v", req)
	}
}

func TestPlaceOrderRejectsSizeBelowIncrement(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	order := domain.Order{
		Symbol: "SOL-PERP",
		Side:   domain.SideLong,
		Size:   0.05, // below the 0.1 step
		Price:  100,
	}
	err := a.PlaceOrder(context.Background(), order)
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("PlaceOrder() error = %v, want ErrInvalidOrder", err)
	}
	if len(client.placed) != 0 {
		t.Errorf("placed %d orders, want none", len(client.placed))
	}
}

func TestClosePositionSubmitsReduceOnlyIOC(t *testing.T) {
	client := newFakeClient()
	client.account = rest.Account{
		Positions: []rest.AccountPosition{
			{Future: "SOL-PERP", NetSize: -2.35, EntryPrice: 101},
		},
	}
	a := New(client, Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := a.ClosePosition(context.Background(), "SOL-PERP"); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}

	if len(client.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(client.placed))
	}
	req := client.placed[0]
	if req.Side != "buy" {
		t.Errorf("Side = %q, want buy to flatten a short", req.Side)
	}
	if !req.IOC || !req.ReduceOnly {
		t.Errorf("req = %+v, want IOC reduce-only", req)
	}
	// Priced at the rounded index, sized to the floored net position.
	if !approx(req.Price, 100.2) || !approx(req.Size, 2.3) {
		t.Errorf("price/size = (%g, %g), want (100.2, 2.3)", req.Price, req.Size)
	}
}

func TestClosePositionFlatIsNoOp(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := a.ClosePosition(context.Background(), "SOL-PERP"); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}
	if len(client.placed) != 0 {
		t.Errorf("placed %d orders, want none when flat", len(client.placed))
	}
}

func TestCanOpenHonorsNotionalBuffer(t *testing.T) {
	tests := []struct {
		name      string
		netSize   float64
		total     float64
		wantLong  bool
		wantShort bool
	}{
		{"flat always opens", 0, 0, true, true},
		{"long under cap", 2, 50, true, true},
		{"long at buffered cap", 2, 90, false, true},
		{"short at buffered cap", -2, 90, true, false},
		{"short under cap", -2, 50, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.account = rest.Account{
				TotalPositionSize: tt.total,
				Positions: []rest.AccountPosition{
					{Future: "SOL-PERP", NetSize: tt.netSize, EntryPrice: 100},
				},
			}
			a := New(client, Config{Risk: venue.RiskConfig{NotionalBuffer: 10}})
			if err := a.FetchAll(context.Background()); err != nil {
				t.Fatal(err)
			}

			long, short := a.CanOpen("SOL-PERP", 100)
			if long != tt.wantLong || short != tt.wantShort {
				t.Errorf("CanOpen() = (%v, %v), want (%v, %v)", long, short, tt.wantLong, tt.wantShort)
			}
		})
	}
}
