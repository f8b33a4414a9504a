package chain

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"perparb/internal/domain"
	rpc "perparb/internal/platform/chain"
)

var solMarketID = [32]byte{0x01}

// fakeClient serves a single SOL-PERP market with a 0.1 price tick and a
// 0.001 size lot:
//
//	sizeStep  = baseLotSize / 10^baseDecimals   = 1_000_000 / 1e9 = 0.001
//	priceLot  = quoteLotSize / 10^quoteDecimals = 100 / 1e6       = 0.0001
//	priceStep = priceLot / sizeStep                               = 0.1
type fakeClient struct {
	marketCalls int
	positions   []rpc.Position
	collateral  *big.Int

	placed    []rpc.OrderRequest
	cancelled []uint64
	closed    [][32]byte
	placeErr  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{collateral: big.NewInt(50_000_000)} // 50.0 at 6 decimals
}

func (f *fakeClient) GetMarkets(context.Context) ([]rpc.Market, error) {
	f.marketCalls++
	return []rpc.Market{{
		Id:            solMarketID,
		Symbol:        "SOL-PERP",
		BaseLotSize:   1_000_000,
		QuoteLotSize:  100,
		BaseDecimals:  9,
		QuoteDecimals: 6,
		IndexPrice:    100_500_000, // 100.5
	}}, nil
}

func (f *fakeClient) GetOrderbook(_ context.Context, marketId [32]byte, _ uint8) (rpc.Book, error) {
	if marketId != solMarketID {
		return rpc.Book{}, domain.ErrNotFound
	}
	return rpc.Book{
		Asks: []rpc.BookLevel{{Price: 1010, Size: 5000}}, // 101.0 x 5.0
		Bids: []rpc.BookLevel{{Price: 1000, Size: 3000}}, // 100.0 x 3.0
	}, nil
}

func (f *fakeClient) GetPositions(context.Context) ([]rpc.Position, error) {
	return f.positions, nil
}

func (f *fakeClient) GetCollateral(context.Context) (*big.Int, error) {
	return f.collateral, nil
}

func (f *fakeClient) PlaceOrder(_ context.Context, req rpc.OrderRequest) error {
	if f.placeErr != nil {
		return f.placeErr
	}
	f.placed = append(f.placed, req)
	return nil
}

func (f *fakeClient) CancelOrderByClientId(_ context.Context, _ [32]byte, clientId uint64) error {
	f.cancelled = append(f.cancelled, clientId)
	return nil
}

func (f *fakeClient) ClosePosition(_ context.Context, marketId [32]byte) error {
	f.closed = append(f.closed, marketId)
	return nil
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFetchAllConvertsLotUnits(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})

	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	mark, err := a.Mark("SOL-PERP")
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if !approx(mark, 100.5) {
		t.Errorf("Mark() = %g, want 100.5", mark)
	}

	idx, err := a.IndexPrice("SOL-PERP")
	if err != nil {
		t.Fatalf("IndexPrice() error = %v", err)
	}
	if !approx(idx, 100.5) {
		t.Errorf("IndexPrice() = %g, want 100.5", idx)
	}

	info, err := a.MarketInfo("SOL-PERP")
	if err != nil {
		t.Fatalf("MarketInfo() error = %v", err)
	}
	if !approx(info.PriceIncrement, 0.1) || !approx(info.SizeIncrement, 0.001) {
		t.Errorf("MarketInfo() = %+v, want tick 0.1 lot 0.001", info)
	}
}

func TestFetchAllDerivesPositionAndAccountValue(t *testing.T) {
	client := newFakeClient()
	// 2.0 net long entered at 99: entry = (value - realized) / |size|.
	client.positions = []rpc.Position{{
		MarketId:    solMarketID,
		SizeLots:    2000,
		QuoteValue:  big.NewInt(198_000_000),
		RealizedPnl: big.NewInt(0),
	}}
	a := New(client, Config{})

	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	pos := a.Position("SOL-PERP")
	if !approx(pos.NetSize, 2.0) || !approx(pos.EntryPrice, 99.0) {
		t.Errorf("Position() = %+v, want 2.0 @ 99.0", pos)
	}

	// Total notional uses the fresh mark: 2.0 * 100.5.
	if got := a.TotalNotional(); !approx(got, 201.0) {
		t.Errorf("TotalNotional() = %g, want 201.0", got)
	}

	// Account value = collateral + unrealized: 50 + 2.0*(100.5-99).
	if got := a.AccountValue(); !approx(got, 53.0) {
		t.Errorf("AccountValue() = %g, want 53.0", got)
	}

	// Session baseline was just recorded.
	if got := a.PnL(); !approx(got, 0) {
		t.Errorf("PnL() right after Init = %g, want 0", got)
	}
}

func TestPnLTracksAccountValueSinceInit(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})

	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	client.collateral = big.NewInt(56_000_000) // 56.0
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if got := a.PnL(); !approx(got, 6.0) {
		t.Errorf("PnL() = %g, want 6.0", got)
	}
}

func TestFetchAllCachesMarketMeta(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})

	ctx := context.Background()
	if err := a.FetchAll(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.FetchAll(ctx); err != nil {
		t.Fatal(err)
	}

	// Markets are still queried for fresh index prices, but the unit system
	// survives unchanged.
	if client.marketCalls != 2 {
		t.Errorf("GetMarkets calls = %d, want 2", client.marketCalls)
	}
	info, err := a.MarketInfo("SOL-PERP")
	if err != nil || !approx(info.PriceIncrement, 0.1) {
		t.Errorf("MarketInfo() after refetch = %+v, %v", info, err)
	}
}

func TestMarkUnknownSymbol(t *testing.T) {
	a := New(newFakeClient(), Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Mark("BTC-PERP"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Mark(unknown) error = %v, want ErrNotFound", err)
	}
	if pos := a.Position("BTC-PERP"); !pos.IsFlat() {
		t.Errorf("Position(unknown) = %+v, want flat", pos)
	}
}

func TestPlaceOrderConvertsToLots(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	order := domain.Order{
		Symbol:   "SOL-PERP",
		Side:     domain.SideLong,
		Size:     0.0025, // floors to 2 lots of 0.001
		Price:    100.44, // rounds to 1004 ticks of 0.1
		ClientID: 7,
	}
	if err := a.PlaceOrder(context.Background(), order); err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	if len(client.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(client.placed))
	}
	req := client.placed[0]
	if !req.IsBid {
		t.Error("IsBid = false for a long order")
	}
	if req.PriceLots != 1004 || req.SizeLots != 2 {
		t.Errorf("lots = (%d, %d), want (1004, 2)", req.PriceLots, req.SizeLots)
	}
	if req.OrderType != rpc.OrderTypeLimit || req.ClientId != 7 {
		t.Errorf("req = %+v, want limit order with client id 7", req)
	}
}

func TestPlaceOrderRejectsBelowLotGranularity(t *testing.T) {
	client := newFakeClient()
	a := New(client, Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	order := domain.Order{
		Symbol: "SOL-PERP",
		Side:   domain.SideShort,
		Size:   0.0005, // half a lot, floors to zero
		Price:  100.0,
	}
	err := a.PlaceOrder(context.Background(), order)
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("PlaceOrder() error = %v, want ErrInvalidOrder", err)
	}
	if len(client.placed) != 0 {
		t.Errorf("placed %d orders, want none", len(client.placed))
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
	if len(client.closed) != 0 {
		t.Errorf("close calls = %d, want none when flat", len(client.closed))
	}
}

func TestClosePositionFlattensOpenPosition(t *testing.T) {
	client := newFakeClient()
	client.positions = []rpc.Position{{
		MarketId:    solMarketID,
		SizeLots:    -1000,
		QuoteValue:  big.NewInt(100_000_000),
		RealizedPnl: big.NewInt(0),
	}}
	a := New(client, Config{})
	if err := a.FetchAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := a.ClosePosition(context.Background(), "SOL-PERP"); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}
	if len(client.closed) != 1 || client.closed[0] != solMarketID {
		t.Errorf("close calls = %v, want one for SOL-PERP", client.closed)
	}
}
