package cex

// Market is one tradable future as reported by the exchange. Prices and
// sizes are already real-valued; the venue adapter passes them through.
type Market struct {
	Name           string   `json:"name"`
	PriceIncrement float64  `json:"priceIncrement"`
	SizeIncrement  float64  `json:"sizeIncrement"`
	Index          float64  `json:"index"`
	Bid            *float64 `json:"bid"`
	Ask            *float64 `json:"ask"`
}

// Orderbook is a depth snapshot. Levels are [price, size] pairs, best first.
type Orderbook struct {
	Asks [][2]float64 `json:"asks"`
	Bids [][2]float64 `json:"bids"`
}

// AccountPosition is one entry of the account's position list.
type AccountPosition struct {
	Future     string  `json:"future"`
	NetSize    float64 `json:"netSize"`
	EntryPrice float64 `json:"entryPrice"`
}

// Account is the authenticated account summary.
type Account struct {
	TotalAccountValue float64           `json:"totalAccountValue"`
	TotalPositionSize float64           `json:"totalPositionSize"`
	Positions         []AccountPosition `json:"positions"`
}

// PlaceOrderRequest is the order-placement payload.
type PlaceOrderRequest struct {
	Market     string  `json:"market"`
	Side       string  `json:"side"` // "buy" or "sell"
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Type       string  `json:"type"` // "limit"
	IOC        bool    `json:"ioc"`
	ReduceOnly bool    `json:"reduceOnly"`
	ClientID   string  `json:"clientId,omitempty"`
}
