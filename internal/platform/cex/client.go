// Package cex is the REST client for the centralized derivatives exchange.
// Requests are authenticated with HMAC-SHA256 signatures over
// timestamp+method+path+body; responses arrive in a success/result envelope.
package cex

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"perparb/internal/domain"
)

// MaxOrderbookDepth is the deepest book the exchange serves per request.
const MaxOrderbookDepth = 100

// Client is the signed REST client.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  []byte
	subaccount string
	httpClient *http.Client
}

// NewClient creates a client for the given API root, e.g.
// "https://api.exchange.example/api".
func NewClient(baseURL, apiKey, apiSecret, subaccount string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  []byte(apiSecret),
		subaccount: subaccount,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListMarkets returns every listed future.
func (c *Client) ListMarkets(ctx context.Context) ([]Market, error) {
	var markets []Market
	if err := c.doSignedRequest(ctx, http.MethodGet, "/markets", nil, &markets); err != nil {
		return nil, fmt.Errorf("cex: list markets: %w", err)
	}
	return markets, nil
}

// GetOrderbook returns a depth snapshot for the market. Depth is clamped to
// MaxOrderbookDepth; zero or negative requests the maximum.
func (c *Client) GetOrderbook(ctx context.Context, market string, depth int) (Orderbook, error) {
	if depth <= 0 || depth > MaxOrderbookDepth {
		depth = MaxOrderbookDepth
	}
	path := fmt.Sprintf("/markets/%s/orderbook?depth=%d", url.PathEscape(market), depth)

	var book Orderbook
	if err := c.doSignedRequest(ctx, http.MethodGet, path, nil, &book); err != nil {
		return Orderbook{}, fmt.Errorf("cex: get orderbook %s: %w", market, err)
	}
	return book, nil
}

// GetAccount returns the authenticated account summary including positions.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	var acct Account
	if err := c.doSignedRequest(ctx, http.MethodGet, "/account", nil, &acct); err != nil {
		return Account{}, fmt.Errorf("cex: get account: %w", err)
	}
	return acct, nil
}

// PlaceOrder submits an order and returns once the exchange acknowledges it.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) error {
	if err := c.doSignedRequest(ctx, http.MethodPost, "/orders", req, nil); err != nil {
		return fmt.Errorf("cex: place order: %w", err)
	}
	return nil
}

// CancelByClientID cancels a resting order by the client id it was placed
// with.
func (c *Client) CancelByClientID(ctx context.Context, clientID int64) error {
	path := "/orders/by_client_id/" + strconv.FormatInt(clientID, 10)
	if err := c.doSignedRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("cex: cancel order %d: %w", clientID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// envelope is the exchange's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

// doSignedRequest builds, signs, sends, and decodes a request. When result
// is non-nil the envelope's result field is unmarshalled into it.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody, result any) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.signRequest(req, method, path, bodyBytes)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("%w: %s", domain.ErrVenueRejected, env.Error)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// signRequest adds the HMAC authentication headers. The signature is
// HMAC-SHA256 over millisecond-timestamp + method + path + body, hex-encoded.
func (c *Client) signRequest(req *http.Request, method, path string, body []byte) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, c.apiSecret)
	mac.Write([]byte(ts + method + path))
	if body != nil {
		mac.Write(body)
	}

	req.Header.Set("PERP-KEY", c.apiKey)
	req.Header.Set("PERP-SIGN", hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("PERP-TS", ts)
	if c.subaccount != "" {
		req.Header.Set("PERP-SUBACCOUNT", c.subaccount)
	}
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var env envelope
	_ = json.Unmarshal(body, &env)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, env.Error)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrVenueRejected, env.Error)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransport, statusCode, env.Error)
	}
}
