// Package chain is the RPC client for the on-chain perpetuals clearinghouse.
// Market metadata, orderbooks, positions, and collateral are read through
// ABI-encoded view calls; order placement, cancellation, and position
// closing are submitted as signed transactions and confirmed by receipt.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"perparb/internal/domain"
)

// clearinghouseABI covers the subset of the exchange contract this client
// uses.
const clearinghouseABI = `[
  {"type":"function","name":"getMarkets","stateMutability":"view","inputs":[],"outputs":[{"name":"markets","type":"tuple[]","components":[{"name":"id","type":"bytes32"},{"name":"symbol","type":"string"},{"name":"baseLotSize","type":"uint64"},{"name":"quoteLotSize","type":"uint64"},{"name":"baseDecimals","type":"uint8"},{"name":"quoteDecimals","type":"uint8"},{"name":"indexPrice","type":"uint64"}]}]},
  {"type":"function","name":"getOrderbook","stateMutability":"view","inputs":[{"name":"marketId","type":"bytes32"},{"name":"depth","type":"uint8"}],"outputs":[{"name":"asks","type":"tuple[]","components":[{"name":"price","type":"uint64"},{"name":"size","type":"uint64"}]},{"name":"bids","type":"tuple[]","components":[{"name":"price","type":"uint64"},{"name":"size","type":"uint64"}]}]},
  {"type":"function","name":"getPositions","stateMutability":"view","inputs":[{"name":"trader","type":"address"}],"outputs":[{"name":"positions","type":"tuple[]","components":[{"name":"marketId","type":"bytes32"},{"name":"sizeLots","type":"int64"},{"name":"quoteValue","type":"int128"},{"name":"realizedPnl","type":"int128"}]}]},
  {"type":"function","name":"collateralOf","stateMutability":"view","inputs":[{"name":"trader","type":"address"}],"outputs":[{"name":"balance","type":"uint128"}]},
  {"type":"function","name":"placeOrder","stateMutability":"nonpayable","inputs":[{"name":"marketId","type":"bytes32"},{"name":"isBid","type":"bool"},{"name":"priceLots","type":"uint64"},{"name":"sizeLots","type":"uint64"},{"name":"orderType","type":"uint8"},{"name":"clientId","type":"uint64"}],"outputs":[]},
  {"type":"function","name":"cancelOrderByClientId","stateMutability":"nonpayable","inputs":[{"name":"marketId","type":"bytes32"},{"name":"clientId","type":"uint64"}],"outputs":[]},
  {"type":"function","name":"closePosition","stateMutability":"nonpayable","inputs":[{"name":"marketId","type":"bytes32"}],"outputs":[]}
]`

const (
	receiptPollInterval = 500 * time.Millisecond
	receiptWaitTimeout  = 90 * time.Second
)

// Client talks to one clearinghouse contract on one EVM chain.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
}

// NewClient dials the RPC endpoint and prepares the signer. privateKeyHex is
// the hex-encoded secp256k1 key without 0x prefix.
func NewClient(ctx context.Context, rpcURL, contractAddr, privateKeyHex string, chainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(clearinghouseABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse ABI: %w", err)
	}

	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	return &Client{
		eth:      eth,
		abi:      parsed,
		contract: common.HexToAddress(contractAddr),
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
	}, nil
}

// Trader returns the address whose positions and collateral are read.
func (c *Client) Trader() common.Address { return c.from }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// GetMarkets returns every market listed on the clearinghouse.
func (c *Client) GetMarkets(ctx context.Context) ([]Market, error) {
	out, err := c.call(ctx, "getMarkets")
	if err != nil {
		return nil, fmt.Errorf("chain: get markets: %w", err)
	}
	markets := *abi.ConvertType(out[0], new([]Market)).(*[]Market)
	return markets, nil
}

// GetOrderbook returns up to depth levels per side for the market, in lot
// units, best first.
func (c *Client) GetOrderbook(ctx context.Context, marketId [32]byte, depth uint8) (Book, error) {
	out, err := c.call(ctx, "getOrderbook", marketId, depth)
	if err != nil {
		return Book{}, fmt.Errorf("chain: get orderbook: %w", err)
	}
	return Book{
		Asks: *abi.ConvertType(out[0], new([]BookLevel)).(*[]BookLevel),
		Bids: *abi.ConvertType(out[1], new([]BookLevel)).(*[]BookLevel),
	}, nil
}

// GetPositions returns the trader's open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	out, err := c.call(ctx, "getPositions", c.from)
	if err != nil {
		return nil, fmt.Errorf("chain: get positions: %w", err)
	}
	positions := *abi.ConvertType(out[0], new([]Position)).(*[]Position)
	return positions, nil
}

// GetCollateral returns the trader's free collateral scaled by the quote
// decimals of the settlement asset.
func (c *Client) GetCollateral(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, "collateralOf", c.from)
	if err != nil {
		return nil, fmt.Errorf("chain: get collateral: %w", err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// PlaceOrder submits the order transaction and waits for its receipt.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) error {
	err := c.transact(ctx, "placeOrder",
		req.MarketId, req.IsBid, req.PriceLots, req.SizeLots, req.OrderType, req.ClientId)
	if err != nil {
		return fmt.Errorf("chain: place order: %w", err)
	}
	return nil
}

// CancelOrderByClientId cancels a resting order by its client id.
func (c *Client) CancelOrderByClientId(ctx context.Context, marketId [32]byte, clientId uint64) error {
	if err := c.transact(ctx, "cancelOrderByClientId", marketId, clientId); err != nil {
		return fmt.Errorf("chain: cancel order %d: %w", clientId, err)
	}
	return nil
}

// ClosePosition asks the clearinghouse to flatten the trader's position in
// the market with a reduce-only immediate-or-cancel fill.
func (c *Client) ClosePosition(ctx context.Context, marketId [32]byte) error {
	if err := c.transact(ctx, "closePosition", marketId); err != nil {
		return fmt.Errorf("chain: close position: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// call performs an eth_call against the contract and unpacks the outputs.
func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// transact signs and sends a state-changing call, then waits for the receipt.
// A reverted gas estimate or a failed receipt maps to domain.ErrVenueRejected;
// everything else on the RPC path maps to domain.ErrTransport.
func (c *Client) transact(ctx context.Context, method string, args ...any) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return fmt.Errorf("%w: nonce: %v", domain.ErrTransport, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: gas price: %v", domain.ErrTransport, err)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.from,
		To:       &c.contract,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		// The node simulates the call during estimation, so a revert here is
		// the clearinghouse refusing the operation.
		return fmt.Errorf("%w: %v", domain.ErrVenueRejected, err)
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("%w: send tx: %v", domain.ErrTransport, err)
	}

	return c.waitMined(ctx, signed.Hash())
}

// waitMined polls for the transaction receipt until it lands or the wait
// times out.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, receiptWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: tx %s reverted", domain.ErrVenueRejected, hash.Hex())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("%w: receipt: %v", domain.ErrTransport, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: tx %s not mined: %v", domain.ErrTransport, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
