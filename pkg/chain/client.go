// Package chain reads ERC-20 token balances from an Ethereum-compatible
// JSON-RPC endpoint.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAddress is returned for anything that is not a 0x-prefixed
	// 20-byte hex address.
	ErrInvalidAddress = errors.New("invalid wallet address")
	// ErrNetwork wraps every transport, HTTP or RPC-level failure.
	ErrNetwork = errors.New("balance network error")
)

// balanceOf(address) selector.
const balanceOfSelector = "70a08231"

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether addr looks like an EVM address.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// Config configures a Client.
type Config struct {
	RPCURL   string
	Contract string
	Decimals int32
	RetryMax int
	Timeout  time.Duration
}

// Client fetches token balances with eth_call.
type Client struct {
	http     *retryablehttp.Client
	url      string
	contract string
	decimals int32
	nextID   atomic.Int64
}

// NewClient creates a balance client. Retries use exponential backoff on
// connection errors and 5xx responses.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !ValidAddress(cfg.Contract) {
		return nil, fmt.Errorf("token contract: %w", ErrInvalidAddress)
	}
	if cfg.Decimals < 0 || cfg.Decimals > 36 {
		return nil, fmt.Errorf("token decimals %d out of range", cfg.Decimals)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = leveledLogger{logger.With().Str("component", "chain").Logger()}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}

	return &Client{
		http:     rc,
		url:      cfg.RPCURL,
		contract: strings.ToLower(cfg.Contract),
		decimals: cfg.Decimals,
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callArgs struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// FetchBalance returns the token balance of address in whole-token units.
func (c *Client) FetchBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !ValidAddress(address) {
		return decimal.Zero, ErrInvalidAddress
	}

	data := "0x" + balanceOfSelector + strings.Repeat("0", 24) + strings.ToLower(address[2:])
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "eth_call",
		Params:  []interface{}{callArgs{To: c.contract, Data: data}, "latest"},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return decimal.Zero, fmt.Errorf("%w: rpc returned status %d", ErrNetwork, resp.StatusCode)
	}

	var out rpcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode rpc response: %v", ErrNetwork, err)
	}
	if out.Error != nil {
		return decimal.Zero, fmt.Errorf("%w: rpc error %d: %s", ErrNetwork, out.Error.Code, out.Error.Message)
	}

	raw, err := parseQuantity(out.Result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return decimal.NewFromBigInt(raw, -c.decimals), nil
}

// parseQuantity decodes a 0x-prefixed hex word. An empty "0x" reads as zero.
func parseQuantity(s string) (*big.Int, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("malformed result %q", s)
	}
	hex := s[2:]
	if hex == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		return nil, fmt.Errorf("malformed result %q", s)
	}
	return v, nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l zerolog.Logger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.l.Error().Fields(kv).Msg(msg) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.l.Warn().Fields(kv).Msg(msg) }
