package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"sp500-autopilot/internal/model"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Status is the broker adapter's connection/trading snapshot.
type Status struct {
	Connected          bool `json:"api_connected"`
	AutoTradingEnabled bool `json:"auto_trading_enabled"`
}

// Position is one holding in the broker account.
type Position struct {
	Symbol       string  `json:"symbol"`
	Qty          float64 `json:"qty"`
	AvgEntry     float64 `json:"avg_entry_price"`
	MarketValue  float64 `json:"market_value"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

// Adapter is the narrow surface the coordinator consumes.
type Adapter interface {
	Status(ctx context.Context) (Status, error)
	StartAutoTrade(ctx context.Context, symbol string) error
	StopAutoTrade(ctx context.Context) error
	PlaceOrder(ctx context.Context, symbol string, qty float64, side string) error
	UpdateConfig(ctx context.Context, cfg model.TradingConfig) error
	Portfolio(ctx context.Context) ([]Position, error)
}

// Client implements Adapter against the trading backend's REST API. Requests
// are rate-limited to stay inside the broker API budget.
type Client struct {
	BaseURL   string
	KeyID     string
	SecretKey string
	HTTP      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a client with optional proxy support. ratePerSec bounds
// outbound requests; zero means a conservative default.
func NewClient(baseURL, keyID, secretKey, proxyURL string, ratePerSec float64) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		KeyID:     keyID,
		SecretKey: secretKey,
		HTTP: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 5),
	}
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/api/trading/status", nil, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

func (c *Client) StartAutoTrade(ctx context.Context, symbol string) error {
	payload := map[string]string{"symbol": symbol}
	return c.command(ctx, "/api/trading/auto/start", payload)
}

func (c *Client) StopAutoTrade(ctx context.Context) error {
	return c.command(ctx, "/api/trading/auto/stop", nil)
}

func (c *Client) PlaceOrder(ctx context.Context, symbol string, qty float64, side string) error {
	payload := map[string]any{
		"symbol":     symbol,
		"qty":        qty,
		"side":       side,
		"order_type": "market",
	}
	return c.command(ctx, "/api/trading/order", payload)
}

// UpdateConfig pushes a read-only snapshot of the trading configuration to the
// broker adapter.
func (c *Client) UpdateConfig(ctx context.Context, cfg model.TradingConfig) error {
	return c.command(ctx, "/api/trading/config", cfg)
}

func (c *Client) Portfolio(ctx context.Context) ([]Position, error) {
	var result struct {
		Success   bool       `json:"success"`
		Positions []Position `json:"positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/trading/portfolio", nil, &result); err != nil {
		return nil, err
	}
	return result.Positions, nil
}

// command posts a payload and checks the success envelope.
func (c *Client) command(ctx context.Context, path string, payload any) error {
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, path, payload, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("post %s: broker refused: %s", path, result.Message)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.KeyID != "" {
		req.Header.Set("APCA-API-KEY-ID", c.KeyID)
		req.Header.Set("APCA-API-SECRET-KEY", c.SecretKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d, body: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}
