package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/zex-finance/gozex/pkg/ratelimit"
	sdkhttp "github.com/zex-finance/gozex/pkg/sdk/http"
)

// ServerTime 服务端时间（毫秒）
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var out struct {
		ServerTime *int64 `json:"serverTime"`
	}
	if err := c.get(ctx, ratelimit.KeyMarketGet, timePath, nil, &out); err != nil {
		return 0, err
	}
	if out.ServerTime == nil {
		return 0, fmt.Errorf("the server did not return a proper response")
	}
	return *out.ServerTime, nil
}

// Ping 服务端是否响应；只有传输失败才返回 error
func (c *Client) Ping(ctx context.Context) (bool, error) {
	if err := c.wait(ctx, ratelimit.KeyMarketGet); err != nil {
		return false, err
	}
	resp, err := c.http.DoRequest(ctx, http.MethodGet, pingPath, nil, nil)
	if err != nil {
		return false, toAPIError(pingPath, sdkhttp.ParseHTTPError(resp, err))
	}
	return resp.StatusCode() == http.StatusOK, nil
}

// Price 交易对最新价格
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Price json.RawMessage `json:"price"`
	}
	if err := c.get(ctx, ratelimit.KeyMarketGet, tickerPricePath, map[string]any{"symbol": symbol}, &out); err != nil {
		return 0, err
	}
	price, err := parseNumber(out.Price)
	if err != nil {
		return 0, fmt.Errorf("could not retrieve the price of %s from the server: %w", symbol, err)
	}
	return price, nil
}

// Ticker 交易对 24h 行情
func (c *Client) Ticker(ctx context.Context, symbol string) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, ratelimit.KeyMarketGet, tickerPath, map[string]any{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Depth 交易对深度
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, ratelimit.KeyMarketGet, depthPath, map[string]any{"symbol": symbol, "limit": limit}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExchangeInfo 交易对规则
func (c *Client) ExchangeInfo(ctx context.Context, symbol string) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, ratelimit.KeyMarketGet, exchangeInfoPath, map[string]any{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseNumber 兼容数字和字符串两种编码
func parseNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing value")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
