package types

import (
	"errors"
	"fmt"
	"math"
)

// maxTokenNameLen 代币名称长度以单字节写入交易
const maxTokenNameLen = 255

// PlaceOrderRequest 下单请求
type PlaceOrderRequest struct {
	BaseToken  string    `json:"base_token"`
	QuoteToken string    `json:"quote_token"`
	Side       OrderSide `json:"side"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
}

// Symbol 返回交易对名称（base + quote）
func (r PlaceOrderRequest) Symbol() string {
	return r.BaseToken + r.QuoteToken
}

// Validate 校验下单请求
func (r PlaceOrderRequest) Validate() error {
	if r.BaseToken == "" || r.QuoteToken == "" {
		return errors.New("base token and quote token are required")
	}
	if len(r.BaseToken) > maxTokenNameLen || len(r.QuoteToken) > maxTokenNameLen {
		return fmt.Errorf("token name too long: %q/%q", r.BaseToken, r.QuoteToken)
	}
	if !r.Side.Valid() {
		return fmt.Errorf("invalid order side: %q", r.Side)
	}
	if !(r.Volume > 0) || math.IsInf(r.Volume, 0) {
		return fmt.Errorf("invalid volume: %v", r.Volume)
	}
	if !(r.Price > 0) || math.IsInf(r.Price, 0) {
		return fmt.Errorf("invalid price: %v", r.Price)
	}
	return nil
}

// PlaceOrderResult 单个订单的下单结果
type PlaceOrderResult struct {
	Request                PlaceOrderRequest `json:"place_order_request"`
	Nonce                  uint64            `json:"nonce"`
	SignedOrderTransaction []byte            `json:"signed_order_transaction"`
}

// CancelOrderRequest 撤单请求
// SignedOrder 为下单时发送给交易所的已签名交易，OrderNonce 为该订单的 nonce
type CancelOrderRequest struct {
	SignedOrder []byte `json:"signed_order"`
	OrderNonce  uint64 `json:"order_nonce"`
}

// CancelRequestFromResult 由下单结果构建撤单请求
func CancelRequestFromResult(r PlaceOrderResult) CancelOrderRequest {
	return CancelOrderRequest{
		SignedOrder: r.SignedOrderTransaction,
		OrderNonce:  r.Nonce,
	}
}

// Order 服务端返回的已下订单
type Order struct {
	Amount     float64 `json:"amount"`
	BaseToken  string  `json:"base_token"`
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Nonce      uint64  `json:"nonce"`
	Price      float64 `json:"price"`
	QuoteToken string  `json:"quote_token"`
	T          float64 `json:"t"`
}

// Side 由 name（buy/sell）推出订单方向
func (o Order) Side() OrderSide {
	if o.Name == "sell" {
		return OrderSideSell
	}
	return OrderSideBuy
}

// TradeInfo 成交记录
type TradeInfo struct {
	Amount       float64 `json:"amount"`
	BaseToken    string  `json:"base_token"`
	ID           int64   `json:"id"`
	MakerOrderID int64   `json:"maker_order_id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	QuoteToken   string  `json:"quote_token"`
	T            float64 `json:"t"`
	TakerOrderID int64   `json:"taker_order_id"`
}
