package client

import (
	"context"
	"fmt"

	"github.com/zex-finance/gozex/pkg/ratelimit"
	"github.com/zex-finance/gozex/zex/types"
)

// PlaceBatchOrder 批量下单
// 从服务端取 nonce 后按顺序为每个订单分配连续的 nonce；空批次直接返回且不查询 nonce
func (c *Client) PlaceBatchOrder(ctx context.Context, orders []types.PlaceOrderRequest) ([]types.PlaceOrderResult, error) {
	userID, err := c.requireUserID()
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []types.PlaceOrderResult{}, nil
	}
	for i, o := range orders {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	nonce, err := c.fetchNonce(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.setNonce(nonce)

	results := make([]types.PlaceOrderResult, 0, len(orders))
	txs := make([][]byte, 0, len(orders))
	for i, o := range orders {
		tx, err := c.visitor.PlaceOrderTransaction(o, nonce, userID)
		if err != nil {
			return nil, fmt.Errorf("signing order %d: %w", i, err)
		}
		results = append(results, types.PlaceOrderResult{
			Request:                o,
			Nonce:                  nonce,
			SignedOrderTransaction: tx,
		})
		txs = append(txs, tx)
		nonce++
	}
	c.setNonce(nonce)

	if err := c.postTransactions(ctx, ratelimit.KeyOrderPost, orderPath, txs...); err != nil {
		return nil, err
	}
	c.log.WithField("count", len(results)).Debugf("批量下单已提交, 下一个 nonce=%d", nonce)
	return results, nil
}

// CancelBatchOrder 批量撤单；没有撤单请求时直接返回
func (c *Client) CancelBatchOrder(ctx context.Context, cancels []types.CancelOrderRequest) error {
	userID, err := c.requireUserID()
	if err != nil {
		return err
	}

	txs := make([][]byte, 0, len(cancels))
	for i, req := range cancels {
		tx, err := c.visitor.CancelOrderTransaction(req, userID)
		if err != nil {
			return fmt.Errorf("signing cancel %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	if len(txs) == 0 {
		return nil
	}

	if err := c.postTransactions(ctx, ratelimit.KeyOrderPost, orderPath, txs...); err != nil {
		return err
	}
	c.log.WithField("count", len(txs)).Debug("批量撤单已提交")
	return nil
}

// CancelPlacedOrders 撤销 PlaceBatchOrder 返回的订单
func (c *Client) CancelPlacedOrders(ctx context.Context, placed []types.PlaceOrderResult) error {
	cancels := make([]types.CancelOrderRequest, len(placed))
	for i, p := range placed {
		cancels[i] = types.CancelRequestFromResult(p)
	}
	return c.CancelBatchOrder(ctx, cancels)
}
