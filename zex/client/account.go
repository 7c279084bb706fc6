package client

import (
	"context"
	"errors"

	"github.com/zex-finance/gozex/pkg/ratelimit"
	"github.com/zex-finance/gozex/zex/types"
)

// Withdraw 提现
func (c *Client) Withdraw(ctx context.Context, req types.WithdrawRequest) error {
	userID, err := c.requireUserID()
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	nonce, err := c.fetchNonce(ctx, userID)
	if err != nil {
		return err
	}
	c.setNonce(nonce)

	tx, err := c.visitor.WithdrawTransaction(req, nonce, userID)
	if err != nil {
		return err
	}
	if err := c.postTransactions(ctx, ratelimit.KeyWithdrawPost, withdrawPath, tx); err != nil {
		return err
	}
	c.log.WithField("token", req.TokenName).Infof("提现已提交: %s %s -> %s", req.Amount, req.TokenChain, req.Destination)
	return nil
}

// Deposit 提交已签名的充值交易
func (c *Client) Deposit(ctx context.Context, transaction []byte) error {
	if len(transaction) == 0 {
		return errors.New("deposit transaction is empty")
	}
	return c.postTransactions(ctx, ratelimit.KeyGeneral, depositPath, transaction)
}

// UserTrades 用户的全部成交
func (c *Client) UserTrades(ctx context.Context) ([]types.TradeInfo, error) {
	var out []types.TradeInfo
	if err := c.getUserData(ctx, userTradesPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserAssets 用户的全部资产
func (c *Client) UserAssets(ctx context.Context) ([]types.Asset, error) {
	var out []types.Asset
	if err := c.getUserData(ctx, userAssetsPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserOrders 用户的全部挂单
func (c *Client) UserOrders(ctx context.Context) ([]types.Order, error) {
	var out []types.Order
	if err := c.getUserData(ctx, userOrdersPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserTransfers 用户的全部充值/转账
func (c *Client) UserTransfers(ctx context.Context) ([]types.Transfer, error) {
	var out []types.Transfer
	if err := c.getUserData(ctx, userTransferPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserWithdraws 用户在指定链上的全部提现
func (c *Client) UserWithdraws(ctx context.Context, chain string) ([]types.Withdraw, error) {
	var out []types.Withdraw
	if err := c.getUserData(ctx, userWithdrawPath, map[string]any{"chain": chain}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getUserData(ctx context.Context, path string, params map[string]any, out any) error {
	userID, err := c.requireUserID()
	if err != nil {
		return err
	}
	if params == nil {
		params = map[string]any{}
	}
	params["id"] = userID
	return c.get(ctx, ratelimit.KeyUserGet, path, params, out)
}
