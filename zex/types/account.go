package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Asset 用户资产
type Asset struct {
	Asset       string `json:"asset"`
	Free        string `json:"free"`
	Locked      string `json:"locked"`
	Freeze      string `json:"freeze"`
	Withdrawing string `json:"withdrawing"`
}

// Transfer 充值/转账记录
type Transfer struct {
	Chain  string  `json:"chain"`
	Token  string  `json:"token"`
	TxHash string  `json:"txHash"`
	Amount float64 `json:"amount"`
	Time   float64 `json:"time"`
}

// Withdraw 提现记录
type Withdraw struct {
	Chain         string  `json:"chain"`
	TokenContract string  `json:"tokenContract"`
	Amount        string  `json:"amount"`
	Destination   string  `json:"destination"`
	UserID        int64   `json:"user_id"`
	T             float64 `json:"t"`
	ID            int64   `json:"id"`
}

// chainCodeLen 链代码以定长写入交易
const chainCodeLen = 3

// WithdrawRequest 提现请求
type WithdrawRequest struct {
	TokenChain  string `json:"token_chain"`
	TokenName   string `json:"token_name"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

// AmountFloat 解析提现数量
func (r WithdrawRequest) AmountFloat() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Amount), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid withdraw amount %q: %w", r.Amount, err)
	}
	return v, nil
}

// Validate 校验提现请求
func (r WithdrawRequest) Validate() error {
	if len(r.TokenChain) != chainCodeLen {
		return fmt.Errorf("token chain must be %d characters, got %q", chainCodeLen, r.TokenChain)
	}
	if r.TokenName == "" || len(r.TokenName) > maxTokenNameLen {
		return fmt.Errorf("invalid token name: %q", r.TokenName)
	}
	amount, err := r.AmountFloat()
	if err != nil {
		return err
	}
	if !(amount > 0) {
		return fmt.Errorf("withdraw amount must be positive, got %s", r.Amount)
	}
	dest := r.Destination
	if !strings.HasPrefix(dest, "0x") || len(dest) != 42 {
		return errors.New("destination must be a 0x-prefixed 20-byte hex address")
	}
	return nil
}
