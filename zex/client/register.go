package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zex-finance/gozex/pkg/persistence"
	"github.com/zex-finance/gozex/pkg/ratelimit"
	sdkhttp "github.com/zex-finance/gozex/pkg/sdk/http"
)

// registration 注册缓存内容
type registration struct {
	UserID    uint64    `json:"user_id"`
	PublicKey string    `json:"public_key"`
	Host      string    `json:"host"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Client) registrationStore() persistence.Store {
	if c.cache == nil {
		return nil
	}
	return c.cache.NewStore("registration", c.Network().String(), c.PublicKeyHex())
}

// loadCachedRegistration 命中缓存时直接设置 user id
func (c *Client) loadCachedRegistration() bool {
	store := c.registrationStore()
	if store == nil {
		return false
	}
	var reg registration
	if err := store.Load(&reg); err != nil {
		if !errors.Is(err, persistence.ErrNotExists) {
			c.log.Warnf("读取注册缓存失败: %v", err)
		}
		return false
	}
	if reg.Host != c.apiHost || reg.PublicKey != c.PublicKeyHex() {
		return false
	}
	c.SetUserID(reg.UserID)
	c.log.Debugf("使用缓存的 user id: %d", reg.UserID)
	return true
}

func (c *Client) saveRegistration(userID uint64) {
	store := c.registrationStore()
	if store == nil {
		return
	}
	reg := registration{
		UserID:    userID,
		PublicKey: c.PublicKeyHex(),
		Host:      c.apiHost,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Save(reg); err != nil {
		c.log.Warnf("写入注册缓存失败: %v", err)
	}
}

// RegisterUserID 向交易所注册公钥并等待分配 user id
// 已注册时直接返回；超过注册超时返回 ErrRegisterTimeout
func (c *Client) RegisterUserID(ctx context.Context) error {
	if _, ok := c.UserID(); ok {
		return nil
	}

	c.registerMu.Lock()
	defer c.registerMu.Unlock()
	if _, ok := c.UserID(); ok {
		return nil
	}
	if c.loadCachedRegistration() {
		return nil
	}

	tx, err := c.visitor.RegisterTransaction()
	if err != nil {
		return fmt.Errorf("签名注册交易失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.registerTimeout)
	defer cancel()

	// 公钥已注册时服务端可能返回错误，这里只记录日志，以查询结果为准
	if err := c.postTransactions(ctx, ratelimit.KeyRegister, registerPath, tx); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return registerError(ctx, err)
		}
		c.log.Warnf("注册请求返回错误，继续查询 user id: %v", err)
	}

	userID, err := c.pollUserID(ctx)
	if err != nil {
		return registerError(ctx, err)
	}

	c.SetUserID(userID)
	c.saveRegistration(userID)
	c.log.WithField("user_id", userID).Info("用户注册成功")
	return nil
}

func registerError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRegisterTimeout, err)
	}
	return err
}

// pollUserID 按轮询间隔查询 user id，直到返回 200 且带 id
func (c *Client) pollUserID(ctx context.Context) (uint64, error) {
	params := &sdkhttp.RequestOptions{Params: map[string]any{"public": c.PublicKeyHex()}}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.wait(ctx, ratelimit.KeyUserGet); err != nil {
			return 0, err
		}
		resp, err := c.http.DoRequest(ctx, http.MethodGet, userIDPath, params, nil)
		if err == nil && resp.StatusCode() == http.StatusOK {
			var out struct {
				ID *uint64 `json:"id"`
			}
			if json.Unmarshal(resp.Body(), &out) == nil && out.ID != nil {
				return *out.ID, nil
			}
		} else if err != nil && ctx.Err() == nil {
			c.log.Debugf("查询 user id 失败: %v", err)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
