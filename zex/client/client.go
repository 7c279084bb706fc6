// Package client Zex 交易所 REST 客户端
//
// 客户端持有一个签名访问器（signing.Visitor），注册后获得 user id，
// 之后即可批量下单、撤单、提现以及查询行情和用户数据。
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/zex-finance/gozex/pkg/persistence"
	"github.com/zex-finance/gozex/pkg/ratelimit"
	sdkhttp "github.com/zex-finance/gozex/pkg/sdk/http"
	"github.com/zex-finance/gozex/zex/signing"
	"github.com/zex-finance/gozex/zex/types"
)

const (
	defaultRegisterTimeout = 20 * time.Second
	defaultPollInterval    = 100 * time.Millisecond
)

// Client Zex 交易所客户端，可并发使用
type Client struct {
	visitor signing.Visitor
	testnet bool
	apiHost string
	wsHost  string

	http    *sdkhttp.Client
	limiter *ratelimit.RateLimitManager
	cache   persistence.Service
	log     *logrus.Entry

	registerTimeout time.Duration
	pollInterval    time.Duration

	mu       sync.RWMutex
	userID   uint64
	hasUser  bool
	nonce    uint64
	hasNonce bool

	// registerMu 保证同一时间只有一次注册流程
	registerMu sync.Mutex
	// txMu 串行化「取 nonce → 签名 → 提交」，避免同一客户端的两批交易复用 nonce
	txMu sync.Mutex
}

type options struct {
	apiHost         string
	wsHost          string
	httpClient      *sdkhttp.Client
	httpOptions     sdkhttp.Options
	registerTimeout time.Duration
	pollInterval    time.Duration
	limiter         *ratelimit.RateLimitManager
	noLimiter       bool
	cache           persistence.Service
	log             *logrus.Entry
	signingOptions  []signing.Option
}

// Option 客户端选项
type Option func(*options)

// WithHost 覆盖 REST 地址
func WithHost(host string) Option {
	return func(o *options) { o.apiHost = host }
}

// WithWSHost 覆盖 WebSocket 地址
func WithWSHost(host string) Option {
	return func(o *options) { o.wsHost = host }
}

// WithHTTPClient 使用已有的 HTTP 客户端（其 BaseURL 即 REST 地址）
func WithHTTPClient(c *sdkhttp.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithHTTPOptions 设置 HTTP 超时与重试
func WithHTTPOptions(opts sdkhttp.Options) Option {
	return func(o *options) { o.httpOptions = opts }
}

// WithRegisterTimeout 注册等待 user id 的超时（默认 20s）
func WithRegisterTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.registerTimeout = d
		}
	}
}

// WithPollInterval 注册后轮询 user id 的间隔（默认 100ms）
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithRateLimiter 设置速率限制器；传 nil 关闭限流
func WithRateLimiter(l *ratelimit.RateLimitManager) Option {
	return func(o *options) {
		o.limiter = l
		o.noLimiter = l == nil
	}
}

// WithRegistrationCache 缓存公钥到 user id 的映射，重启后免注册
func WithRegistrationCache(s persistence.Service) Option {
	return func(o *options) { o.cache = s }
}

// WithLogger 设置日志
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.log = l }
}

// WithSigningOptions 传给签名访问器的选项（仅 Create 使用）
func WithSigningOptions(opts ...signing.Option) Option {
	return func(o *options) { o.signingOptions = append(o.signingOptions, opts...) }
}

func buildOptions(opts []Option) *options {
	o := &options{
		httpOptions:     sdkhttp.DefaultOptions(),
		registerTimeout: defaultRegisterTimeout,
		pollInterval:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New 创建未注册的客户端；testnet 决定默认的 REST/WebSocket 地址
func New(visitor signing.Visitor, testnet bool, opts ...Option) *Client {
	return newClient(visitor, testnet, buildOptions(opts))
}

func newClient(visitor signing.Visitor, testnet bool, o *options) *Client {
	apiHost := o.apiHost
	if apiHost == "" {
		apiHost = DefaultAPIHost(testnet)
	}
	wsHost := o.wsHost
	if wsHost == "" {
		wsHost = DefaultWSHost(testnet)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = sdkhttp.NewClientWithOptions(apiHost, o.httpOptions)
	} else {
		apiHost = httpClient.Host()
	}

	limiter := o.limiter
	if limiter == nil && !o.noLimiter {
		limiter = ratelimit.NewRateLimitManager()
	}

	log := o.log
	if log == nil {
		log = logrus.WithField("module", "zex.client")
	}

	return &Client{
		visitor:         visitor,
		testnet:         testnet,
		apiHost:         apiHost,
		wsHost:          wsHost,
		http:            httpClient,
		limiter:         limiter,
		cache:           o.cache,
		log:             log.WithField("network", types.NetworkFromTestnet(testnet).String()),
		registerTimeout: o.registerTimeout,
		pollInterval:    o.pollInterval,
	}
}

// Create 创建并注册客户端
// apiKey 为十六进制私钥，为空时生成新密钥；testnet 同时决定签名格式
func Create(ctx context.Context, apiKey string, testnet bool, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	visitor, err := signing.NewVisitor(types.NetworkFromTestnet(testnet), apiKey, o.signingOptions...)
	if err != nil {
		return nil, err
	}
	c := newClient(visitor, testnet, o)
	if err := c.RegisterUserID(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Testnet 是否连接测试网
func (c *Client) Testnet() bool { return c.testnet }

// Network 客户端所在网络
func (c *Client) Network() types.Network { return types.NetworkFromTestnet(c.testnet) }

// APIHost REST 地址
func (c *Client) APIHost() string { return c.apiHost }

// WSHost WebSocket 地址
func (c *Client) WSHost() string { return c.wsHost }

// PublicKey 33 字节压缩公钥
func (c *Client) PublicKey() []byte { return c.visitor.PublicKey() }

// PublicKeyHex 公钥的十六进制形式（不带 0x）
func (c *Client) PublicKeyHex() string { return common.Bytes2Hex(c.visitor.PublicKey()) }

// Visitor 签名访问器
func (c *Client) Visitor() signing.Visitor { return c.visitor }

// UserID 返回 user id；未注册时 ok 为 false
func (c *Client) UserID() (id uint64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.hasUser
}

// SetUserID 直接设置 user id（跳过注册）
func (c *Client) SetUserID(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
	c.hasUser = true
}

// Nonce 下一笔交易使用的 nonce；还未从服务端获取过时 ok 为 false
func (c *Client) Nonce() (nonce uint64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nonce, c.hasNonce
}

func (c *Client) setNonce(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce = n
	c.hasNonce = true
}

func (c *Client) requireUserID() (uint64, error) {
	id, ok := c.UserID()
	if !ok {
		return 0, ErrNotRegistered
	}
	return id, nil
}

func (c *Client) wait(ctx context.Context, key string) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, key)
}

// get 发送 GET 请求并把 2xx 响应体解码到 out
func (c *Client) get(ctx context.Context, key, path string, params map[string]any, out any) error {
	if err := c.wait(ctx, key); err != nil {
		return err
	}
	resp, err := c.http.DoRequest(ctx, http.MethodGet, path, &sdkhttp.RequestOptions{Params: params}, nil)
	if err := toAPIError(path, sdkhttp.ParseHTTPError(resp, err)); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("parsing %s response failed: %w", path, err)
	}
	return nil
}

// postTransactions 以 latin-1 字符串数组提交已签名交易
func (c *Client) postTransactions(ctx context.Context, key, path string, txs ...[]byte) error {
	if err := c.wait(ctx, key); err != nil {
		return err
	}
	resp, err := c.http.DoRequest(ctx, http.MethodPost, path,
		&sdkhttp.RequestOptions{Data: signing.EncodePayload(txs...)}, nil)
	return toAPIError(path, sdkhttp.ParseHTTPError(resp, err))
}

// fetchNonce 查询服务端记录的下一个 nonce
func (c *Client) fetchNonce(ctx context.Context, userID uint64) (uint64, error) {
	var out struct {
		Nonce *uint64 `json:"nonce"`
	}
	if err := c.get(ctx, ratelimit.KeyUserGet, userNoncePath, map[string]any{"id": userID}, &out); err != nil {
		return 0, err
	}
	if out.Nonce == nil {
		return 0, fmt.Errorf("the server did not return a nonce for user %d", userID)
	}
	return *out.Nonce, nil
}
