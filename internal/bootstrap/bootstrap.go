// Package bootstrap 把配置装配成日志、客户端和数据流，供各命令共用
package bootstrap

import (
	"context"
	"fmt"

	"github.com/zex-finance/gozex/pkg/config"
	"github.com/zex-finance/gozex/pkg/logger"
	"github.com/zex-finance/gozex/pkg/persistence"
	"github.com/zex-finance/gozex/pkg/ratelimit"
	"github.com/zex-finance/gozex/pkg/secretstore"
	sdkhttp "github.com/zex-finance/gozex/pkg/sdk/http"
	"github.com/zex-finance/gozex/zex/client"
	"github.com/zex-finance/gozex/zex/signing"
	"github.com/zex-finance/gozex/zex/types"
	"github.com/zex-finance/gozex/zex/websocket"
)

// Load 加载 .env 与配置文件并初始化日志
func Load(configPath string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

// OpenKeyStore 打开配置中的密钥库
func OpenKeyStore(creds config.CredentialsConfig, readOnly bool) (*secretstore.Store, error) {
	if creds.KeyStorePath == "" {
		return nil, fmt.Errorf("keystore path is not configured")
	}
	key, err := secretstore.ParseKey(creds.KeyStoreKey)
	if err != nil {
		return nil, fmt.Errorf("invalid keystore key: %w", err)
	}
	return secretstore.Open(secretstore.OpenOptions{
		Path:          creds.KeyStorePath,
		EncryptionKey: key,
		ReadOnly:      readOnly,
	})
}

// ResolveAPIKey 依次使用配置中的私钥、密钥库中的私钥；都没有时返回空串（生成临时密钥）
func ResolveAPIKey(creds config.CredentialsConfig) (string, error) {
	if creds.APIKey != "" {
		return creds.APIKey, nil
	}
	if creds.KeyStorePath == "" {
		return "", nil
	}
	store, err := OpenKeyStore(creds, true)
	if err != nil {
		return "", err
	}
	defer store.Close()
	return store.APIKey(creds.KeyName)
}

// ClientOptions 由配置生成客户端选项
func ClientOptions(cfg *config.Config) []client.Option {
	httpOpts := sdkhttp.DefaultOptions()
	if cfg.Client.RequestTimeout > 0 {
		httpOpts.Timeout = cfg.Client.RequestTimeout
	}
	if cfg.Client.RetryCount >= 0 {
		httpOpts.RetryCount = cfg.Client.RetryCount
	}

	opts := []client.Option{
		client.WithHTTPOptions(httpOpts),
		client.WithRegisterTimeout(cfg.Client.RegisterTimeout),
		client.WithLogger(logger.WithField("module", "zex.client")),
	}
	if cfg.Network.APIHost != "" {
		opts = append(opts, client.WithHost(cfg.Network.APIHost))
	}
	if cfg.Network.WSHost != "" {
		opts = append(opts, client.WithWSHost(cfg.Network.WSHost))
	}
	if cfg.Client.RateLimit > 0 {
		opts = append(opts, client.WithRateLimiter(ratelimit.NewRequestsPerSecond(cfg.Client.RateLimit)))
	}
	if cfg.Client.CacheDir != "" {
		opts = append(opts, client.WithRegistrationCache(persistence.NewJSONFileService(cfg.Client.CacheDir)))
	}
	return opts
}

// NewClient 创建并注册客户端
func NewClient(ctx context.Context, cfg *config.Config) (*client.Client, error) {
	apiKey, err := ResolveAPIKey(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return client.Create(ctx, apiKey, cfg.Network.Testnet, ClientOptions(cfg)...)
}

// NewUnregisteredClient 创建客户端但不注册（行情查询不需要 user id）
func NewUnregisteredClient(cfg *config.Config) (*client.Client, error) {
	apiKey, err := ResolveAPIKey(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	visitor, err := signing.NewVisitor(types.NetworkFromTestnet(cfg.Network.Testnet), apiKey)
	if err != nil {
		return nil, err
	}
	return client.New(visitor, cfg.Network.Testnet, ClientOptions(cfg)...), nil
}

// SocketOptions 由配置生成数据流选项
func SocketOptions(cfg *config.Config) []websocket.Option {
	opts := []websocket.Option{
		websocket.WithLogger(logger.WithField("module", "zex.websocket")),
	}
	if cfg.Socket.RetryTimeout > 0 {
		opts = append(opts, websocket.WithRetryTimeout(cfg.Socket.RetryTimeout))
	}
	if cfg.Socket.StartupTimeout > 0 {
		opts = append(opts, websocket.WithStartupTimeout(cfg.Socket.StartupTimeout))
	}
	return opts
}
