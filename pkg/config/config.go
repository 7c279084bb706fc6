package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zex-finance/gozex/pkg/logger"
)

// NetworkConfig 网络配置
type NetworkConfig struct {
	Testnet bool   `yaml:"testnet" json:"testnet"`
	APIHost string `yaml:"api_host" json:"api_host"` // 为空时按网络选择默认地址
	WSHost  string `yaml:"ws_host" json:"ws_host"`
}

// CredentialsConfig 凭证配置
// APIKey 与 KeyStore 二选一；都为空时客户端生成一次性密钥
type CredentialsConfig struct {
	APIKey       string `yaml:"api_key" json:"api_key"`
	KeyStorePath string `yaml:"keystore_path" json:"keystore_path"`
	KeyStoreKey  string `yaml:"keystore_key" json:"keystore_key"` // badger 加密密钥（hex，16/24/32 字节）
	KeyName      string `yaml:"key_name" json:"key_name"`
}

// ClientConfig REST 客户端配置
type ClientConfig struct {
	RegisterTimeout time.Duration `yaml:"register_timeout" json:"register_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RetryCount      int           `yaml:"retry_count" json:"retry_count"`
	RateLimit       int           `yaml:"rate_limit" json:"rate_limit"` // 每秒请求数，0 表示使用默认分组限制
	CacheDir        string        `yaml:"cache_dir" json:"cache_dir"`   // 注册缓存目录，为空则不缓存
}

// SocketConfig WebSocket 配置
type SocketConfig struct {
	RetryTimeout   time.Duration `yaml:"retry_timeout" json:"retry_timeout"`
	StartupTimeout time.Duration `yaml:"startup_timeout" json:"startup_timeout"`
}

// JournalConfig 下单日志配置
type JournalConfig struct {
	Path string `yaml:"path" json:"path"`
}

// GatewayConfig 本地 HTTP 网关配置
type GatewayConfig struct {
	Listen    string `yaml:"listen" json:"listen"`
	AuthToken string `yaml:"auth_token" json:"auth_token"`
}

// Config 应用配置
type Config struct {
	Network     NetworkConfig     `yaml:"network" json:"network"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	Client      ClientConfig      `yaml:"client" json:"client"`
	Socket      SocketConfig      `yaml:"socket" json:"socket"`
	Log         logger.Config     `yaml:"log" json:"log"`
	Journal     JournalConfig     `yaml:"journal" json:"journal"`
	Gateway     GatewayConfig     `yaml:"gateway" json:"gateway"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Network: NetworkConfig{Testnet: true},
		Credentials: CredentialsConfig{
			KeyName: "default",
		},
		Client: ClientConfig{
			RegisterTimeout: 20 * time.Second,
			RequestTimeout:  30 * time.Second,
			RetryCount:      2,
		},
		Socket: SocketConfig{
			RetryTimeout:   10 * time.Second,
			StartupTimeout: 10 * time.Second,
		},
		Log: logger.Config{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Journal: JournalConfig{Path: "data/journal.db"},
		Gateway: GatewayConfig{Listen: "127.0.0.1:8787"},
	}
}

// LoadDotEnv 加载 .env 文件到环境变量；文件不存在时忽略
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("加载 %s 失败: %w", p, err)
		}
	}
	return nil
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值）
// filePath 为空时只使用默认值和环境变量
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON），覆盖 cfg 中已有的默认值
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量覆盖
func applyEnv(cfg *Config) {
	cfg.Network.Testnet = parseBoolEnv("ZEX_TESTNET", cfg.Network.Testnet)
	cfg.Network.APIHost = getEnv("ZEX_API_HOST", cfg.Network.APIHost)
	cfg.Network.WSHost = getEnv("ZEX_WS_HOST", cfg.Network.WSHost)

	cfg.Credentials.APIKey = getEnv("ZEX_API_KEY", cfg.Credentials.APIKey)
	cfg.Credentials.KeyStorePath = getEnv("ZEX_KEYSTORE_PATH", cfg.Credentials.KeyStorePath)
	cfg.Credentials.KeyStoreKey = getEnv("ZEX_KEYSTORE_KEY", cfg.Credentials.KeyStoreKey)
	cfg.Credentials.KeyName = getEnv("ZEX_KEY_NAME", cfg.Credentials.KeyName)

	cfg.Client.RegisterTimeout = parseDurationEnv("ZEX_REGISTER_TIMEOUT", cfg.Client.RegisterTimeout)
	cfg.Client.RequestTimeout = parseDurationEnv("ZEX_REQUEST_TIMEOUT", cfg.Client.RequestTimeout)
	cfg.Client.RetryCount = parseIntEnv("ZEX_RETRY_COUNT", cfg.Client.RetryCount)
	cfg.Client.RateLimit = parseIntEnv("ZEX_RATE_LIMIT", cfg.Client.RateLimit)
	cfg.Client.CacheDir = getEnv("ZEX_CACHE_DIR", cfg.Client.CacheDir)

	cfg.Socket.RetryTimeout = parseDurationEnv("ZEX_RETRY_TIMEOUT", cfg.Socket.RetryTimeout)
	cfg.Socket.StartupTimeout = parseDurationEnv("ZEX_STARTUP_TIMEOUT", cfg.Socket.StartupTimeout)

	cfg.Log.Level = getEnv("ZEX_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.OutputFile = getEnv("ZEX_LOG_FILE", cfg.Log.OutputFile)

	cfg.Journal.Path = getEnv("ZEX_JOURNAL_PATH", cfg.Journal.Path)
	cfg.Gateway.Listen = getEnv("ZEX_GATEWAY_LISTEN", cfg.Gateway.Listen)
	cfg.Gateway.AuthToken = getEnv("ZEX_GATEWAY_TOKEN", cfg.Gateway.AuthToken)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if key := strings.TrimPrefix(c.Credentials.APIKey, "0x"); key != "" {
		b, err := hex.DecodeString(key)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("ZEX_API_KEY 必须是 32 字节的十六进制私钥")
		}
	}
	if key := c.Credentials.KeyStoreKey; key != "" {
		b, err := hex.DecodeString(key)
		if err != nil {
			return fmt.Errorf("ZEX_KEYSTORE_KEY 不是合法的十六进制: %w", err)
		}
		if n := len(b); n != 16 && n != 24 && n != 32 {
			return fmt.Errorf("ZEX_KEYSTORE_KEY 长度必须是 16/24/32 字节，当前 %d", n)
		}
	}
	if c.Client.RegisterTimeout <= 0 {
		return fmt.Errorf("register_timeout 必须大于 0")
	}
	if c.Client.RetryCount < 0 {
		return fmt.Errorf("retry_count 不能为负数")
	}
	if c.Client.RateLimit < 0 {
		return fmt.Errorf("rate_limit 不能为负数")
	}
	if c.Socket.RetryTimeout <= 0 {
		return fmt.Errorf("socket retry_timeout 必须大于 0")
	}
	if c.Socket.StartupTimeout < 0 {
		return fmt.Errorf("socket startup_timeout 不能为负数")
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseDurationEnv 解析时长环境变量（如 "20s"）
func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
