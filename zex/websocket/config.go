// Package websocket 提供 Zex 用户数据流（执行回报等）的 WebSocket 订阅
package websocket

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultRetryTimeout     = 10 * time.Second
	defaultStartupTimeout   = 10 * time.Second
	defaultHandshakeTimeout = 15 * time.Second
	defaultPingInterval     = 30 * time.Second
)

// Config 数据流连接配置
type Config struct {
	// Endpoint 覆盖 WebSocket 根地址（不含 /ws），为空时使用客户端的 WSHost
	Endpoint string

	RetryTimeout   time.Duration // 出错后等待多久重连
	StartupTimeout time.Duration // Start 等待首次连接的时间

	HandshakeTimeout time.Duration
	PingInterval     time.Duration // 0 表示不主动发送 ping
	ReadTimeout      time.Duration // 0 表示不设置读超时

	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RetryTimeout:     defaultRetryTimeout,
		StartupTimeout:   defaultStartupTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
		PingInterval:     defaultPingInterval,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// Option 数据流选项
type Option func(*settings)

type settings struct {
	config *Config
	log    *logrus.Entry
}

// WithConfig 使用完整配置
func WithConfig(c *Config) Option {
	return func(s *settings) {
		if c != nil {
			cp := *c
			s.config = &cp
		}
	}
}

// WithEndpoint 覆盖 WebSocket 根地址
func WithEndpoint(endpoint string) Option {
	return func(s *settings) { s.config.Endpoint = endpoint }
}

// WithRetryTimeout 设置重连间隔
func WithRetryTimeout(d time.Duration) Option {
	return func(s *settings) { s.config.RetryTimeout = d }
}

// WithStartupTimeout 设置启动等待时间
func WithStartupTimeout(d time.Duration) Option {
	return func(s *settings) { s.config.StartupTimeout = d }
}

// WithLogger 设置日志
func WithLogger(l *logrus.Entry) Option {
	return func(s *settings) { s.log = l }
}

func buildSettings(opts []Option) *settings {
	s := &settings{config: DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.WithField("module", "zex.websocket")
	}
	return s
}
