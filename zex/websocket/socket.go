package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zex-finance/gozex/pkg/sigchan"
)

// UserClient 数据流依赖的客户端能力，*client.Client 满足该接口
type UserClient interface {
	RegisterUserID(ctx context.Context) error
	UserID() (uint64, bool)
	WSHost() string
}

// Parser 把一帧文本解析为消息；返回 nil 消息表示跳过该帧
type Parser[T any] func(frame []byte) (*T, error)

// Callback 处理解析后的消息；返回错误会断开并重连
type Callback[T any] func(ctx context.Context, msg T) error

var (
	// ErrAlreadyRunning 重复调用 Start
	ErrAlreadyRunning = errors.New("socket is already running")
	// ErrMalformedFrame Parser 返回该错误时只记录并跳过这一帧，不断开连接
	ErrMalformedFrame = errors.New("malformed frame")
)

// Socket 单个数据流的订阅连接
// Start 后在后台维持连接：拨号、读取、回调错误以及非 ErrMalformedFrame 的解析错误会记录下来，
// 关闭连接并在 RetryTimeout 后重连，直到 Stop 或 ctx 结束。
type Socket[T any] struct {
	client   UserClient
	stream   string
	parse    Parser[T]
	callback Callback[T]
	config   *Config
	log      *logrus.Entry

	connected *sigchan.Chan

	runningMu sync.Mutex
	running   bool
	cancel    context.CancelFunc
	doneCh    chan struct{}

	connMu sync.Mutex
	conn   *websocket.Conn

	errMu   sync.RWMutex
	lastErr error
}

// NewSocket 创建数据流连接；stream 为订阅名后缀（如 "@executionReport"）
func NewSocket[T any](client UserClient, stream string, parse Parser[T], callback Callback[T], opts ...Option) *Socket[T] {
	st := buildSettings(opts)
	return &Socket[T]{
		client:    client,
		stream:    stream,
		parse:     parse,
		callback:  callback,
		config:    st.config,
		log:       st.log.WithField("stream", stream),
		connected: sigchan.New(1),
	}
}

// Stream 订阅名后缀
func (s *Socket[T]) Stream() string { return s.stream }

// Endpoint 实际连接的地址
func (s *Socket[T]) Endpoint() string {
	root := s.config.Endpoint
	if root == "" {
		root = s.client.WSHost()
	}
	return strings.TrimRight(root, "/") + "/ws"
}

// Start 注册客户端并启动后台连接，最多等待 StartupTimeout 直到首次连上
// 等待超时不算错误，后台会继续重试；ctx 结束后后台退出，可以再次 Start
func (s *Socket[T]) Start(ctx context.Context) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running {
		select {
		case <-s.doneCh:
			// 父 ctx 已结束，后台循环已退出
			s.cancel()
			s.running = false
		default:
			return ErrAlreadyRunning
		}
	}

	if err := s.client.RegisterUserID(ctx); err != nil {
		return fmt.Errorf("registering before subscribing %s: %w", s.stream, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})
	s.running = true
	s.connected.Drain()

	go s.run(runCtx, s.doneCh)

	if !s.connected.WaitTimeout(ctx, s.config.StartupTimeout) {
		s.log.Warnf("等待连接超时（%s），后台继续重试", s.config.StartupTimeout)
	}
	return nil
}

// Stop 停止后台连接并等待其退出，同时清空最近一次错误
func (s *Socket[T]) Stop() {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.closeConn()
	<-s.doneCh

	s.running = false
	s.setLastError(nil)
	s.log.Info("已停止")
}

// Running 后台连接是否仍在运行
func (s *Socket[T]) Running() bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if !s.running {
		return false
	}
	select {
	case <-s.doneCh:
		return false
	default:
		return true
	}
}

// LastError 最近一次连接错误；连接成功后清空
func (s *Socket[T]) LastError() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.lastErr
}

func (s *Socket[T]) setLastError(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.lastErr = err
}

func (s *Socket[T]) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.setLastError(err)
			s.log.Warnf("连接中断，%s 后重连: %v", s.config.RetryTimeout, err)
		}

		timer := time.NewTimer(s.config.RetryTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runOnce 建立一次连接并读取直到出错
func (s *Socket[T]) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.HandshakeTimeout,
		ReadBufferSize:   s.config.ReadBufferSize,
		WriteBufferSize:  s.config.WriteBufferSize,
	}
	conn, _, err := dialer.DialContext(ctx, s.Endpoint(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Endpoint(), err)
	}
	s.setConn(conn)
	defer s.closeConn()

	if err := s.subscribe(conn); err != nil {
		return err
	}
	s.setLastError(nil)
	s.connected.Emit()
	s.log.Infof("已连接 %s", s.Endpoint())

	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			s.closeConn()
		case <-connDone:
		}
	}()
	if s.config.PingInterval > 0 {
		go s.pingLoop(conn, connDone)
	}

	for {
		if s.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		msg, err := s.parse(frame)
		if errors.Is(err, ErrMalformedFrame) {
			s.log.Warnf("跳过无法识别的帧: %v", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("parse frame: %w", err)
		}
		if msg == nil {
			continue
		}
		if err := s.callback(ctx, *msg); err != nil {
			return fmt.Errorf("callback: %w", err)
		}
	}
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

func (s *Socket[T]) subscribe(conn *websocket.Conn) error {
	userID, ok := s.client.UserID()
	if !ok {
		return errors.New("client has no user id")
	}
	req := subscribeRequest{
		Method: "SUBSCRIBE",
		Params: []string{fmt.Sprintf("%d%s", userID, s.stream)},
		ID:     1,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (s *Socket[T]) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				s.log.Debugf("发送 ping 失败: %v", err)
				return
			}
		}
	}
}

func (s *Socket[T]) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn = conn
}

// closeConn 关闭当前连接，用于打断阻塞中的读取
func (s *Socket[T]) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = s.conn.Close()
	s.conn = nil
}
