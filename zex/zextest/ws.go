package zextest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zex-finance/gozex/zex/types"
)

// wsConn 单个客户端连接，写操作串行化
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

// ErrNoClient 没有已连接的 WebSocket 客户端
var ErrNoClient = errors.New("zextest: no websocket client connected")

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{conn: conn}
	s.wsMu.Lock()
	s.conns[c] = struct{}{}
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.conns, c)
		s.wsMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg := string(data)
		s.wsMu.Lock()
		s.clientMessages = append(s.clientMessages, msg)
		s.wsMu.Unlock()

		var sub struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
			ID     int      `json:"id"`
		}
		if json.Unmarshal(data, &sub) != nil || !strings.EqualFold(sub.Method, "SUBSCRIBE") {
			continue
		}
		ack, _ := json.Marshal(map[string]any{"result": nil, "id": sub.ID})
		_ = c.write(websocket.TextMessage, ack)
		for _, p := range sub.Params {
			select {
			case s.subscriptions <- p:
			default:
			}
		}
	}
}

// SendToClient 向所有已连接客户端发送文本帧；string 原样发送，其他值编码为 JSON
func (s *Server) SendToClient(message any) error {
	var data []byte
	switch m := message.(type) {
	case string:
		data = []byte(m)
	case []byte:
		data = m
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		data = b
	}

	s.wsMu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.wsMu.Unlock()
	if len(conns) == 0 {
		return ErrNoClient
	}

	var firstErr error
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendExecutionReport 以 {"stream","data"} 包装推送执行回报
func (s *Server) SendExecutionReport(r types.ExecutionReport) error {
	return s.SendToClient(map[string]any{
		"stream": "executionReport",
		"data":   r,
	})
}

// DisconnectClient 关闭所有客户端连接
func (s *Server) DisconnectClient() {
	s.wsMu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.wsMu.Unlock()
	for _, c := range conns {
		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server disconnect"))
		_ = c.conn.Close()
	}
}

// ConnectedClients 当前连接数
func (s *Server) ConnectedClients() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.conns)
}

// ClientMessages 客户端发送过的全部消息
func (s *Server) ClientMessages() []string {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return append([]string(nil), s.clientMessages...)
}

// WaitForSubscription 等待下一次订阅，返回订阅的 stream 参数
func (s *Server) WaitForSubscription(timeout time.Duration) (string, bool) {
	select {
	case p := <-s.subscriptions:
		return p, true
	case <-time.After(timeout):
		return "", false
	}
}
