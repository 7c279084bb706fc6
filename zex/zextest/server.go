// Package zextest 提供进程内的 Zex 模拟服务端（REST + WebSocket），用于测试
package zextest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/zex-finance/gozex/zex/signing"
	"github.com/zex-finance/gozex/zex/types"
)

// Request 服务端收到的一次 HTTP 请求
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	// Transactions POST 请求体中解码出的交易
	Transactions [][]byte
}

// Server Zex 模拟服务端
type Server struct {
	*httptest.Server

	network  types.Network
	upgrader websocket.Upgrader

	mu            sync.Mutex
	userIDs       map[string]uint64 // 公钥 hex -> user id
	nextUserID    uint64
	nonces        map[uint64]uint64
	requests      []Request
	orders        map[uint64][]types.Order
	nextOrderID   int64
	trades        map[uint64][]types.TradeInfo
	assets        map[uint64][]types.Asset
	transfers     map[uint64][]types.Transfer
	withdraws     map[uint64][]types.Withdraw
	prices        map[string]float64
	registerDelay time.Duration
	strictNonce   bool
	autoReports   bool

	wsMu           sync.Mutex
	conns          map[*wsConn]struct{}
	clientMessages []string
	subscriptions  chan string
}

// Option 模拟服务端选项
type Option func(*Server)

// WithNetwork 按指定网络的格式解析交易（默认测试网）
func WithNetwork(n types.Network) Option {
	return func(s *Server) { s.network = n }
}

// WithRegisterDelay 注册后延迟分配 user id，用于测试轮询
func WithRegisterDelay(d time.Duration) Option {
	return func(s *Server) { s.registerDelay = d }
}

// WithStrictNonce 拒绝小于当前 nonce 的交易
func WithStrictNonce() Option {
	return func(s *Server) { s.strictNonce = true }
}

// WithExecutionReports 下单/撤单后向订阅的 WebSocket 连接推送执行回报
func WithExecutionReports() Option {
	return func(s *Server) { s.autoReports = true }
}

// NewServer 启动模拟服务端，调用方负责 Close
func NewServer(opts ...Option) *Server {
	s := &Server{
		network:       types.Testnet,
		userIDs:       make(map[string]uint64),
		nextUserID:    1,
		nonces:        make(map[uint64]uint64),
		orders:        make(map[uint64][]types.Order),
		nextOrderID:   1,
		trades:        make(map[uint64][]types.TradeInfo),
		assets:        make(map[uint64][]types.Asset),
		transfers:     make(map[uint64][]types.Transfer),
		withdraws:     make(map[uint64][]types.Withdraw),
		prices:        make(map[string]float64),
		conns:         make(map[*wsConn]struct{}),
		subscriptions: make(chan string, 64),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/register", s.handleRegister)
	mux.HandleFunc("GET /v1/user/id", s.handleUserID)
	mux.HandleFunc("GET /v1/user/nonce", s.handleNonce)
	mux.HandleFunc("POST /v1/order", s.handleOrder)
	mux.HandleFunc("POST /v1/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /v1/deposit", s.handleDeposit)
	mux.HandleFunc("GET /v1/time", s.handleTime)
	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, http.StatusOK, map[string]any{}) })
	mux.HandleFunc("GET /v1/ticker/price", s.handlePrice)
	mux.HandleFunc("GET /v1/ticker", s.handleTicker)
	mux.HandleFunc("GET /v1/depth", s.handleDepth)
	mux.HandleFunc("GET /v1/exchangeInfo", s.handleExchangeInfo)
	mux.HandleFunc("GET /v1/user/trades", userList(s, func(id uint64) any { return s.trades[id] }))
	mux.HandleFunc("GET /v1/asset/getUserAsset", userList(s, func(id uint64) any { return s.assets[id] }))
	mux.HandleFunc("GET /v1/user/orders", userList(s, func(id uint64) any { return s.orders[id] }))
	mux.HandleFunc("GET /v1/user/transfers", userList(s, func(id uint64) any { return s.transfers[id] }))
	mux.HandleFunc("GET /v1/user/withdraws", s.handleUserWithdraws)
	mux.HandleFunc("/ws", s.handleWS)

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// WSURL WebSocket 根地址（不含 /ws）
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// Close 关闭所有 WebSocket 连接并停止服务
func (s *Server) Close() {
	s.DisconnectClient()
	s.Server.Close()
}

// record 记录每个 HTTP 请求（WebSocket 握手除外）
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		req := Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: body}
		if r.Method == http.MethodPost {
			req.Transactions, _ = decodePayload(body)
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next.ServeHTTP(w, r)
	})
}

func decodePayload(body []byte) ([][]byte, error) {
	var payload []string
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("payload must be a json array of strings: %w", err)
	}
	txs := make([][]byte, 0, len(payload))
	for _, p := range payload {
		tx, err := signing.DecodeLatin1(p)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{"detail": fmt.Sprintf(format, args...)})
}

// Requests 返回收到的全部 HTTP 请求
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo 返回指定路径的请求
func (s *Server) RequestsTo(path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// SetNonce 设置用户当前 nonce
func (s *Server) SetNonce(userID, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[userID] = nonce
}

// Nonce 用户当前 nonce
func (s *Server) Nonce(userID uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[userID]
}

// UserID 公钥对应的 user id
func (s *Server) UserID(publicKey []byte) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.userIDs[common.Bytes2Hex(publicKey)]
	return id, ok
}

// SetPrice 设置交易对价格
func (s *Server) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// AddTrade 为用户添加成交记录
func (s *Server) AddTrade(userID uint64, t types.TradeInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[userID] = append(s.trades[userID], t)
}

// SetAssets 设置用户资产
func (s *Server) SetAssets(userID uint64, assets []types.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[userID] = assets
}

// AddTransfer 为用户添加转账记录
func (s *Server) AddTransfer(userID uint64, t types.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[userID] = append(s.transfers[userID], t)
}

// Orders 用户当前挂单
func (s *Server) Orders(userID uint64) []types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Order(nil), s.orders[userID]...)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	txs, err := decodePayload(body)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}
	for _, tx := range txs {
		pub, sig, err := signing.ParseRegisterTransaction(tx)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "%v", err)
			return
		}
		if !signing.VerifyMessage(pub, signing.RegisterMessage(pub), sig) {
			writeDetail(w, http.StatusBadRequest, "invalid signature")
			return
		}
		key := common.Bytes2Hex(pub)
		if s.registerDelay > 0 {
			time.AfterFunc(s.registerDelay, func() { s.assignUserID(key) })
		} else {
			s.assignUserID(key)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) assignUserID(publicKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userIDs[publicKey]; ok {
		return
	}
	s.userIDs[publicKey] = s.nextUserID
	s.nextUserID++
}

func (s *Server) handleUserID(w http.ResponseWriter, r *http.Request) {
	public := r.URL.Query().Get("public")
	if public == "" {
		writeDetail(w, http.StatusBadRequest, "public key required")
		return
	}
	s.mu.Lock()
	id, ok := s.userIDs[public]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

// parseUserID 解析 id 参数并确认用户存在
func (s *Server) parseUserID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "user id required")
		return 0, false
	}
	return id, true
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseUserID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nonce": s.Nonce(id)})
}

func userList(s *Server, get func(id uint64) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.parseUserID(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		v := get(id)
		s.mu.Unlock()
		if v == nil || isEmptySlice(v) {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func isEmptySlice(v any) bool {
	b, _ := json.Marshal(v)
	return string(b) == "null"
}

func (s *Server) handleUserWithdraws(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseUserID(w, r)
	if !ok {
		return
	}
	chain := r.URL.Query().Get("chain")
	s.mu.Lock()
	out := make([]types.Withdraw, 0)
	for _, wd := range s.withdraws[id] {
		if chain == "" || wd.Chain == chain {
			out = append(out, wd)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"serverTime": time.Now().UnixMilli()})
}

func (s *Server) price(symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	return p, ok
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	p, ok := s.price(symbol)
	if !ok {
		writeDetail(w, http.StatusUnprocessableEntity, "unknown symbol %q", symbol)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "price": p})
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	p, ok := s.price(symbol)
	if !ok {
		writeDetail(w, http.StatusUnprocessableEntity, "unknown symbol %q", symbol)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"lastPrice": strconv.FormatFloat(p, 'f', -1, 64),
		"volume":    "0",
	})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if _, ok := s.price(symbol); !ok || limit <= 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid depth query for %q", symbol)
		return
	}
	bids, asks := s.book(symbol, limit)
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "bids": bids, "asks": asks})
}

// book 由挂单汇总出的简单深度
func (s *Server) book(symbol string, limit int) (bids, asks [][2]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bids, asks = [][2]string{}, [][2]string{}
	for _, orders := range s.orders {
		for _, o := range orders {
			if o.BaseToken+o.QuoteToken != symbol {
				continue
			}
			level := [2]string{strconv.FormatFloat(o.Price, 'f', -1, 64), strconv.FormatFloat(o.Amount, 'f', -1, 64)}
			if o.Side() == types.OrderSideBuy && len(bids) < limit {
				bids = append(bids, level)
			} else if o.Side() == types.OrderSideSell && len(asks) < limit {
				asks = append(asks, level)
			}
		}
	}
	return bids, asks
}

func (s *Server) handleExchangeInfo(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if _, ok := s.price(symbol); !ok {
		writeDetail(w, http.StatusUnprocessableEntity, "unknown symbol %q", symbol)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"timezone":   "UTC",
		"serverTime": time.Now().UnixMilli(),
		"symbols": []map[string]any{{
			"symbol":              symbol,
			"status":              "TRADING",
			"baseAssetPrecision":  signing.DefaultVolumeDigits,
			"quoteAssetPrecision": signing.DefaultPriceDigits,
		}},
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	txs, err := decodePayload(body)
	if err != nil || len(txs) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid deposit payload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	txs, err := decodePayload(body)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}
	var reports []types.ExecutionReport
	for i, tx := range txs {
		cmd, err := signing.Command(tx)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "tx %d: %v", i, err)
			return
		}
		var report *types.ExecutionReport
		switch cmd {
		case signing.CommandBuy, signing.CommandSell:
			report, err = s.acceptOrder(tx)
		case signing.CommandCancel:
			report, err = s.acceptCancel(tx)
		default:
			err = fmt.Errorf("unexpected command %q", cmd)
		}
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "tx %d: %v", i, err)
			return
		}
		if report != nil {
			reports = append(reports, *report)
		}
	}
	if s.autoReports {
		for _, rep := range reports {
			_ = s.SendExecutionReport(rep)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "orders received"})
}

func (s *Server) acceptOrder(tx []byte) (*types.ExecutionReport, error) {
	o, err := signing.DecodeOrder(s.network, tx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strictNonce && o.Nonce < s.nonces[o.UserID] {
		return nil, fmt.Errorf("stale nonce %d, expected >= %d", o.Nonce, s.nonces[o.UserID])
	}
	if o.Nonce+1 > s.nonces[o.UserID] {
		s.nonces[o.UserID] = o.Nonce + 1
	}
	price, _ := o.Price.Float64()
	volume, _ := o.Volume.Float64()
	name := "buy"
	if o.Side == types.OrderSideSell {
		name = "sell"
	}
	order := types.Order{
		Amount:     volume,
		BaseToken:  o.BaseToken,
		ID:         s.nextOrderID,
		Name:       name,
		Nonce:      o.Nonce,
		Price:      price,
		QuoteToken: o.QuoteToken,
		T:          float64(o.Epoch),
	}
	s.nextOrderID++
	s.orders[o.UserID] = append(s.orders[o.UserID], order)

	report := newReport(order, types.OrderStatusNew)
	return &report, nil
}

func (s *Server) acceptCancel(tx []byte) (*types.ExecutionReport, error) {
	c, err := signing.DecodeCancel(s.network, tx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := s.orders[c.UserID]
	for i, o := range orders {
		if o.Nonce == c.OrderNonce {
			s.orders[c.UserID] = append(orders[:i:i], orders[i+1:]...)
			report := newReport(o, types.OrderStatusCanceled)
			return &report, nil
		}
	}
	// 未知订单的撤单请求直接忽略，与交易所行为一致
	return nil, nil
}

func newReport(o types.Order, status types.OrderStatus) types.ExecutionReport {
	now := time.Now().UnixMilli()
	return types.ExecutionReport{
		EventType:       "executionReport",
		EventTime:       now,
		Symbol:          o.BaseToken + o.QuoteToken,
		Side:            string(o.Side()),
		OrderType:       "LIMIT",
		Quantity:        strconv.FormatFloat(o.Amount, 'f', -1, 64),
		Price:           strconv.FormatFloat(o.Price, 'f', -1, 64),
		ExecutionType:   string(status),
		OrderStatusRaw:  string(status),
		OrderID:         o.ID,
		Nonce:           o.Nonce,
		LastExecutedQty: "0",
		CumulativeQty:   "0",
		LastPrice:       "0",
		TransactionTime: now,
		TradeID:         -1,
	}
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	txs, err := decodePayload(body)
	if err != nil || len(txs) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid withdraw payload")
		return
	}
	for _, tx := range txs {
		wd, err := s.parseWithdraw(tx)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "%v", err)
			return
		}
		s.mu.Lock()
		wd.ID = int64(len(s.withdraws[uint64(wd.UserID)]) + 1)
		s.withdraws[uint64(wd.UserID)] = append(s.withdraws[uint64(wd.UserID)], wd)
		s.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// parseWithdraw 解析提现交易中服务端关心的字段
func (s *Server) parseWithdraw(tx []byte) (types.Withdraw, error) {
	// 测试网: ver | sigtype | 'w'；主网: ver | 'w'
	cmdAt := 1
	if s.network == types.Testnet {
		cmdAt = 2
	}
	if len(tx) <= cmdAt || tx[0] != signing.Version || tx[cmdAt] != signing.CommandWithdraw {
		return types.Withdraw{}, fmt.Errorf("not a withdraw transaction")
	}
	off := cmdAt + 1
	if len(tx) < off+1 {
		return types.Withdraw{}, fmt.Errorf("withdraw transaction too short")
	}
	tokenLen := int(tx[off])
	off++
	// chain(3) | token | f64 amount | address(20) | u32 epoch | u32 nonce | u64 user id
	need := off + 3 + tokenLen + 8 + 20 + 4 + 4 + 8
	if len(tx) < need+signing.SignatureLen {
		return types.Withdraw{}, fmt.Errorf("withdraw transaction too short")
	}
	chain := string(tx[off : off+3])
	off += 3
	token := string(tx[off : off+tokenLen])
	off += tokenLen
	amount := math.Float64frombits(binary.BigEndian.Uint64(tx[off:]))
	off += 8
	dest := common.BytesToAddress(tx[off : off+20])
	off += 20
	epoch := binary.BigEndian.Uint32(tx[off:])
	off += 8
	userID := binary.BigEndian.Uint64(tx[off:])
	return types.Withdraw{
		Chain:         chain,
		TokenContract: token,
		Amount:        strconv.FormatFloat(amount, 'f', -1, 64),
		Destination:   dest.Hex(),
		UserID:        int64(userID),
		T:             float64(epoch),
	}, nil
}
