// Package gateway 在已注册的 Zex 客户端之上提供本地 REST 网关
package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zex-finance/gozex/internal/journal"
	"github.com/zex-finance/gozex/internal/metrics"
	"github.com/zex-finance/gozex/pkg/cache"
	"github.com/zex-finance/gozex/zex/client"
	"github.com/zex-finance/gozex/zex/types"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	defaultPriceTTL = 2 * time.Second
	defaultInfoTTL  = time.Minute
)

// Config 网关配置
type Config struct {
	// AuthToken 非空时要求 Authorization: Bearer <token>（/healthz 除外）
	AuthToken string
	PriceTTL  time.Duration
	InfoTTL   time.Duration
}

// Server 网关
type Server struct {
	client  *client.Client
	journal *journal.Journal
	cfg     Config
	log     *logrus.Entry

	prices *cache.InMemoryCache[string, float64]
	infos  *cache.InMemoryCache[string, map[string]any]
}

// New 创建网关；journal 为 nil 时撤单与日志接口不可用
func New(c *client.Client, j *journal.Journal, cfg Config) *Server {
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = defaultPriceTTL
	}
	if cfg.InfoTTL <= 0 {
		cfg.InfoTTL = defaultInfoTTL
	}
	return &Server{
		client:  c,
		journal: j,
		cfg:     cfg,
		log:     logrus.WithField("module", "gateway"),
		prices:  cache.NewInMemoryCache[string, float64](cfg.PriceTTL),
		infos:   cache.NewInMemoryCache[string, map[string]any](cfg.InfoTTL),
	}
}

// Router 构建 HTTP 路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api", s.auth())
	api.GET("/time", s.handleTime)
	api.GET("/price", s.handlePrice)
	api.GET("/exchangeInfo", s.handleExchangeInfo)
	api.GET("/orders", s.handleUserOrders)
	api.POST("/orders", s.handlePlaceOrders)
	api.POST("/orders/cancel", s.handleCancelOrders)
	api.GET("/trades", s.handleUserTrades)
	api.GET("/assets", s.handleUserAssets)
	api.GET("/journal", s.handleJournal)

	return r
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		}).Debug("gateway request")
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AuthToken == "" {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.abort(c, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		c.Next()
	}
}

func (s *Server) abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      err.Error(),
		"request_id": c.GetString(requestIDKey),
	})
}

// fail 把客户端错误映射为 HTTP 状态码
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrNotRegistered):
		status = http.StatusServiceUnavailable
	case errors.Is(err, journal.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		status = apiErr.StatusCode
	}
	if status >= http.StatusInternalServerError {
		metrics.GatewayErrors.Add(1)
		s.log.WithField("request_id", c.GetString(requestIDKey)).Warnf("请求失败: %v", err)
	}
	s.abort(c, status, err)
}

func (s *Server) handleHealth(c *gin.Context) {
	id, registered := s.client.UserID()
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"network":    s.client.Network().String(),
		"registered": registered,
		"user_id":    id,
	})
}

func (s *Server) handleTime(c *gin.Context) {
	ts, err := s.client.ServerTime(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"serverTime": ts})
}

func (s *Server) handlePrice(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		s.abort(c, http.StatusBadRequest, errors.New("symbol is required"))
		return
	}
	price, err := s.prices.GetOrLoad(symbol, 0, func() (float64, error) {
		return s.client.Price(c.Request.Context(), symbol)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price})
}

func (s *Server) handleExchangeInfo(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		s.abort(c, http.StatusBadRequest, errors.New("symbol is required"))
		return
	}
	info, err := s.infos.GetOrLoad(symbol, 0, func() (map[string]any, error) {
		return s.client.ExchangeInfo(c.Request.Context(), symbol)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type placeOrdersRequest struct {
	Orders []types.PlaceOrderRequest `json:"orders"`
}

type placedOrder struct {
	Nonce    uint64          `json:"nonce"`
	Symbol   string          `json:"symbol"`
	Side     types.OrderSide `json:"side"`
	Volume   float64         `json:"volume"`
	Price    float64         `json:"price"`
	SignedTx string          `json:"signed_tx"`
}

func (s *Server) handlePlaceOrders(c *gin.Context) {
	var req placeOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}
	for i, o := range req.Orders {
		if err := o.Validate(); err != nil {
			s.abort(c, http.StatusBadRequest, errors.New("order "+strconv.Itoa(i)+": "+err.Error()))
			return
		}
	}

	ctx := c.Request.Context()
	results, err := s.client.PlaceBatchOrder(ctx, req.Orders)
	if err != nil {
		s.fail(c, err)
		return
	}
	metrics.OrdersPlaced.Add(int64(len(results)))
	if s.journal != nil && len(results) > 0 {
		userID, _ := s.client.UserID()
		if err := s.journal.Record(ctx, s.client.Network(), userID, results); err != nil {
			metrics.JournalErrors.Add(1)
			s.log.Errorf("写入订单日志失败: %v", err)
		}
	}

	out := make([]placedOrder, len(results))
	for i, r := range results {
		out[i] = placedOrder{
			Nonce:    r.Nonce,
			Symbol:   r.Request.Symbol(),
			Side:     r.Request.Side,
			Volume:   r.Request.Volume,
			Price:    r.Request.Price,
			SignedTx: common.Bytes2Hex(r.SignedOrderTransaction),
		}
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

type cancelOrdersRequest struct {
	Nonces []uint64 `json:"nonces"`
}

func (s *Server) handleCancelOrders(c *gin.Context) {
	if s.journal == nil {
		s.abort(c, http.StatusNotImplemented, errors.New("order journal is disabled"))
		return
	}
	var req cancelOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}
	userID, ok := s.client.UserID()
	if !ok {
		s.fail(c, client.ErrNotRegistered)
		return
	}

	ctx := c.Request.Context()
	cancels := make([]types.CancelOrderRequest, 0, len(req.Nonces))
	for _, n := range req.Nonces {
		e, err := s.journal.Get(ctx, s.client.Network(), userID, n)
		if err != nil {
			s.fail(c, err)
			return
		}
		cancels = append(cancels, e.CancelRequest())
	}
	if err := s.client.CancelBatchOrder(ctx, cancels); err != nil {
		s.fail(c, err)
		return
	}
	metrics.OrdersCanceled.Add(int64(len(cancels)))
	n, err := s.journal.MarkCanceled(ctx, s.client.Network(), userID, req.Nonces...)
	if err != nil {
		metrics.JournalErrors.Add(1)
		s.log.Errorf("更新订单日志失败: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"canceled": n})
}

func (s *Server) handleUserOrders(c *gin.Context) {
	orders, err := s.client.UserOrders(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleUserTrades(c *gin.Context) {
	trades, err := s.client.UserTrades(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handleUserAssets(c *gin.Context) {
	assets, err := s.client.UserAssets(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, assets)
}

func (s *Server) handleJournal(c *gin.Context) {
	if s.journal == nil {
		s.abort(c, http.StatusNotImplemented, errors.New("order journal is disabled"))
		return
	}
	network := s.client.Network()
	f := journal.Filter{Network: &network, OpenOnly: c.Query("open") == "true"}
	if userID, ok := s.client.UserID(); ok {
		f.UserID = &userID
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		f.Limit = limit
	}
	entries, err := s.journal.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
