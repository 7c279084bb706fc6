package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zex-finance/gozex/internal/journal"
	sdkhttp "github.com/zex-finance/gozex/pkg/sdk/http"
	"github.com/zex-finance/gozex/zex/client"
	"github.com/zex-finance/gozex/zex/signing"
	"github.com/zex-finance/gozex/zex/types"
	"github.com/zex-finance/gozex/zex/zextest"
)

const testAPIKey = "e68a96346678e8131622d453ed80b6e1a5ccf19f05727f8a4d31281ae6e82458"

type fixture struct {
	srv     *zextest.Server
	client  *client.Client
	journal *journal.Journal
	handler http.Handler
}

func newFixture(t *testing.T, cfg Config, register bool) *fixture {
	t.Helper()
	srv := zextest.NewServer()
	t.Cleanup(srv.Close)

	v, err := signing.NewDevVisitor(testAPIKey)
	require.NoError(t, err)
	httpOpts := sdkhttp.DefaultOptions()
	httpOpts.RetryCount = 0
	c := client.New(v, true,
		client.WithHost(srv.URL),
		client.WithHTTPOptions(httpOpts),
		client.WithRateLimiter(nil),
		client.WithPollInterval(10*time.Millisecond),
	)
	if register {
		require.NoError(t, c.RegisterUserID(context.Background()))
	}

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return &fixture{srv: srv, client: c, journal: j, handler: New(c, j, cfg).Router()}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestGateway_Health(t *testing.T) {
	f := newFixture(t, Config{AuthToken: "secret"}, true)

	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, true, out["registered"])
	assert.Equal(t, "testnet", out["network"])

	rec = f.do(t, http.MethodGet, "/healthz", nil, map[string]string{requestIDHeader: "abc"})
	assert.Equal(t, "abc", rec.Header().Get(requestIDHeader))
}

func TestGateway_Auth(t *testing.T) {
	f := newFixture(t, Config{AuthToken: "secret"}, true)

	rec := f.do(t, http.MethodGet, "/api/time", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/time", nil, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_PriceIsCached(t *testing.T) {
	f := newFixture(t, Config{PriceTTL: time.Minute}, false)
	f.srv.SetPrice("BTCzUSDT", 30000)

	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodGet, "/api/price?symbol=BTCzUSDT", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"symbol":"BTCzUSDT","price":30000}`, rec.Body.String())
	}
	assert.Len(t, f.srv.RequestsTo("/v1/ticker/price"), 1)

	rec := f.do(t, http.MethodGet, "/api/price", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/price?symbol=NOPE", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGateway_PlaceAndCancel(t *testing.T) {
	f := newFixture(t, Config{}, true)
	userID, _ := f.client.UserID()

	body := placeOrdersRequest{Orders: []types.PlaceOrderRequest{
		{BaseToken: "BTC", QuoteToken: "zUSDT", Side: types.OrderSideBuy, Volume: 0.01, Price: 29000},
		{BaseToken: "BTC", QuoteToken: "zUSDT", Side: types.OrderSideSell, Volume: 0.01, Price: 31000},
	}}
	rec := f.do(t, http.MethodPost, "/api/orders", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var placed struct {
		Orders []placedOrder `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))
	require.Len(t, placed.Orders, 2)
	assert.Equal(t, uint64(0), placed.Orders[0].Nonce)
	assert.Equal(t, "BTCzUSDT", placed.Orders[1].Symbol)
	assert.Len(t, f.srv.Orders(userID), 2)

	rec = f.do(t, http.MethodGet, "/api/journal?open=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	rec = f.do(t, http.MethodPost, "/api/orders/cancel", cancelOrdersRequest{Nonces: []uint64{1}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"canceled":1}`, rec.Body.String())
	remaining := f.srv.Orders(userID)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint64(0), remaining[0].Nonce)

	rec = f.do(t, http.MethodPost, "/api/orders/cancel", cancelOrdersRequest{Nonces: []uint64{42}}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []types.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	assert.Len(t, orders, 1)
}

func TestGateway_InvalidOrder(t *testing.T) {
	f := newFixture(t, Config{}, true)
	body := placeOrdersRequest{Orders: []types.PlaceOrderRequest{{BaseToken: "BTC", QuoteToken: "zUSDT", Side: "HOLD", Volume: 1, Price: 1}}}
	rec := f.do(t, http.MethodPost, "/api/orders", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.srv.RequestsTo("/v1/order"))
}

func TestGateway_NotRegistered(t *testing.T) {
	f := newFixture(t, Config{}, false)
	rec := f.do(t, http.MethodGet, "/api/assets", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out["request_id"])
}
