package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zex-finance/gozex/pkg/persistence"
	sdkhttp "github.com/zex-finance/gozex/pkg/sdk/http"
	"github.com/zex-finance/gozex/zex/signing"
	"github.com/zex-finance/gozex/zex/types"
	"github.com/zex-finance/gozex/zex/zextest"
)

const testAPIKey = "e68a96346678e8131622d453ed80b6e1a5ccf19f05727f8a4d31281ae6e82458"

func testOptions(host string) []Option {
	httpOpts := sdkhttp.DefaultOptions()
	httpOpts.RetryCount = 0
	httpOpts.Timeout = 5 * time.Second
	return []Option{
		WithHost(host),
		WithHTTPOptions(httpOpts),
		WithRateLimiter(nil),
		WithPollInterval(10 * time.Millisecond),
		WithRegisterTimeout(2 * time.Second),
	}
}

func newTestClient(t *testing.T, srv *zextest.Server, testnet bool, opts ...Option) *Client {
	t.Helper()
	v, err := signing.NewVisitor(types.NetworkFromTestnet(testnet), testAPIKey)
	require.NoError(t, err)
	return New(v, testnet, append(testOptions(srv.URL), opts...)...)
}

func sampleOrders(n int) []types.PlaceOrderRequest {
	out := make([]types.PlaceOrderRequest, n)
	for i := range out {
		side := types.OrderSideBuy
		if i%2 == 1 {
			side = types.OrderSideSell
		}
		out[i] = types.PlaceOrderRequest{
			BaseToken:  "BTC",
			QuoteToken: "zUSDT",
			Side:       side,
			Volume:     0.001,
			Price:      30000 + float64(i),
		}
	}
	return out
}

func TestRegisterUserID(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)

	_, ok := c.UserID()
	require.False(t, ok)

	require.NoError(t, c.RegisterUserID(context.Background()))
	id, ok := c.UserID()
	require.True(t, ok)
	serverID, found := srv.UserID(c.PublicKey())
	require.True(t, found)
	assert.Equal(t, serverID, id)

	reqs := srv.RequestsTo("/v1/register")
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Transactions, 1)
	pub, _, err := signing.ParseRegisterTransaction(reqs[0].Transactions[0])
	require.NoError(t, err)
	assert.Equal(t, c.PublicKey(), pub)
}

func TestRegisterUserID_SkipsWhenRegistered(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)
	c.SetUserID(42)

	require.NoError(t, c.RegisterUserID(context.Background()))
	assert.Empty(t, srv.Requests())
	id, _ := c.UserID()
	assert.Equal(t, uint64(42), id)
}

func TestRegisterUserID_PollsUntilAssigned(t *testing.T) {
	srv := zextest.NewServer(zextest.WithRegisterDelay(100 * time.Millisecond))
	defer srv.Close()
	c := newTestClient(t, srv, true)

	require.NoError(t, c.RegisterUserID(context.Background()))
	_, ok := c.UserID()
	assert.True(t, ok)
	assert.Greater(t, len(srv.RequestsTo("/v1/user/id")), 1)
}

func TestRegisterUserID_Timeout(t *testing.T) {
	srv := zextest.NewServer(zextest.WithRegisterDelay(time.Hour))
	defer srv.Close()
	c := newTestClient(t, srv, true, WithRegisterTimeout(150*time.Millisecond))

	err := c.RegisterUserID(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegisterTimeout), "got %v", err)
	_, ok := c.UserID()
	assert.False(t, ok)
}

func TestRegisterUserID_UsesCache(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	cache := persistence.NewMemoryService()

	first := newTestClient(t, srv, true, WithRegistrationCache(cache))
	require.NoError(t, first.RegisterUserID(context.Background()))
	id, _ := first.UserID()

	before := len(srv.Requests())
	second := newTestClient(t, srv, true, WithRegistrationCache(cache))
	require.NoError(t, second.RegisterUserID(context.Background()))
	cached, ok := second.UserID()
	require.True(t, ok)
	assert.Equal(t, id, cached)
	assert.Len(t, srv.Requests(), before)
}

func TestCreate(t *testing.T) {
	srv := zextest.NewServer(zextest.WithNetwork(types.Mainnet))
	defer srv.Close()

	c, err := Create(context.Background(), testAPIKey, false, testOptions(srv.URL)...)
	require.NoError(t, err)
	assert.False(t, c.Testnet())
	assert.Equal(t, types.Mainnet, c.Visitor().Network())
	assert.Equal(t, MainnetWSHost, c.WSHost())
	_, ok := c.UserID()
	assert.True(t, ok)
}

func TestCreate_InvalidKey(t *testing.T) {
	_, err := Create(context.Background(), "not-hex", true)
	assert.Error(t, err)
}

func TestNotRegisteredErrors(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)
	ctx := context.Background()

	_, err := c.PlaceBatchOrder(ctx, sampleOrders(1))
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.ErrorIs(t, c.CancelBatchOrder(ctx, nil), ErrNotRegistered)
	_, err = c.UserTrades(ctx)
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = c.UserAssets(ctx)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.ErrorIs(t, c.Withdraw(ctx, types.WithdrawRequest{}), ErrNotRegistered)
	assert.Empty(t, srv.Requests())
}

func TestPlaceBatchOrder_ConsecutiveNonces(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)
	ctx := context.Background()
	require.NoError(t, c.RegisterUserID(ctx))
	id, _ := c.UserID()

	results, err := c.PlaceBatchOrder(ctx, sampleOrders(3))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, uint64(i), r.Nonce)
		decoded, err := signing.DecodeOrder(types.Testnet, r.SignedOrderTransaction)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), decoded.Nonce)
		assert.Equal(t, id, decoded.UserID)
	}
	nonce, ok := c.Nonce()
	require.True(t, ok)
	assert.Equal(t, uint64(3), nonce)

	orderReqs := srv.RequestsTo("/v1/order")
	require.Len(t, orderReqs, 1)
	assert.Len(t, orderReqs[0].Transactions, 3)
	assert.Len(t, srv.Orders(id), 3)
}

func TestPlaceBatchOrder_StartsFromServerNonce(t *testing.T) {
	srv := zextest.NewServer(zextest.WithStrictNonce())
	defer srv.Close()
	c := newTestClient(t, srv, true)
	ctx := context.Background()
	require.NoError(t, c.RegisterUserID(ctx))
	id, _ := c.UserID()
	srv.SetNonce(id, 17)

	results, err := c.PlaceBatchOrder(ctx, sampleOrders(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(17), results[0].Nonce)
	assert.Equal(t, uint64(18), results[1].Nonce)
	nonce, _ := c.Nonce()
	assert.Equal(t, uint64(19), nonce)
}

func TestPlaceBatchOrder_EmptyBatch(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)
	c.SetUserID(1)

	results, err := c.PlaceBatchOrder(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, srv.RequestsTo("/v1/user/nonce"))
	assert.Empty(t, srv.RequestsTo("/v1/order"))
	_, ok := c.Nonce()
	assert.False(t, ok)
}

func TestPlaceBatchOrder_InvalidOrder(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)
	c.SetUserID(1)

	orders := sampleOrders(2)
	orders[1].Volume = 0
	_, err := c.PlaceBatchOrder(context.Background(), orders)
	assert.Error(t, err)
	assert.Empty(t, srv.Requests())
}

func TestCancelBatchOrder(t *testing.T) {
	for _, testnet := range []bool{true, false} {
		t.Run(types.NetworkFromTestnet(testnet).String(), func(t *testing.T) {
			srv := zextest.NewServer(zextest.WithNetwork(types.NetworkFromTestnet(testnet)))
			defer srv.Close()
			c := newTestClient(t, srv, testnet)
			ctx := context.Background()
			require.NoError(t, c.RegisterUserID(ctx))
			id, _ := c.UserID()

			placed, err := c.PlaceBatchOrder(ctx, sampleOrders(2))
			require.NoError(t, err)
			require.Len(t, srv.Orders(id), 2)

			require.NoError(t, c.CancelPlacedOrders(ctx, placed[:1]))
			remaining := srv.Orders(id)
			require.Len(t, remaining, 1)
			assert.Equal(t, placed[1].Nonce, remaining[0].Nonce)
		})
	}
}

func TestCancelBatchOrder_EmptyIsNoop(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)
	c.SetUserID(1)

	require.NoError(t, c.CancelBatchOrder(context.Background(), []types.CancelOrderRequest{}))
	assert.Empty(t, srv.Requests())
}

func TestWithdrawAndDeposit(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)
	ctx := context.Background()
	require.NoError(t, c.RegisterUserID(ctx))
	id, _ := c.UserID()
	srv.SetNonce(id, 5)

	req := types.WithdrawRequest{
		TokenChain:  "HOL",
		TokenName:   "zUSDT",
		Amount:      "3.25",
		Destination: "0x6c1f1c5a1F2c7d7b2B5f6E1e0A2d2C6b5F4a3E21",
	}
	require.NoError(t, c.Withdraw(ctx, req))
	nonce, _ := c.Nonce()
	assert.Equal(t, uint64(5), nonce)

	withdraws, err := c.UserWithdraws(ctx, "HOL")
	require.NoError(t, err)
	require.Len(t, withdraws, 1)
	assert.Equal(t, "3.25", withdraws[0].Amount)

	bad := req
	bad.TokenChain = "TOOLONG"
	assert.Error(t, c.Withdraw(ctx, bad))

	require.NoError(t, c.Deposit(ctx, []byte{signing.Version, signing.CommandDeposit, 0x00}))
	assert.Error(t, c.Deposit(ctx, nil))
	assert.Len(t, srv.RequestsTo("/v1/deposit"), 1)
}

func TestMarketQueries(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	srv.SetPrice("BTCzUSDT", 30123.5)
	c := newTestClient(t, srv, true)
	ctx := context.Background()

	ts, err := c.ServerTime(ctx)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().UnixMilli(), ts, float64(time.Minute.Milliseconds()))

	ok, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	price, err := c.Price(ctx, "BTCzUSDT")
	require.NoError(t, err)
	assert.Equal(t, 30123.5, price)

	ticker, err := c.Ticker(ctx, "BTCzUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCzUSDT", ticker["symbol"])

	depth, err := c.Depth(ctx, "BTCzUSDT", 10)
	require.NoError(t, err)
	assert.Contains(t, depth, "bids")

	info, err := c.ExchangeInfo(ctx, "BTCzUSDT")
	require.NoError(t, err)
	assert.Contains(t, info, "symbols")
}

func TestAPIError_ValidationDetail(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)

	_, err := c.Price(context.Background(), "UNKNOWN")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.True(t, apiErr.IsValidationError())
	assert.Contains(t, apiErr.Detail, "UNKNOWN")
}

func TestUserData(t *testing.T) {
	srv := zextest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv, true)
	ctx := context.Background()
	require.NoError(t, c.RegisterUserID(ctx))
	id, _ := c.UserID()

	srv.AddTrade(id, types.TradeInfo{ID: 1, Name: "buy", BaseToken: "BTC", QuoteToken: "zUSDT", Amount: 0.1, Price: 30000})
	srv.SetAssets(id, []types.Asset{{Asset: "zUSDT", Free: "100", Locked: "0"}})
	srv.AddTransfer(id, types.Transfer{Chain: "HOL", Token: "zUSDT", Amount: 100})

	trades, err := c.UserTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 30000.0, trades[0].Price)

	assets, err := c.UserAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "100", assets[0].Free)

	transfers, err := c.UserTransfers(ctx)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)

	orders, err := c.UserOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	for _, r := range srv.RequestsTo("/v1/user/trades") {
		assert.Equal(t, "1", r.Query.Get("id"))
	}
}

func TestTransportErrorIsNotAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := ts.URL
	ts.Close()

	c := New(nil, true, testOptions(host)...)
	_, err := c.ServerTime(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
