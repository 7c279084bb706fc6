package zextest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zex-finance/gozex/zex/signing"
	"github.com/zex-finance/gozex/zex/types"
)

const testKey = "e68a96346678e8131622d453ed80b6e1a5ccf19f05727f8a4d31281ae6e82458"

func post(t *testing.T, url string, txs ...[]byte) *http.Response {
	t.Helper()
	body, err := json.Marshal(signing.EncodePayload(txs...))
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_RegisterAndOrders(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	v, err := signing.NewDevVisitor(testKey)
	require.NoError(t, err)
	pubHex := common.Bytes2Hex(v.PublicKey())

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/user/id?public="+pubHex, nil))

	reg, err := v.RegisterTransaction()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/v1/register", reg).StatusCode)

	var idResp struct {
		ID uint64 `json:"id"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/user/id?public="+pubHex, &idResp))
	assert.Equal(t, uint64(1), idResp.ID)

	req := types.PlaceOrderRequest{BaseToken: "BTC", QuoteToken: "zUSDT", Side: types.OrderSideBuy, Volume: 0.5, Price: 30000}
	tx, err := v.PlaceOrderTransaction(req, 4, idResp.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/v1/order", tx).StatusCode)

	orders := srv.Orders(idResp.ID)
	require.Len(t, orders, 1)
	assert.Equal(t, uint64(4), orders[0].Nonce)
	assert.Equal(t, "buy", orders[0].Name)
	assert.Equal(t, uint64(5), srv.Nonce(idResp.ID))

	cancel, err := v.CancelOrderTransaction(types.CancelOrderRequest{SignedOrder: tx, OrderNonce: 4}, idResp.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/v1/order", cancel).StatusCode)
	assert.Empty(t, srv.Orders(idResp.ID))

	reqs := srv.RequestsTo("/v1/order")
	require.Len(t, reqs, 2)
	assert.Equal(t, [][]byte{tx}, reqs[0].Transactions)
}

func TestServer_RejectsBadRegisterSignature(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	v, err := signing.NewDevVisitor(testKey)
	require.NoError(t, err)
	reg, err := v.RegisterTransaction()
	require.NoError(t, err)
	reg[len(reg)-1] ^= 0xff

	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/v1/register", reg).StatusCode)
	_, ok := srv.UserID(v.PublicKey())
	assert.False(t, ok)
}

func TestServer_Withdraw(t *testing.T) {
	req := types.WithdrawRequest{
		TokenChain:  "BST",
		TokenName:   "zUSDT",
		Amount:      "12.5",
		Destination: "0x6c1f1c5a1F2c7d7b2B5f6E1e0A2d2C6b5F4a3E21",
	}
	for _, network := range []types.Network{types.Testnet, types.Mainnet} {
		t.Run(network.String(), func(t *testing.T) {
			srv := NewServer(WithNetwork(network))
			defer srv.Close()

			v, err := signing.NewVisitor(network, testKey)
			require.NoError(t, err)
			tx, err := v.WithdrawTransaction(req, 3, 9)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, post(t, srv.URL+"/v1/withdraw", tx).StatusCode)

			var got []types.Withdraw
			require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/user/withdraws?id=9&chain=BST", &got))
			require.Len(t, got, 1)
			assert.Equal(t, "zUSDT", got[0].TokenContract)
			assert.Equal(t, "12.5", got[0].Amount)
			assert.Equal(t, int64(9), got[0].UserID)
		})
	}
}

func TestServer_WebSocket(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(srv.WSURL()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"SUBSCRIBE","params":["7@executionReport"],"id":1}`)))
	stream, ok := srv.WaitForSubscription(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, "7@executionReport", stream)

	_, ack, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":null,"id":1}`, string(ack))

	require.NoError(t, srv.SendToClient(`{"hello":"world"}`))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(msg))
	assert.Len(t, srv.ClientMessages(), 1)

	srv.DisconnectClient()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
