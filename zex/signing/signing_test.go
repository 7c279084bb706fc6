package signing

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zex-finance/gozex/zex/types"
)

const testAPIKey = "e68a96346678e8131622d453ed80b6e1a5ccf19f05727f8a4d31281ae6e82458"

var fixedNow = time.Unix(1700000000, 0)

func fixedClock() time.Time { return fixedNow }

func btcBuy() types.PlaceOrderRequest {
	return types.PlaceOrderRequest{
		BaseToken:  "BTC",
		QuoteToken: "zUSDT",
		Side:       types.OrderSideBuy,
		Volume:     0.0001,
		Price:      30000,
	}
}

func TestToScientific(t *testing.T) {
	tests := []struct {
		in       string
		mantissa uint64
		exponent int8
	}{
		{"0.0001", 1, -4},
		{"30000", 3, 4},
		{"0.0001711231", 1711231, -10},
		{"12.5000", 125, -1},
		{"0", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, e, err := ToScientific(decimal.RequireFromString(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.mantissa, m)
			assert.Equal(t, tt.exponent, e)
		})
	}

	_, _, err := ToScientific(decimal.RequireFromString("-1"))
	assert.Error(t, err)
	_, _, err = ToScientific(decimal.New(1, 200))
	assert.Error(t, err)
	_, _, err = ToScientific(decimal.New(1, -129))
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "30000.0", FormatDecimal(FromScientific(3, 4)))
	assert.Equal(t, "0.0001", FormatDecimal(FromScientific(1, -4)))
	assert.Equal(t, "0.0001711231", FormatDecimal(FromScientific(1711231, -10)))

	assert.Equal(t, "30000.0", FormatFloat(30000))
	assert.Equal(t, "0.0001", FormatFloat(0.0001))
	assert.Equal(t, "0.00001", FormatFloat(1e-05))
	assert.Equal(t, "31000.5", FormatFloat(31000.5))
}

func TestNewVisitor_SelectsByNetwork(t *testing.T) {
	dev, err := NewVisitor(types.Testnet, testAPIKey)
	require.NoError(t, err)
	assert.IsType(t, &DevVisitor{}, dev)

	main, err := NewVisitor(types.Mainnet, testAPIKey)
	require.NoError(t, err)
	assert.IsType(t, &MainVisitor{}, main)

	assert.Equal(t, dev.PublicKey(), main.PublicKey())
	assert.Len(t, dev.PublicKey(), PublicKeyLen)
}

func TestNewVisitor_EmptyKeyGenerates(t *testing.T) {
	a, err := NewDevVisitor("")
	require.NoError(t, err)
	b, err := NewDevVisitor("")
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), b.PublicKey())

	_, err = NewDevVisitor("not-hex")
	assert.Error(t, err)
}

func TestRegisterTransaction(t *testing.T) {
	dev, err := NewDevVisitor(testAPIKey)
	require.NoError(t, err)
	tx, err := dev.RegisterTransaction()
	require.NoError(t, err)
	require.Len(t, tx, 3+PublicKeyLen+SignatureLen)
	assert.Equal(t, []byte{Version, CommandRegister, byte(types.SignatureTypeSecp256k1)}, tx[:3])

	pub, sig, err := ParseRegisterTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, dev.PublicKey(), pub)
	assert.True(t, VerifyMessage(pub, RegisterMessage(pub), sig))

	main, err := NewMainVisitor(testAPIKey)
	require.NoError(t, err)
	tx, err = main.RegisterTransaction()
	require.NoError(t, err)
	require.Len(t, tx, 2+PublicKeyLen+SignatureLen)
	pub, sig, err = ParseRegisterTransaction(tx)
	require.NoError(t, err)
	assert.True(t, VerifyMessage(pub, RegisterMessage(pub), sig))
}

func TestDevVisitor_PlaceOrderTransaction(t *testing.T) {
	v, err := NewDevVisitor(testAPIKey, WithClock(fixedClock))
	require.NoError(t, err)

	tx, err := v.PlaceOrderTransaction(btcBuy(), 5, 9)
	require.NoError(t, err)

	pairLen := len("BTCzUSDT")
	require.Len(t, tx, 5+pairLen+9+9+4+8+8+SignatureLen)
	assert.Equal(t, []byte{Version, CommandBuy, 1, 3, 5}, tx[:5])
	assert.Equal(t, "BTCzUSDT", string(tx[5:5+pairLen]))

	body := tx[5+pairLen:]
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(body[0:8]))
	assert.Equal(t, int8(-4), int8(body[8]))
	assert.Equal(t, uint64(3), binary.BigEndian.Uint64(body[9:17]))
	assert.Equal(t, int8(4), int8(body[17]))
	assert.Equal(t, uint32(1700000000), binary.BigEndian.Uint32(body[18:22]))
	assert.Equal(t, uint64(5), binary.BigEndian.Uint64(body[22:30]))
	assert.Equal(t, uint64(9), binary.BigEndian.Uint64(body[30:38]))

	message := "v: 1\nname: buy\nbase token: BTC\nquote token: zUSDT\namount: 0.0001\nprice: 30000.0\nt: 1700000000\nnonce: 5\nuser_id: 9\n"
	assert.True(t, VerifyMessage(v.PublicKey(), message, tx[len(tx)-SignatureLen:]))

	again, err := v.PlaceOrderTransaction(btcBuy(), 5, 9)
	require.NoError(t, err)
	assert.Equal(t, tx, again, "signatures are deterministic")
}

func TestDevVisitor_RoundsVolume(t *testing.T) {
	v, err := NewDevVisitor(testAPIKey, WithClock(fixedClock))
	require.NoError(t, err)
	req := btcBuy()
	req.Side = types.OrderSideSell
	req.Volume = 0.0001711231

	tx, err := v.PlaceOrderTransaction(req, 1, 1)
	require.NoError(t, err)
	decoded, err := DecodeOrder(types.Testnet, tx)
	require.NoError(t, err)
	assert.Equal(t, types.OrderSideSell, decoded.Side)
	assert.Equal(t, "0.00017112", decoded.Volume.String())
	assert.Equal(t, "30000", decoded.Price.String())
}

func TestDevVisitor_RoundsExactBinaryValue(t *testing.T) {
	// 1.5e-08 的二进制值略小于 0.000000015，应向下舍入
	d, err := exactDecimal(1.5e-08)
	require.NoError(t, err)
	assert.Equal(t, "0.00000001", d.RoundBank(8).String())

	d, err = exactDecimal(0.1)
	require.NoError(t, err)
	assert.Equal(t, "0.1000000000000000055511151231257827021181583404541015625", d.String())

	_, err = exactDecimal(math.NaN())
	assert.Error(t, err)

	v, err := NewDevVisitor(testAPIKey, WithClock(fixedClock))
	require.NoError(t, err)
	req := btcBuy()
	req.Volume = 1.5e-08
	tx, err := v.PlaceOrderTransaction(req, 1, 1)
	require.NoError(t, err)
	decoded, err := DecodeOrder(types.Testnet, tx)
	require.NoError(t, err)
	assert.Equal(t, "0.00000001", decoded.Volume.String())
}

func TestDevVisitor_RejectsInvalidOrder(t *testing.T) {
	v, err := NewDevVisitor(testAPIKey)
	require.NoError(t, err)
	req := btcBuy()
	req.Volume = -1
	_, err = v.PlaceOrderTransaction(req, 0, 1)
	assert.Error(t, err)

	req = btcBuy()
	req.Volume = 1e-12
	_, err = v.PlaceOrderTransaction(req, 0, 1)
	assert.Error(t, err, "volume rounding to zero")
}

func TestDevVisitor_CancelOrderTransaction(t *testing.T) {
	v, err := NewDevVisitor(testAPIKey)
	require.NoError(t, err)
	tx, err := v.CancelOrderTransaction(types.CancelOrderRequest{OrderNonce: 12}, 9)
	require.NoError(t, err)
	require.Len(t, tx, 3+8+8+SignatureLen)
	assert.Equal(t, uint64(9), binary.BigEndian.Uint64(tx[3:11]))
	assert.Equal(t, uint64(12), binary.BigEndian.Uint64(tx[11:19]))

	message := "v: 1\nname: cancel\nuser_id: 9\norder_nonce: 12\n"
	assert.True(t, VerifyMessage(v.PublicKey(), message, tx[19:]))

	decoded, err := DecodeCancel(types.Testnet, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), decoded.OrderNonce)
	assert.Equal(t, uint64(9), decoded.UserID)
}

func TestMainVisitor_PlaceAndCancel(t *testing.T) {
	v, err := NewMainVisitor(testAPIKey, WithClock(fixedClock))
	require.NoError(t, err)

	order, err := v.PlaceOrderTransaction(btcBuy(), 7, 3)
	require.NoError(t, err)
	pairLen := len("BTCzUSDT")
	require.Len(t, order, 4+pairLen+8+8+4+4+8+SignatureLen)
	body := order[4+pairLen:]
	assert.Equal(t, 0.0001, math.Float64frombits(binary.BigEndian.Uint64(body[0:8])))
	assert.Equal(t, 30000.0, math.Float64frombits(binary.BigEndian.Uint64(body[8:16])))
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(body[20:24]))

	message := "v: 1\nname: buy\nbase token: BTC\nquote token: zUSDT\namount: 0.0001\nprice: 30000.0\nt: 1700000000\nnonce: 7\nuser_id: 3\n"
	assert.True(t, VerifyMessage(v.PublicKey(), message, order[len(order)-SignatureLen:]))

	cancel, err := v.CancelOrderTransaction(types.CancelOrderRequest{SignedOrder: order, OrderNonce: 7}, 3)
	require.NoError(t, err)
	slice := order[1 : len(order)-72]
	assert.Equal(t, slice, cancel[2:2+len(slice)])
	assert.Equal(t, uint64(3), binary.BigEndian.Uint64(cancel[2+len(slice):2+len(slice)+8]))

	cancelMessage := "v: 1\nname: cancel\nslice: " + common.Bytes2Hex(slice) + "\nuser_id: 3\n"
	assert.True(t, VerifyMessage(v.PublicKey(), cancelMessage, cancel[len(cancel)-SignatureLen:]))

	decoded, err := DecodeCancel(types.Mainnet, cancel)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), decoded.OrderNonce)

	_, err = v.CancelOrderTransaction(types.CancelOrderRequest{SignedOrder: []byte{1, 2, 3}}, 3)
	assert.Error(t, err)
}

func TestMainOrderSlice_MinimumLength(t *testing.T) {
	slice, err := MainOrderSlice(make([]byte, 73))
	require.NoError(t, err)
	assert.Empty(t, slice)

	_, err = MainOrderSlice(make([]byte, 72))
	assert.Error(t, err)
}

func TestDecodeOrder_RejectsNonFiniteMainnetValues(t *testing.T) {
	v, err := NewMainVisitor(testAPIKey, WithClock(fixedClock))
	require.NoError(t, err)
	order, err := v.PlaceOrderTransaction(btcBuy(), 7, 3)
	require.NoError(t, err)
	_, err = DecodeOrder(types.Mainnet, order)
	require.NoError(t, err)

	off := 4 + len("BTCzUSDT")
	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		tx := append([]byte(nil), order...)
		binary.BigEndian.PutUint64(tx[off:], math.Float64bits(bad))
		_, err := DecodeOrder(types.Mainnet, tx)
		assert.Error(t, err, "volume %v", bad)

		tx = append([]byte(nil), order...)
		binary.BigEndian.PutUint64(tx[off+8:], math.Float64bits(bad))
		_, err = DecodeOrder(types.Mainnet, tx)
		assert.Error(t, err, "price %v", bad)
	}
}

func TestMainVisitor_NonceOverflow(t *testing.T) {
	v, err := NewMainVisitor(testAPIKey)
	require.NoError(t, err)
	_, err = v.PlaceOrderTransaction(btcBuy(), math.MaxUint32+1, 1)
	assert.Error(t, err)
}

func TestWithdrawTransaction(t *testing.T) {
	req := types.WithdrawRequest{
		TokenChain:  "POL",
		TokenName:   "USDT",
		Amount:      "12.5",
		Destination: "0x00000000000000000000000000000000000000aa",
	}

	dev, err := NewDevVisitor(testAPIKey, WithClock(fixedClock))
	require.NoError(t, err)
	tx, err := dev.WithdrawTransaction(req, 4, 9)
	require.NoError(t, err)
	require.Len(t, tx, 4+3+4+8+20+4+4+8+PublicKeyLen+SignatureLen)
	// 测试网提现的签名类型在命令字节之前
	assert.Equal(t, []byte{Version, byte(types.SignatureTypeSecp256k1), CommandWithdraw, 4}, tx[:4])
	assert.Equal(t, "POLUSDT", string(tx[4:11]))
	assert.Equal(t, 12.5, math.Float64frombits(binary.BigEndian.Uint64(tx[11:19])))
	assert.Equal(t, byte(0xaa), tx[38])

	message := "v: 1\nname: withdraw\ntoken chain: POL\ntoken name: USDT\namount: 12.5\nto: 0x00000000000000000000000000000000000000aa\nt: 1700000000\nnonce: 4\nuser_id: 9\n"
	assert.True(t, VerifyMessage(dev.PublicKey(), message, tx[len(tx)-SignatureLen:]))

	main, err := NewMainVisitor(testAPIKey, WithClock(fixedClock))
	require.NoError(t, err)
	tx, err = main.WithdrawTransaction(req, 4, 9)
	require.NoError(t, err)
	mainMessage := message + "public: " + common.Bytes2Hex(main.PublicKey()) + "\n"
	assert.True(t, VerifyMessage(main.PublicKey(), mainMessage, tx[len(tx)-SignatureLen:]))

	bad := req
	bad.Destination = "0xzz"
	_, err = dev.WithdrawTransaction(bad, 4, 9)
	assert.Error(t, err)
}

func TestLatin1RoundTrip(t *testing.T) {
	tx := make([]byte, 256)
	for i := range tx {
		tx[i] = byte(i)
	}
	s := EncodeLatin1(tx)
	assert.Equal(t, 256, len([]rune(s)))

	back, err := DecodeLatin1(s)
	require.NoError(t, err)
	assert.Equal(t, tx, back)

	_, err = DecodeLatin1("ok中")
	assert.Error(t, err)

	payload := EncodePayload([]byte{1, 'b'}, []byte{0xff})
	assert.Equal(t, []string{"\x01b", "ÿ"}, payload)
}
