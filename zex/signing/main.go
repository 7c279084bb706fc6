package signing

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zex-finance/gozex/zex/types"
)

// MainVisitor 主网签名访问器
// 价格与数量以 float64 编码，撤单交易引用原订单的字节切片
type MainVisitor struct {
	*signer
}

var _ Visitor = (*MainVisitor)(nil)

// NewMainVisitor 创建主网签名访问器
func NewMainVisitor(apiKey string, opts ...Option) (*MainVisitor, error) {
	s, err := newSigner(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &MainVisitor{signer: s}, nil
}

func (v *MainVisitor) Network() types.Network { return types.Mainnet }

// RegisterTransaction ver | 'r' | pubkey | sig
func (v *MainVisitor) RegisterTransaction() ([]byte, error) {
	tx := []byte{Version, CommandRegister}
	tx = append(tx, v.publicKey...)
	return v.seal(tx, RegisterMessage(v.publicKey))
}

// PlaceOrderTransaction
// ver | cmd | len(base) | len(quote) | pair | f64 volume | f64 price | u32 epoch | u32 nonce | u64 userID | sig
func (v *MainVisitor) PlaceOrderTransaction(req types.PlaceOrderRequest, nonce uint64, userID uint64) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if nonce > math.MaxUint32 {
		return nil, fmt.Errorf("nonce %d overflows uint32", nonce)
	}
	epoch := v.epoch()

	tx := []byte{
		Version,
		sideCommand(req.Side),
		byte(len(req.BaseToken)),
		byte(len(req.QuoteToken)),
	}
	tx = append(tx, req.Symbol()...)
	tx = binary.BigEndian.AppendUint64(tx, math.Float64bits(req.Volume))
	tx = binary.BigEndian.AppendUint64(tx, math.Float64bits(req.Price))
	tx = binary.BigEndian.AppendUint32(tx, epoch)
	tx = binary.BigEndian.AppendUint32(tx, uint32(nonce))
	tx = binary.BigEndian.AppendUint64(tx, userID)

	message := fmt.Sprintf(
		"v: 1\nname: %s\nbase token: %s\nquote token: %s\namount: %s\nprice: %s\nt: %d\nnonce: %d\nuser_id: %d\n",
		sideName(req.Side),
		req.BaseToken,
		req.QuoteToken,
		FormatFloat(req.Volume),
		FormatFloat(req.Price),
		epoch,
		nonce,
		userID,
	)
	return v.seal(tx, message)
}

// CancelOrderTransaction ver | 'c' | signedOrder[1:len-72] | u64 userID | sig
func (v *MainVisitor) CancelOrderTransaction(req types.CancelOrderRequest, userID uint64) ([]byte, error) {
	slice, err := MainOrderSlice(req.SignedOrder)
	if err != nil {
		return nil, err
	}

	tx := []byte{Version, CommandCancel}
	tx = append(tx, slice...)
	tx = binary.BigEndian.AppendUint64(tx, userID)

	message := fmt.Sprintf("v: %d\nname: cancel\nslice: %s\nuser_id: %d\n", Version, common.Bytes2Hex(slice), userID)
	return v.seal(tx, message)
}

// WithdrawTransaction
// ver | 'w' | len(token) | chain | token | f64 amount | dest | u32 epoch | u32 nonce | u64 userID | pubkey | sig
func (v *MainVisitor) WithdrawTransaction(req types.WithdrawRequest, nonce uint64, userID uint64) ([]byte, error) {
	tx, epoch, err := withdrawBody(req, nonce, []byte{Version, CommandWithdraw}, v.epoch)
	if err != nil {
		return nil, err
	}
	tx = binary.BigEndian.AppendUint64(tx, userID)
	tx = append(tx, v.publicKey...)

	message := withdrawMessage(req, epoch, nonce, userID) + "public: " + common.Bytes2Hex(v.publicKey) + "\n"
	return v.seal(tx, message)
}

// MainOrderSlice 主网撤单引用的订单切片：去掉版本字节以及尾部的 user_id 和签名
// 短于 73 字节的订单无法切片
func MainOrderSlice(signedOrder []byte) ([]byte, error) {
	if len(signedOrder) < 1+mainCancelTrailer {
		return nil, fmt.Errorf("signed order too short: %d bytes", len(signedOrder))
	}
	return signedOrder[1 : len(signedOrder)-mainCancelTrailer], nil
}
