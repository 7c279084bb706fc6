package signing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/zex-finance/gozex/zex/types"
)

var errShortTransaction = errors.New("transaction too short")

// DecodedOrder 解析出的下单交易
type DecodedOrder struct {
	Side       types.OrderSide
	BaseToken  string
	QuoteToken string
	Volume     decimal.Decimal
	Price      decimal.Decimal
	Epoch      uint32
	Nonce      uint64
	UserID     uint64
	Signature  []byte
}

// DecodedCancel 解析出的撤单交易
type DecodedCancel struct {
	UserID     uint64
	OrderNonce uint64
	Signature  []byte
}

// reader 大端二进制读取器
type reader struct {
	buf []byte
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = errShortTransaction
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) readByte() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) readUint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) readUint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// ParseRegisterTransaction 从注册交易中取出公钥和签名（两种网络格式均可）
func ParseRegisterTransaction(tx []byte) (publicKey, signature []byte, err error) {
	switch len(tx) {
	case 3 + PublicKeyLen + SignatureLen: // dev：带签名类型
		publicKey = tx[3 : 3+PublicKeyLen]
	case 2 + PublicKeyLen + SignatureLen:
		publicKey = tx[2 : 2+PublicKeyLen]
	default:
		return nil, nil, fmt.Errorf("unexpected register transaction length %d", len(tx))
	}
	if tx[0] != Version || tx[1] != CommandRegister {
		return nil, nil, errors.New("not a register transaction")
	}
	return publicKey, tx[len(tx)-SignatureLen:], nil
}

// Command 返回交易的命令字节
func Command(tx []byte) (byte, error) {
	if len(tx) < 2 {
		return 0, errShortTransaction
	}
	return tx[1], nil
}

// DecodeOrder 解析下单交易
func DecodeOrder(network types.Network, tx []byte) (*DecodedOrder, error) {
	r := &reader{buf: tx}
	if r.readByte() != Version {
		return nil, errors.New("unsupported transaction version")
	}
	out := &DecodedOrder{}
	switch r.readByte() {
	case CommandBuy:
		out.Side = types.OrderSideBuy
	case CommandSell:
		out.Side = types.OrderSideSell
	default:
		return nil, errors.New("not an order transaction")
	}
	if network == types.Testnet {
		r.readByte() // 签名类型
	}
	baseLen, quoteLen := int(r.readByte()), int(r.readByte())
	out.BaseToken = string(r.next(baseLen))
	out.QuoteToken = string(r.next(quoteLen))

	if network == types.Testnet {
		vm := r.readUint64()
		ve := int8(r.readByte())
		pm := r.readUint64()
		pe := int8(r.readByte())
		out.Volume = FromScientific(vm, ve)
		out.Price = FromScientific(pm, pe)
		out.Epoch = r.readUint32()
		out.Nonce = r.readUint64()
	} else {
		volume := math.Float64frombits(r.readUint64())
		price := math.Float64frombits(r.readUint64())
		if !finite(volume) || !finite(price) {
			return nil, fmt.Errorf("non-finite volume %v or price %v in order transaction", volume, price)
		}
		out.Volume = decimal.NewFromFloat(volume)
		out.Price = decimal.NewFromFloat(price)
		out.Epoch = r.readUint32()
		out.Nonce = uint64(r.readUint32())
	}
	out.UserID = r.readUint64()
	out.Signature = r.next(SignatureLen)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%d trailing bytes in order transaction", len(r.buf))
	}
	return out, nil
}

// DecodeCancel 解析撤单交易
func DecodeCancel(network types.Network, tx []byte) (*DecodedCancel, error) {
	if len(tx) < 2 || tx[0] != Version || tx[1] != CommandCancel {
		return nil, errors.New("not a cancel transaction")
	}
	out := &DecodedCancel{}
	if network == types.Testnet {
		r := &reader{buf: tx[3:]}
		out.UserID = r.readUint64()
		out.OrderNonce = r.readUint64()
		out.Signature = r.next(SignatureLen)
		if r.err != nil {
			return nil, r.err
		}
		return out, nil
	}

	// 主网：ver | 'c' | slice | u64 userID | sig，slice 以订单 nonce（u32）结尾
	if len(tx) < 2+4+8+SignatureLen {
		return nil, errShortTransaction
	}
	tail := tx[len(tx)-SignatureLen-8:]
	out.UserID = binary.BigEndian.Uint64(tail[:8])
	out.Signature = tail[8:]
	slice := tx[2 : len(tx)-SignatureLen-8]
	out.OrderNonce = uint64(binary.BigEndian.Uint32(slice[len(slice)-4:]))
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
