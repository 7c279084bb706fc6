package signing

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zex-finance/gozex/zex/types"
)

// DevVisitor 测试网签名访问器
// 交易在命令字节之后携带签名类型（提现在命令字节之前）；价格与数量以（尾数, 指数）编码
type DevVisitor struct {
	*signer
	signatureType types.SignatureType
}

var _ Visitor = (*DevVisitor)(nil)

// NewDevVisitor 创建测试网签名访问器
func NewDevVisitor(apiKey string, opts ...Option) (*DevVisitor, error) {
	s, err := newSigner(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &DevVisitor{signer: s, signatureType: types.SignatureTypeSecp256k1}, nil
}

func (v *DevVisitor) Network() types.Network { return types.Testnet }

// RegisterTransaction ver | 'r' | sigtype | pubkey | sig
func (v *DevVisitor) RegisterTransaction() ([]byte, error) {
	tx := []byte{Version, CommandRegister, byte(v.signatureType)}
	tx = append(tx, v.publicKey...)
	return v.seal(tx, RegisterMessage(v.publicKey))
}

// PlaceOrderTransaction
// ver | cmd | sigtype | len(base) | len(quote) | pair | u64 vol | i8 volExp |
// u64 price | i8 priceExp | u32 epoch | u64 nonce | u64 userID | sig
func (v *DevVisitor) PlaceOrderTransaction(req types.PlaceOrderRequest, nonce uint64, userID uint64) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	volume, err := exactDecimal(req.Volume)
	if err != nil {
		return nil, err
	}
	price, err := exactDecimal(req.Price)
	if err != nil {
		return nil, err
	}
	volume = volume.RoundBank(v.volumeDigits)
	price = price.RoundBank(v.priceDigits)
	volumeMantissa, volumeExponent, err := ToScientific(volume)
	if err != nil {
		return nil, fmt.Errorf("编码数量失败: %w", err)
	}
	priceMantissa, priceExponent, err := ToScientific(price)
	if err != nil {
		return nil, fmt.Errorf("编码价格失败: %w", err)
	}
	if volumeMantissa == 0 || priceMantissa == 0 {
		return nil, fmt.Errorf("volume %v or price %v rounds to zero", req.Volume, req.Price)
	}
	epoch := v.epoch()

	tx := []byte{
		Version,
		sideCommand(req.Side),
		byte(v.signatureType),
		byte(len(req.BaseToken)),
		byte(len(req.QuoteToken)),
	}
	tx = append(tx, req.Symbol()...)
	tx = binary.BigEndian.AppendUint64(tx, volumeMantissa)
	tx = append(tx, byte(volumeExponent))
	tx = binary.BigEndian.AppendUint64(tx, priceMantissa)
	tx = append(tx, byte(priceExponent))
	tx = binary.BigEndian.AppendUint32(tx, epoch)
	tx = binary.BigEndian.AppendUint64(tx, nonce)
	tx = binary.BigEndian.AppendUint64(tx, userID)

	message := fmt.Sprintf(
		"v: 1\nname: %s\nbase token: %s\nquote token: %s\namount: %s\nprice: %s\nt: %d\nnonce: %d\nuser_id: %d\n",
		sideName(req.Side),
		req.BaseToken,
		req.QuoteToken,
		FormatDecimal(FromScientific(volumeMantissa, volumeExponent)),
		FormatDecimal(FromScientific(priceMantissa, priceExponent)),
		epoch,
		nonce,
		userID,
	)
	return v.seal(tx, message)
}

// CancelOrderTransaction ver | 'c' | sigtype | u64 userID | u64 orderNonce | sig
func (v *DevVisitor) CancelOrderTransaction(req types.CancelOrderRequest, userID uint64) ([]byte, error) {
	tx := []byte{Version, CommandCancel, byte(v.signatureType)}
	tx = binary.BigEndian.AppendUint64(tx, userID)
	tx = binary.BigEndian.AppendUint64(tx, req.OrderNonce)

	message := fmt.Sprintf("v: %d\nname: cancel\nuser_id: %d\norder_nonce: %d\n", Version, userID, req.OrderNonce)
	return v.seal(tx, message)
}

// WithdrawTransaction
// ver | sigtype | 'w' | len(token) | chain | token | f64 amount | dest | u32 epoch | u32 nonce | u64 userID | pubkey | sig
func (v *DevVisitor) WithdrawTransaction(req types.WithdrawRequest, nonce uint64, userID uint64) ([]byte, error) {
	tx, epoch, err := withdrawBody(req, nonce, []byte{Version, byte(v.signatureType), CommandWithdraw}, v.epoch)
	if err != nil {
		return nil, err
	}
	tx = binary.BigEndian.AppendUint64(tx, userID)
	tx = append(tx, v.publicKey...)

	message := withdrawMessage(req, epoch, nonce, userID)
	return v.seal(tx, message)
}

// withdrawBody 两种网络共用的提现交易主体（到 nonce 为止）
func withdrawBody(req types.WithdrawRequest, nonce uint64, header []byte, epochFn func() uint32) ([]byte, uint32, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}
	if !common.IsHexAddress(req.Destination) {
		return nil, 0, fmt.Errorf("invalid destination address: %s", req.Destination)
	}
	if nonce > math.MaxUint32 {
		return nil, 0, fmt.Errorf("nonce %d overflows uint32", nonce)
	}
	amount, err := req.AmountFloat()
	if err != nil {
		return nil, 0, err
	}
	epoch := epochFn()

	tx := append(header, byte(len(req.TokenName)))
	tx = append(tx, req.TokenChain...)
	tx = append(tx, req.TokenName...)
	tx = binary.BigEndian.AppendUint64(tx, math.Float64bits(amount))
	tx = append(tx, common.HexToAddress(req.Destination).Bytes()...)
	tx = binary.BigEndian.AppendUint32(tx, epoch)
	tx = binary.BigEndian.AppendUint32(tx, uint32(nonce))
	return tx, epoch, nil
}

func withdrawMessage(req types.WithdrawRequest, epoch uint32, nonce, userID uint64) string {
	return fmt.Sprintf(
		"v: 1\nname: withdraw\ntoken chain: %s\ntoken name: %s\namount: %s\nto: %s\nt: %d\nnonce: %d\nuser_id: %d\n",
		req.TokenChain, req.TokenName, req.Amount, req.Destination, epoch, nonce, userID,
	)
}
