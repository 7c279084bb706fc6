// Package signing 构建并签名 Zex 交易所的二进制交易
//
// 每个网络对应一个签名访问器（Visitor）：测试网使用 dev 格式，主网使用 main 格式。
// 两种格式都以 64 字节的 secp256k1 紧凑签名结尾，签名对象为 EIP-191 个人消息哈希。
package signing

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zex-finance/gozex/zex/types"
)

// Visitor 签名访问器，为不同网络生成对应格式的已签名交易
type Visitor interface {
	// Network 访问器对应的网络
	Network() types.Network
	// PublicKey 33 字节压缩公钥
	PublicKey() []byte
	RegisterTransaction() ([]byte, error)
	PlaceOrderTransaction(req types.PlaceOrderRequest, nonce uint64, userID uint64) ([]byte, error)
	CancelOrderTransaction(req types.CancelOrderRequest, userID uint64) ([]byte, error)
	WithdrawTransaction(req types.WithdrawRequest, nonce uint64, userID uint64) ([]byte, error)
}

// Option 访问器选项
type Option func(*signer)

// WithClock 设置时间源（交易中的 epoch 字段取自该时钟）
func WithClock(now func() time.Time) Option {
	return func(s *signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDigits 设置测试网下单时价格和数量保留的小数位
func WithDigits(priceDigits, volumeDigits int32) Option {
	return func(s *signer) {
		s.priceDigits = priceDigits
		s.volumeDigits = volumeDigits
	}
}

// signer 两种访问器共享的密钥与签名逻辑
type signer struct {
	privateKey   *ecdsa.PrivateKey
	publicKey    []byte
	now          func() time.Time
	priceDigits  int32
	volumeDigits int32
}

// newSigner 由十六进制私钥创建；apiKey 为空时生成新密钥
func newSigner(apiKey string, opts ...Option) (*signer, error) {
	var (
		privateKey *ecdsa.PrivateKey
		err        error
	)
	if apiKey == "" {
		privateKey, err = crypto.GenerateKey()
	} else {
		privateKey, err = PrivateKeyFromHex(apiKey)
	}
	if err != nil {
		return nil, fmt.Errorf("解析 API 密钥失败: %w", err)
	}

	s := &signer{
		privateKey:   privateKey,
		publicKey:    CompressedPublicKey(privateKey),
		now:          time.Now,
		priceDigits:  DefaultPriceDigits,
		volumeDigits: DefaultVolumeDigits,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *signer) PublicKey() []byte {
	out := make([]byte, len(s.publicKey))
	copy(out, s.publicKey)
	return out
}

func (s *signer) epoch() uint32 {
	return uint32(s.now().Unix())
}

// seal 对消息签名并把签名追加到交易末尾
func (s *signer) seal(tx []byte, message string) ([]byte, error) {
	sig, err := signMessage(s.privateKey, message)
	if err != nil {
		return nil, err
	}
	return append(tx, sig...), nil
}

func sideCommand(side types.OrderSide) byte {
	if side == types.OrderSideBuy {
		return CommandBuy
	}
	return CommandSell
}

func sideName(side types.OrderSide) string {
	if side == types.OrderSideBuy {
		return "buy"
	}
	return "sell"
}

// NewVisitor 根据网络创建签名访问器
func NewVisitor(network types.Network, apiKey string, opts ...Option) (Visitor, error) {
	switch network {
	case types.Testnet:
		return NewDevVisitor(apiKey, opts...)
	case types.Mainnet:
		return NewMainVisitor(apiKey, opts...)
	default:
		return nil, fmt.Errorf("unknown network: %s", network)
	}
}
