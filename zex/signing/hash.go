package signing

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TextHash 计算 EIP-191 个人消息哈希
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message)
func TextHash(message string) []byte {
	return accounts.TextHash([]byte(message))
}

// signMessage 对消息签名并返回 64 字节紧凑签名
func signMessage(privateKey *ecdsa.PrivateKey, message string) ([]byte, error) {
	// crypto.Sign 返回 65 字节：r(32) + s(32) + v(1)，交易只携带 r + s
	sig, err := crypto.Sign(TextHash(message), privateKey)
	if err != nil {
		return nil, fmt.Errorf("签名失败: %w", err)
	}
	return sig[:SignatureLen], nil
}

// VerifyMessage 校验紧凑签名是否由 publicKey 对 message 签出
func VerifyMessage(publicKey []byte, message string, signature []byte) bool {
	if len(signature) != SignatureLen {
		return false
	}
	return crypto.VerifySignature(publicKey, TextHash(message), signature)
}

// PrivateKeyFromHex 从十六进制字符串解析私钥（允许 0x 前缀）
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
}

// PrivateKeyToHex 私钥转十六进制（不带 0x）
func PrivateKeyToHex(privateKey *ecdsa.PrivateKey) string {
	return common.Bytes2Hex(crypto.FromECDSA(privateKey))
}

// CompressedPublicKey 返回 33 字节压缩公钥
func CompressedPublicKey(privateKey *ecdsa.PrivateKey) []byte {
	return crypto.CompressPubkey(&privateKey.PublicKey)
}

// RegisterMessage 注册交易签名的消息
func RegisterMessage(publicKey []byte) string {
	return "v: 1\n" +
		"name: register\n" +
		"public: " + common.Bytes2Hex(publicKey) + "\n"
}
