// Package wallet 从 BIP-39 助记词派生 Zex 签名私钥
package wallet

import (
	"fmt"
	"strings"

	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/zex-finance/gozex/zex/signing"
)

// DefaultDerivationPath 以太坊标准路径的第一个账户
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// DerivedKey 派生结果
type DerivedKey struct {
	// PrivateKeyHex 可直接作为客户端 api key 的十六进制私钥（不带 0x）
	PrivateKeyHex string
	// PublicKeyHex 33 字节压缩公钥，即交易所注册时使用的公钥
	PublicKeyHex string
	Address      string
	Path         string
}

// Derive 按路径派生私钥；路径为空时使用 DefaultDerivationPath
func Derive(mnemonic string, derivationPath string) (*DerivedKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	derivationPath = strings.TrimSpace(derivationPath)
	if mnemonic == "" {
		return nil, fmt.Errorf("mnemonic is required")
	}
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path: %w", err)
	}

	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive failed: %w", err)
	}

	pk, err := w.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("private key failed: %w", err)
	}

	return &DerivedKey{
		PrivateKeyHex: signing.PrivateKeyToHex(pk),
		PublicKeyHex:  fmt.Sprintf("%x", signing.CompressedPublicKey(pk)),
		Address:       strings.ToLower(acct.Address.Hex()),
		Path:          derivationPath,
	}, nil
}

// NewMnemonic 生成新的助记词（bits 为 128 或 256）
func NewMnemonic(bits int) (string, error) {
	if bits != 128 && bits != 256 {
		return "", fmt.Errorf("unsupported entropy size %d", bits)
	}
	entropy, err := hdwallet.NewEntropy(bits)
	if err != nil {
		return "", err
	}
	return hdwallet.NewMnemonicFromEntropy(entropy)
}
