// Package types 定义 Zex 交易所 SDK 的请求/响应数据模型
package types

import "fmt"

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid 检查订单方向是否合法
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Network 交易所部署网络
type Network int

const (
	Mainnet Network = iota
	Testnet
)

// NetworkFromTestnet 根据 testnet 开关选择网络
func NetworkFromTestnet(testnet bool) Network {
	if testnet {
		return Testnet
	}
	return Mainnet
}

func (n Network) String() string {
	switch n {
	case Testnet:
		return "testnet"
	case Mainnet:
		return "mainnet"
	default:
		return fmt.Sprintf("network(%d)", int(n))
	}
}

// SignatureType 交易签名算法
type SignatureType uint8

const (
	SignatureTypeSecp256k1 SignatureType = 1
	SignatureTypeEd25519   SignatureType = 2
)
