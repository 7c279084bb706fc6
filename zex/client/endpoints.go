package client

const (
	TestnetAPIHost = "https://api-dev.zex.finance"
	MainnetAPIHost = "https://api.zex.finance"
	TestnetWSHost  = "wss://api-dev.zex.finance"
	MainnetWSHost  = "wss://api.zex.finance"
)

// REST 路径
const (
	registerPath     = "/v1/register"
	userIDPath       = "/v1/user/id"
	userNoncePath    = "/v1/user/nonce"
	orderPath        = "/v1/order"
	withdrawPath     = "/v1/withdraw"
	depositPath      = "/v1/deposit"
	timePath         = "/v1/time"
	pingPath         = "/v1/ping"
	tickerPricePath  = "/v1/ticker/price"
	tickerPath       = "/v1/ticker"
	depthPath        = "/v1/depth"
	exchangeInfoPath = "/v1/exchangeInfo"
	userTradesPath   = "/v1/user/trades"
	userAssetsPath   = "/v1/asset/getUserAsset"
	userOrdersPath   = "/v1/user/orders"
	userTransferPath = "/v1/user/transfers"
	userWithdrawPath = "/v1/user/withdraws"
)

// DefaultAPIHost 按网络返回 REST 地址
func DefaultAPIHost(testnet bool) string {
	if testnet {
		return TestnetAPIHost
	}
	return MainnetAPIHost
}

// DefaultWSHost 按网络返回 WebSocket 地址
func DefaultWSHost(testnet bool) string {
	if testnet {
		return TestnetWSHost
	}
	return MainnetWSHost
}
