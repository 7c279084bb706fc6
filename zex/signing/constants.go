package signing

const (
	// Version 交易格式版本
	Version byte = 1

	CommandRegister   byte = 'r'
	CommandBuy        byte = 'b'
	CommandSell       byte = 's'
	CommandCancel     byte = 'c'
	CommandWithdraw   byte = 'w'
	CommandDeposit    byte = 'd'
	CommandBTCDeposit byte = 'x'

	// SignatureLen 紧凑签名长度（r || s）
	SignatureLen = 64
	// PublicKeyLen 压缩公钥长度
	PublicKeyLen = 33

	// 测试网下单时价格/数量保留的小数位
	DefaultPriceDigits  = 8
	DefaultVolumeDigits = 8

	// mainCancelTrailer 主网撤单时从已签名订单尾部剥离的字节数（user_id + 签名）
	mainCancelTrailer = 8 + SignatureLen
)
