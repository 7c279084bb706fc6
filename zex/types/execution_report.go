package types

import "strconv"

// OrderStatus 订单状态（执行回报中的 X 字段）
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsFinal 是否为终态
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// ExecutionReport 执行回报（订单状态变化或成交通知）
type ExecutionReport struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	Side            string `json:"S"`
	OrderType       string `json:"o"`
	Quantity        string `json:"q"`
	Price           string `json:"p"`
	ExecutionType   string `json:"x"`
	OrderStatusRaw  string `json:"X"`
	RejectReason    string `json:"r,omitempty"`
	OrderID         int64  `json:"i"`
	Nonce           uint64 `json:"N,omitempty"`
	LastExecutedQty string `json:"l"`
	CumulativeQty   string `json:"z"`
	LastPrice       string `json:"L"`
	TransactionTime int64  `json:"T"`
	TradeID         int64  `json:"t"`
}

// OrderStatus 返回类型化的订单状态
func (r ExecutionReport) OrderStatus() OrderStatus {
	return OrderStatus(r.OrderStatusRaw)
}

// LastExecutedQuantity 解析最近一次成交数量，解析失败返回 0
func (r ExecutionReport) LastExecutedQuantity() float64 {
	v, _ := strconv.ParseFloat(r.LastExecutedQty, 64)
	return v
}
