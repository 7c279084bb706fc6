package metrics

import "expvar"

// 网关与执行回报计数，通过 /debug/vars 暴露
var (
	OrdersPlaced     = expvar.NewInt("zex_orders_placed")
	OrdersCanceled   = expvar.NewInt("zex_orders_canceled")
	GatewayErrors    = expvar.NewInt("zex_gateway_errors")
	ExecutionReports = expvar.NewMap("zex_execution_reports")
	JournalErrors    = expvar.NewInt("zex_journal_errors")
)
