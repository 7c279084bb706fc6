package websocket

import (
	"errors"
	"testing"
)

// TestParseExecutionReport 测试执行回报解析
func TestParseExecutionReport(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		skip      bool
		wantErr   bool
		malformed bool
		orderID   int64
		quantity  string
		eventTime int64
	}{
		{
			name:    "直接推送",
			frame:   `{"e":"executionReport","E":1700000000000,"s":"BTCzUSDT","S":"BUY","X":"NEW","i":12,"q":"0.1","p":"30000"}`,
			orderID: 12,
		},
		{
			name:    "stream 包装",
			frame:   `{"stream":"3@executionReport","data":{"e":"executionReport","s":"ETHzUSDT","S":"SELL","X":"FILLED","i":9,"l":"0.5"}}`,
			orderID: 9,
		},
		{name: "订阅确认", frame: `{"result":null,"id":1}`, skip: true},
		{name: "其他事件", frame: `{"e":"outboundAccountPosition","B":[]}`, skip: true},
		{
			name:      "数字数量与小数时间戳",
			frame:     `{"e":"executionReport","E":1717000000.5,"s":"BTCzUSDT","S":"BUY","X":"NEW","i":5,"q":0.5}`,
			orderID:   5,
			quantity:  "0.5",
			eventTime: 1717000000,
		},
		{name: "未知状态", frame: `{"e":"executionReport","s":"BTCzUSDT","S":"BUY","X":"PENDING_CANCEL","i":1}`, orderID: 1},
		{name: "缺少字段", frame: `{"e":"executionReport","s":"BTCzUSDT","S":"BUY","X":"NEW"}`, wantErr: true, malformed: true},
		{name: "字段类型错误", frame: `{"e":"executionReport","s":"BTCzUSDT","S":"BUY","X":"NEW","i":"x"}`, wantErr: true, malformed: true},
		{name: "非 JSON", frame: `not json`, wantErr: true},
		{name: "数组", frame: `[1,2]`, wantErr: true, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExecutionReport([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("期望错误，得到 %+v", got)
				}
				if errors.Is(err, ErrMalformedFrame) != tt.malformed {
					t.Errorf("ErrMalformedFrame 判断错误: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("解析失败: %v", err)
			}
			if tt.skip {
				if got != nil {
					t.Errorf("期望跳过，得到 %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("期望解析出执行回报")
			}
			if got.OrderID != tt.orderID {
				t.Errorf("期望订单 ID %d，得到 %d", tt.orderID, got.OrderID)
			}
			if tt.quantity != "" && got.Quantity != tt.quantity {
				t.Errorf("期望数量 %s，得到 %s", tt.quantity, got.Quantity)
			}
			if tt.eventTime != 0 && got.EventTime != tt.eventTime {
				t.Errorf("期望事件时间 %d，得到 %d", tt.eventTime, got.EventTime)
			}
		})
	}
}

// TestParseExecutionReport_LastExecutedQuantity 测试数量字段
func TestParseExecutionReport_LastExecutedQuantity(t *testing.T) {
	got, err := ParseExecutionReport([]byte(`{"e":"executionReport","s":"BTCzUSDT","S":"BUY","X":"PARTIALLY_FILLED","i":4,"l":"0.25","z":"0.5"}`))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if got.LastExecutedQuantity() != 0.25 {
		t.Errorf("期望成交数量 0.25，得到 %v", got.LastExecutedQuantity())
	}
	if got.OrderStatus().IsFinal() {
		t.Error("部分成交不是终态")
	}
}
