package websocket

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zex-finance/gozex/zex/types"
)

// ExecutionReportStream 执行回报数据流后缀
const ExecutionReportStream = "@executionReport"

//go:embed schema/execution_report.json
var executionReportSchemaJSON string

var executionReportSchema = jsonschema.MustCompileString("execution_report.json", executionReportSchemaJSON)

// ExecutionReportCallback 执行回报处理函数
type ExecutionReportCallback = Callback[types.ExecutionReport]

// 数量与价格字段按字符串解码，时间与 ID 字段按整数解码；服务端两种编码都可能出现
var (
	reportStringFields  = []string{"q", "p", "l", "z", "L"}
	reportIntegerFields = []string{"E", "T", "t", "i", "N"}
)

// ParseExecutionReport 解析执行回报帧
// 支持 {"stream","data"} 包装；订阅确认和其他事件类型返回 nil
// 内容不符合预期的帧返回 ErrMalformedFrame
func ParseExecutionReport(frame []byte) (*types.ExecutionReport, error) {
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid json frame: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected frame type %T", ErrMalformedFrame, doc)
	}

	// 订阅确认：{"result":null,"id":1}
	if _, ok := obj["id"]; ok {
		if _, ok := obj["result"]; ok {
			return nil, nil
		}
	}
	if data, ok := obj["data"]; ok {
		if _, ok := obj["stream"]; ok {
			if obj, ok = data.(map[string]any); !ok {
				return nil, fmt.Errorf("%w: unexpected stream data type %T", ErrMalformedFrame, data)
			}
		}
	}
	if e, ok := obj["e"]; ok && e != "executionReport" {
		return nil, nil
	}

	if err := executionReportSchema.Validate(obj); err != nil {
		return nil, fmt.Errorf("%w: invalid execution report: %v", ErrMalformedFrame, err)
	}
	raw, err := json.Marshal(normalizeReport(obj))
	if err != nil {
		return nil, err
	}
	var report types.ExecutionReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("%w: decoding execution report: %v", ErrMalformedFrame, err)
	}
	return &report, nil
}

// normalizeReport 把数字形式的数量转为字符串，把小数形式的时间戳截断为整数
func normalizeReport(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, k := range reportStringFields {
		if n, ok := out[k].(json.Number); ok {
			out[k] = n.String()
		}
	}
	for _, k := range reportIntegerFields {
		n, ok := out[k].(json.Number)
		if !ok || !strings.ContainsAny(n.String(), ".eE") {
			continue
		}
		if f, err := n.Float64(); err == nil {
			out[k] = json.Number(strconv.FormatInt(int64(f), 10))
		}
	}
	return out
}

// NewExecutionReportSocket 创建执行回报数据流
func NewExecutionReportSocket(client UserClient, callback ExecutionReportCallback, opts ...Option) *Socket[types.ExecutionReport] {
	return NewSocket(client, ExecutionReportStream, ParseExecutionReport, callback, opts...)
}

// SocketManager 为同一个客户端创建各类数据流
type SocketManager struct {
	client UserClient
	opts   []Option
}

// NewSocketManager 创建数据流管理器，opts 作用于其创建的所有数据流
func NewSocketManager(client UserClient, opts ...Option) *SocketManager {
	return &SocketManager{client: client, opts: opts}
}

// ExecutionReportSocket 执行回报数据流
func (m *SocketManager) ExecutionReportSocket(callback ExecutionReportCallback, opts ...Option) *Socket[types.ExecutionReport] {
	all := append(append([]Option(nil), m.opts...), opts...)
	return NewExecutionReportSocket(m.client, callback, all...)
}

// ExecutionReportChannel 把执行回报转发到 channel 的回调，ctx 结束时返回其错误
func ExecutionReportChannel(ch chan<- types.ExecutionReport) ExecutionReportCallback {
	return func(ctx context.Context, r types.ExecutionReport) error {
		select {
		case ch <- r:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
