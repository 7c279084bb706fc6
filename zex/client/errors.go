package client

import (
	"errors"
	"fmt"

	sdkhttp "github.com/zex-finance/gozex/pkg/sdk/http"
)

var (
	// ErrNotRegistered 需要 user id 的操作在注册前被调用
	ErrNotRegistered = errors.New("the zex client is not registered")
	// ErrRegisterTimeout 注册后在超时内没有查到 user id
	ErrRegisterTimeout = errors.New("registering user id timed out")
)

// APIError 交易所返回的非 2xx 响应
type APIError struct {
	Path       string
	StatusCode int
	// Detail 响应中的 detail 字段（422 校验错误），没有时为响应体
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zex api %s: status %d: %s", e.Path, e.StatusCode, e.Detail)
}

// IsValidationError 是否为 422 参数校验错误
func (e *APIError) IsValidationError() bool {
	return e.StatusCode == 422
}

// toAPIError 把 HTTP 层错误转换为 *APIError；传输错误原样返回
func toAPIError(path string, err error) error {
	if err == nil {
		return nil
	}
	var se *sdkhttp.StatusError
	if errors.As(err, &se) {
		return &APIError{Path: path, StatusCode: se.StatusCode, Detail: se.Detail}
	}
	return fmt.Errorf("zex api %s: %w", path, err)
}
