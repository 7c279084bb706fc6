package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const defaultUserAgent = "gozex/1.0"

// Client resty 封装，所有请求共享 BaseURL、超时和重试策略
type Client struct {
	client *resty.Client
	host   string
}

// Options HTTP 客户端选项
type Options struct {
	Timeout       time.Duration
	RetryCount    int
	RetryWait     time.Duration
	RetryMaxWait  time.Duration
	UserAgent     string
	HTTPTransport http.RoundTripper
}

// DefaultOptions 默认选项
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		RetryCount:   2,
		RetryWait:    500 * time.Millisecond,
		RetryMaxWait: 5 * time.Second,
		UserAgent:    defaultUserAgent,
	}
}

// NewClient 使用默认选项创建客户端
func NewClient(host string) *Client {
	return NewClientWithOptions(host, DefaultOptions())
}

// NewClientWithOptions 创建客户端
// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
func NewClientWithOptions(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("User-Agent", opts.UserAgent).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// 仅在限流和网关错误时重试；业务错误（4xx）直接返回
			if err != nil || resp == nil {
				return false
			}
			switch resp.StatusCode() {
			case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			}
			return false
		}).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 遇到 429 限流时使用 Retry-After 头
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return d, nil
					}
				}
			}
			return 0, nil
		})
	if opts.HTTPTransport != nil {
		client.SetTransport(opts.HTTPTransport)
	}

	return &Client{client: client, host: host}
}

// Host 返回 BaseURL
func (c *Client) Host() string {
	return c.host
}

type RequestOptions struct {
	Headers map[string]string
	Data    any
	Params  map[string]any
}

// 仅设置本次请求的 Header（不要再改 client 级 Header）
func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	return r
}

// DoRequest 发送请求；out 非空时把 2xx 响应体解码到 out
// 非 2xx 响应不视为错误，由调用方通过 ParseHTTPError 判断
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParamsFromValues(toValues(opt.Params))
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		return rc.Get(endpoint)
	case http.MethodPost:
		return rc.Post(endpoint)
	case http.MethodDelete:
		return rc.Delete(endpoint)
	case http.MethodPut:
		return rc.Put(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

func toValues(m map[string]any) map[string][]string {
	v := make(map[string][]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case []string:
			v[k] = t
		default:
			v[k] = []string{fmt.Sprint(val)}
		}
	}
	return v
}

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
	// Detail 响应体中的 detail 字段（没有时为整个响应体）
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Detail)
}

// ParseHTTPError 把传输错误和非 2xx 响应统一转成 error；2xx 返回 nil
func ParseHTTPError(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "http request failed")
	}
	if resp == nil {
		return errors.New("http request failed: empty response")
	}
	if resp.IsSuccess() {
		return nil
	}
	return errors.WithStack(newStatusError(resp))
}

func newStatusError(resp *resty.Response) *StatusError {
	b := resp.Body()
	se := &StatusError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       b,
		Detail:     strings.TrimSpace(string(b)),
	}
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(b, &body) == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			se.Detail = s
		} else {
			se.Detail = string(body.Detail)
		}
	}
	return se
}
