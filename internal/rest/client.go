package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joya-checkout/internal/logger"

	"github.com/google/uuid"
)

var (
	ErrConfigInvalid = errors.New("rest config invalid")
	ErrRequestFailed = errors.New("rest request failed")
)

const (
	defaultTimeout  = 12 * time.Second
	maxResponseSize = 4 << 20
)

// Config 客户端配置
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 店铺后端 JSON 客户端：Bearer 鉴权 + Cookie 会话
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// RequestOption 单次请求选项
type RequestOption func(req *http.Request)

// WithIdempotencyKey 设置幂等键，为空时生成 uuid
func WithIdempotencyKey(key string) RequestOption {
	key = strings.TrimSpace(key)
	if key == "" {
		key = uuid.NewString()
	}
	return func(req *http.Request) {
		req.Header.Set("Idempotency-Key", key)
	}
}

// IdempotencyKey 由业务标识派生稳定的幂等键（uuid v5），同一组 parts 总是得到同一个键
func IdempotencyKey(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("joya:"+strings.Join(parts, "|"))).String()
}

// WithHeader 设置任意请求头
func WithHeader(name, value string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set(name, value)
	}
}

// NewClient 创建客户端
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: base_url is invalid", ErrConfigInvalid)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: cookie jar: %v", ErrConfigInvalid, err)
		}
		httpClient = &http.Client{Jar: jar}
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    httpClient,
		token:   strings.TrimSpace(cfg.Token),
	}, nil
}

// BaseURL 返回服务端根地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken 更新 Bearer 令牌
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// DoJSON 发送 JSON 请求并将 2xx 响应解码到 out（out 为 nil 时忽略响应体）
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) error {
	respBody, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{
			Category: CategoryDecode,
			Method:   method,
			Path:     path,
			Message:  "decode response failed",
			Err:      err,
		}
	}
	return nil
}

// Do 发送请求，非 2xx 响应转换为 *Error
func (c *Client) Do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debugw("rest_request_failed", "method", method, "path", path, "error", err)
		return nil, &Error{
			Category: CategoryNetwork,
			Method:   method,
			Path:     path,
			Message:  "network request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{
			Category: CategoryNetwork,
			Status:   resp.StatusCode,
			Method:   method,
			Path:     path,
			Message:  "read response failed",
			Err:      err,
		}
	}
	logger.Debugw("rest_request_done",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(started).Milliseconds(),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(method, path, resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *Client) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
