package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joya-checkout/internal/http/response"
	"github.com/joya-checkout/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	Message       string // 支持一个 %d 占位：需等待的秒数
}

func (r RateLimitRule) enabled() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

func (r RateLimitRule) key(raw string) string {
	if r.Prefix == "" {
		return raw
	}
	return r.Prefix + ":" + raw
}

func (r RateLimitRule) message(wait int) string {
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "too many requests, retry in %d seconds"
	}
	return fmt.Sprintf(msg, wait)
}

// retryAfter 计算需等待的秒数，TTL 不可用时退回整个窗口
func (r RateLimitRule) retryAfter(ttl int64) int {
	wait := int(ttl)
	if wait < 1 {
		wait = r.WindowSeconds
	}
	if wait < 1 {
		wait = 1
	}
	return wait
}

// 首次计数时设置过期，返回 {当前计数, 剩余 TTL}
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

func hitWindow(ctx context.Context, client *redis.Client, key string, window int) (int64, int64, error) {
	values, err := rateLimitScript.Run(ctx, client, []string{key}, window).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(values) < 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values", len(values))
	}
	return values[0], values[1], nil
}

// RateLimitMiddleware Redis 固定窗口限流；client 为 nil 或规则未配置时放行
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !rule.enabled() {
			c.Next()
			return
		}

		raw := ""
		if keyFunc != nil {
			raw = strings.TrimSpace(keyFunc(c))
		}
		if raw == "" {
			raw = c.ClientIP()
		}

		count, ttl, err := hitWindow(c.Request.Context(), client, rule.key(raw), rule.WindowSeconds)
		if err != nil {
			logger.Warnw("rate_limit_unavailable", "prefix", rule.Prefix, "error", err)
			response.Error(c, response.CodeUnavailable, "rate limit unavailable")
			c.Abort()
			return
		}
		if count > int64(rule.MaxRequests) {
			wait := rule.retryAfter(ttl)
			c.Header("Retry-After", strconv.Itoa(wait))
			response.Error(c, response.CodeTooManyRequests, rule.message(wait))
			c.Abort()
			return
		}

		c.Next()
	}
}

// KeyBySession 使用会话 ID 作为限流 key，未鉴权时退回 IP
func KeyBySession(c *gin.Context) string {
	if sid := strings.TrimSpace(c.GetString(sessionIDKey)); sid != "" {
		return "sid|" + sid
	}
	return c.ClientIP()
}
