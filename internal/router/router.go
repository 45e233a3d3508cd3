package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/joya-checkout/internal/cache"
	"github.com/joya-checkout/internal/config"
	checkouthandlers "github.com/joya-checkout/internal/http/handlers/checkout"
	"github.com/joya-checkout/internal/http/response"
	"github.com/joya-checkout/internal/logger"
	"github.com/joya-checkout/internal/provider"
	"github.com/joya-checkout/internal/telemetry"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	checkoutHandler := checkouthandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "joya"
	}
	payRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:pay", redisPrefix),
		WindowSeconds: cfg.Security.PayRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.PayRateLimit.MaxRequests,
		Message:       "too many payment attempts, retry in %d seconds",
	}
	payLimit := RateLimitMiddleware(cache.Client(), payRule, KeyBySession)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/healthz", func(ctx *gin.Context) {
		sessions := 0
		if c != nil && c.CheckoutService != nil {
			sessions = c.CheckoutService.Count()
		}
		response.Success(ctx, gin.H{"status": "ok", "sessions": sessions})
	})
	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(telemetry.Handler()))
	}

	apiV1 := r.Group("/api/v1")
	{
		// 游客会话签发
		apiV1.POST("/checkout/session", checkoutHandler.IssueSession)

		checkout := apiV1.Group("/checkout")
		checkout.Use(SessionJWTMiddleware(cfg.JWT.SecretKey))
		{
			checkout.GET("/state", checkoutHandler.GetState)
			checkout.POST("/cart/items", checkoutHandler.AddCartItem)
			checkout.PUT("/cart/items", checkoutHandler.UpdateCartItem)
			checkout.DELETE("/cart/items", checkoutHandler.RemoveCartItem)
			checkout.DELETE("/cart", checkoutHandler.ClearCart)
			checkout.PUT("/cart/adjustments", checkoutHandler.SetAdjustments)
			checkout.POST("/cart/sync", checkoutHandler.SyncCart)
			checkout.POST("/draft", checkoutHandler.EnsureDraft)
			checkout.POST("/advance", payLimit, checkoutHandler.Advance)
			checkout.POST("/pay", payLimit, checkoutHandler.Pay)
			checkout.POST("/retry", checkoutHandler.Retry)
			checkout.POST("/reset", checkoutHandler.Reset)
			checkout.DELETE("/form", checkoutHandler.ClearForm)
		}
	}

	r.NoRoute(func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodOptions {
			ctx.Status(http.StatusNoContent)
			return
		}
		response.NotFound(ctx, "route not found")
	})

	return r
}
