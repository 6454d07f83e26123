package router

import (
	"fmt"
	"strings"

	"github.com/stockhold/internal/cache"
	"github.com/stockhold/internal/config"
	publichandlers "github.com/stockhold/internal/http/handlers/public"
	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sh"
	}
	checkoutRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:checkout", redisPrefix),
		WindowSeconds: cfg.Security.CheckoutRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.CheckoutRateLimit.MaxRequests,
		Message:       "too many checkout attempts",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 库存可售量
		stock := apiV1.Group("/stock")
		{
			stock.GET("/:sku/availability", publicHandler.GetAvailability)
			stock.POST("/availability/batch", publicHandler.BatchAvailability)
		}

		// 结账会话
		checkout := apiV1.Group("/checkout")
		{
			checkout.POST("/sessions", RateLimitMiddleware(cache.Client(), checkoutRule, KeyByIP), publicHandler.StartCheckout)
			checkout.GET("/sessions/:session_no", publicHandler.GetSession)
			checkout.POST("/sessions/:session_no/cancel", publicHandler.CancelSession)
		}

		// 支付回调
		payments := apiV1.Group("/payments")
		{
			payments.POST("/webhook", publicHandler.PaymentWebhook)
		}

		// 运维接口
		ops := apiV1.Group("/ops")
		{
			ops.PUT("/stock-items", publicHandler.UpsertStockItem)
			ops.POST("/stock/:sku/repair", publicHandler.RepairStock)
		}
	}

	return r
}
