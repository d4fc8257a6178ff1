package api

import (
	"context"
	"slices"
	"strings"
	"time"

	"usagehub/internal/logger"
	"usagehub/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 请求日志中间件
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.WithContext(c.Request.Context()).Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
	}
}

// CORS 跨域中间件
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowedOrigins := getEnvList("CORS_ALLOW_ORIGINS")
		origin := c.GetHeader("Origin")

		switch {
		case len(allowedOrigins) == 0:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowedOrigins, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		allowedHeaders := defaultIfEmpty(
			getEnvList("CORS_ALLOW_HEADERS"),
			[]string{"Content-Type", "Content-Length", "Accept", "Origin", "Cache-Control", "X-Requested-With", middleware.HeaderRequestID},
		)
		c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join(allowedHeaders, ", "))
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "600")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// PricingRefresher 定价规则缓存
type PricingRefresher interface {
	Refresh(ctx context.Context) error
}

// EnsurePricing 每个用量请求前确保定价快照在有效期内；刷新失败时沿用上一份快照
func EnsurePricing(cache PricingRefresher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cache.Refresh(c.Request.Context()); err != nil {
			logger.WithContext(c.Request.Context()).Warn("定价规则刷新失败，使用缓存快照", zap.Error(err))
		}
		c.Next()
	}
}
