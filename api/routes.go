package api

import (
	"usagehub/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, c *AppContainer, h *Handlers) {
	api := router.Group("/api")
	api.Use(middleware.RateLimitMiddleware(c.RateLimiter))

	registerUsageRoutes(api.Group("/newapi", EnsurePricing(c.PricingCache)), h)
	registerLegacyRoutes(api, h)
	registerPriceRoutes(api.Group("/prices"), h)
}

// registerUsageRoutes 用量看板，每个请求前确保定价快照有效
func registerUsageRoutes(g *gin.RouterGroup, h *Handlers) {
	g.GET("/overview", h.Usage.Overview)
	g.GET("/daily-overview", h.Usage.DailyOverview)
	g.GET("/leaderboard", h.Usage.Leaderboard)
	g.GET("/trend", h.Usage.Trend)
	g.GET("/model-distribution", h.Usage.ModelDistribution)
	g.GET("/available-dates", h.Usage.AvailableDates)
	g.GET("/tokens", h.Usage.Tokens)
	g.GET("/model-trend", h.Usage.ModelTrend)

	g.GET("/user-trend", h.Usage.UserTrend)
	g.GET("/user-overview", h.Usage.UserOverview)
	g.GET("/user-daily-overview", h.Usage.UserDailyOverview)
	g.GET("/user-hourly", h.Usage.UserHourly)
	g.GET("/verify-token", h.Usage.VerifyToken)

	if h.Report != nil {
		g.GET("/test-notify", h.Report.TestNotify)
	}
}

// registerLegacyRoutes 旧版令牌统计
func registerLegacyRoutes(g *gin.RouterGroup, h *Handlers) {
	g.GET("/tokens", h.Usage.LegacyTokens)
	g.GET("/stats", h.Usage.LegacyStats)
	g.GET("/trend", h.Usage.LegacyTrend)
	g.GET("/models", h.Usage.LegacyModels)
}

func registerPriceRoutes(g *gin.RouterGroup, h *Handlers) {
	g.GET("", h.Prices.Get)
	g.PUT("", h.Prices.Update)
	g.POST("/bulk", h.Prices.Bulk)
	g.GET("/remote", h.Prices.Remote)
	g.POST("/sync", h.Prices.Sync)
}
