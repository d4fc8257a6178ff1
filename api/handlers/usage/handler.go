// Package usage 用量看板接口（/api/newapi）与旧版令牌统计接口（/api）
package usage

import (
	"errors"
	"strconv"

	response "usagehub/api/handlers/common"
	"usagehub/internal/analytics"
	"usagehub/internal/identity"
	"usagehub/internal/leaderboard"
	"usagehub/internal/usage"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidIdentity     = "Missing or invalid token/token_name"
	msgInvalidIdentityDate = "Missing or invalid token/token_name/date"
)

// Handler 用量接口处理器
type Handler struct {
	analytics   *analytics.Service
	leaderboard *leaderboard.Service
	resolver    *identity.Resolver
}

// NewHandler 创建处理器
func NewHandler(stats *analytics.Service, board *leaderboard.Service, resolver *identity.Resolver) *Handler {
	return &Handler{analytics: stats, leaderboard: board, resolver: resolver}
}

// Overview 全部历史汇总
// @Summary 全部历史的成本与用量汇总
// @Tags Usage
// @Produce json
// @Success 200 {object} analytics.Totals
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/overview [get]
func (h *Handler) Overview(c *gin.Context) {
	totals, err := h.analytics.Overview(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, totals)
}

// DailyOverview 单日汇总
// @Summary 单日成本与用量汇总
// @Tags Usage
// @Produce json
// @Param date query string true "日期 YYYY-MM-DD"
// @Success 200 {object} analytics.DailyOverview
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/daily-overview [get]
func (h *Handler) DailyOverview(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.BadRequest(c, "Missing date param")
		return
	}
	overview, err := h.analytics.DailyOverview(c.Request.Context(), date)
	if err != nil {
		response.Fail(c, err, usage.ErrInvalidDate)
		return
	}
	c.JSON(200, overview)
}

// Leaderboard 令牌排行榜
// @Summary 令牌排行榜（30 秒缓存）
// @Tags Usage
// @Produce json
// @Param date query string false "日期 YYYY-MM-DD，缺省为全部历史"
// @Param type query string false "cost | tokens | requests" default(cost)
// @Param limit query int false "返回条数，最大 100" default(20)
// @Success 200 {array} leaderboard.Item
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/leaderboard [get]
func (h *Handler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.leaderboard.Top(c.Request.Context(), c.Query("date"), c.DefaultQuery("type", "cost"), limit)
	if err != nil {
		response.Fail(c, err, usage.ErrInvalidDate)
		return
	}
	c.JSON(200, items)
}

// Trend 全局按天趋势
// @Summary 最近 N 天的按天趋势
// @Tags Usage
// @Produce json
// @Param days query int false "天数，最大 90" default(30)
// @Success 200 {array} analytics.TrendPoint
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/trend [get]
func (h *Handler) Trend(c *gin.Context) {
	days, _ := strconv.Atoi(c.Query("days"))
	points, err := h.analytics.Trend(c.Request.Context(), days)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, points)
}

// ModelDistribution 模型成本占比
// @Summary 模型成本占比（前 20）
// @Tags Usage
// @Produce json
// @Param date query string false "日期 YYYY-MM-DD，缺省为全部历史"
// @Success 200 {array} analytics.ModelDistribution
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/model-distribution [get]
func (h *Handler) ModelDistribution(c *gin.Context) {
	models, err := h.analytics.ModelDistribution(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Fail(c, err, usage.ErrInvalidDate)
		return
	}
	c.JSON(200, models)
}

// AvailableDates 有用量的日期
// @Summary 有用量的日期（降序）
// @Tags Usage
// @Produce json
// @Success 200 {array} string
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/available-dates [get]
func (h *Handler) AvailableDates(c *gin.Context) {
	dates, err := h.analytics.AvailableDates(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, dates)
}

// Tokens 令牌名列表
// @Summary 有消费记录的令牌名（升序）
// @Tags Usage
// @Produce json
// @Success 200 {array} string
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/tokens [get]
func (h *Handler) Tokens(c *gin.Context) {
	names, err := h.analytics.Tokens(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, names)
}

// UserTrend 个人按天趋势
// @Summary 单个令牌的按天趋势
// @Tags Usage
// @Produce json
// @Param token query string false "令牌密钥（可带 sk- 前缀）"
// @Param token_name query string false "令牌名，优先于 token"
// @Param days query int false "天数，最大 365；缺省为全部历史"
// @Success 200 {array} analytics.TrendPoint
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/user-trend [get]
func (h *Handler) UserTrend(c *gin.Context) {
	id, ok := h.identity(c, msgInvalidIdentity)
	if !ok {
		return
	}
	days := 0
	if raw := c.Query("days"); raw != "" {
		if days, _ = strconv.Atoi(raw); days <= 0 {
			days = analytics.DefaultTrendDays
		}
	}
	points, err := h.analytics.UserTrend(c.Request.Context(), id, days)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, points)
}

// UserOverview 个人累计汇总
// @Summary 单个令牌的累计汇总
// @Tags Usage
// @Produce json
// @Param token query string false "令牌密钥"
// @Param token_name query string false "令牌名"
// @Success 200 {object} analytics.UserOverview
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/user-overview [get]
func (h *Handler) UserOverview(c *gin.Context) {
	id, ok := h.identity(c, msgInvalidIdentity)
	if !ok {
		return
	}
	overview, err := h.analytics.UserOverview(c.Request.Context(), id)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, overview)
}

// UserDailyOverview 个人单日汇总
// @Summary 单个令牌的单日汇总与模型明细
// @Tags Usage
// @Produce json
// @Param token query string false "令牌密钥"
// @Param token_name query string false "令牌名"
// @Param date query string true "日期 YYYY-MM-DD"
// @Success 200 {object} analytics.UserDailyOverview
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/user-daily-overview [get]
func (h *Handler) UserDailyOverview(c *gin.Context) {
	id, date, ok := h.identityAndDate(c)
	if !ok {
		return
	}
	overview, err := h.analytics.UserDailyOverview(c.Request.Context(), id, date)
	if err != nil {
		response.Fail(c, err, usage.ErrInvalidDate)
		return
	}
	c.JSON(200, overview)
}

// UserHourly 个人单日 24 小时分布
// @Summary 单个令牌某天按小时的模型 tokens
// @Tags Usage
// @Produce json
// @Param token query string false "令牌密钥"
// @Param token_name query string false "令牌名"
// @Param date query string true "日期 YYYY-MM-DD"
// @Success 200 {object} analytics.HourlyChart
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/user-hourly [get]
func (h *Handler) UserHourly(c *gin.Context) {
	id, date, ok := h.identityAndDate(c)
	if !ok {
		return
	}
	chart, err := h.analytics.UserHourly(c.Request.Context(), id, date)
	if err != nil {
		response.Fail(c, err, usage.ErrInvalidDate)
		return
	}
	c.JSON(200, chart)
}

// VerifyTokenResponse 令牌校验结果
type VerifyTokenResponse struct {
	Valid     bool   `json:"valid"`
	HasUsage  bool   `json:"hasUsage"`
	TokenName string `json:"tokenName"`
	TokenID   *int   `json:"tokenId"`
}

// VerifyToken 校验令牌
// @Summary 校验令牌并返回展示名
// @Tags Usage
// @Produce json
// @Param token query string false "令牌密钥"
// @Param token_name query string false "令牌名"
// @Success 200 {object} VerifyTokenResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/verify-token [get]
func (h *Handler) VerifyToken(c *gin.Context) {
	id, ok := h.identity(c, msgInvalidIdentity)
	if !ok {
		return
	}
	c.JSON(200, VerifyTokenResponse{
		Valid:     true,
		HasUsage:  id.HasHistoricalUsage,
		TokenName: id.DisplayName,
		TokenID:   id.TokenID,
	})
}

// ModelTrend 全局模型趋势
// @Summary 按粒度分桶的模型 tokens 趋势
// @Tags Usage
// @Produce json
// @Param start query string true "起始日期 YYYY-MM-DD"
// @Param end query string true "结束日期 YYYY-MM-DD（包含）"
// @Param granularity query string false "hour | day | week | month" default(day)
// @Success 200 {object} analytics.ModelTrend
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/newapi/model-trend [get]
func (h *Handler) ModelTrend(c *gin.Context) {
	start, end := c.Query("start"), c.Query("end")
	if start == "" || end == "" {
		response.BadRequest(c, "Missing start or end date param")
		return
	}
	trend, err := h.analytics.ModelTrend(c.Request.Context(), start, end, analytics.ParseGranularity(c.Query("granularity")))
	if err != nil {
		response.Fail(c, err, usage.ErrInvalidDate)
		return
	}
	c.JSON(200, trend)
}

// identity 解析 token_name / token；未提供或未注册时写 400 并返回 false
func (h *Handler) identity(c *gin.Context, invalidMsg string) (identity.Identity, bool) {
	id, err := h.resolver.Resolve(c.Request.Context(), c.Query("token_name"), c.Query("token"))
	if err != nil {
		if errors.Is(err, identity.ErrMissingIdentity) || errors.Is(err, identity.ErrIdentityNotFound) {
			response.BadRequest(c, invalidMsg)
		} else {
			response.InternalError(c, err)
		}
		return identity.Identity{}, false
	}
	return id, true
}

func (h *Handler) identityAndDate(c *gin.Context) (identity.Identity, string, bool) {
	date := c.Query("date")
	id, ok := h.identity(c, msgInvalidIdentityDate)
	if !ok {
		return identity.Identity{}, "", false
	}
	if date == "" {
		response.BadRequest(c, msgInvalidIdentityDate)
		return identity.Identity{}, "", false
	}
	return id, date, true
}
