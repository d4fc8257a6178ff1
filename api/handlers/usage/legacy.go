package usage

import (
	response "usagehub/api/handlers/common"
	"usagehub/internal/usage"

	"github.com/gin-gonic/gin"
)

// LegacyTokens 令牌名列表（旧版路径）
// @Summary 有消费记录的令牌名
// @Tags Legacy
// @Produce json
// @Success 200 {array} string
// @Failure 500 {object} response.ErrorResponse
// @Router /api/tokens [get]
func (h *Handler) LegacyTokens(c *gin.Context) {
	h.Tokens(c)
}

// LegacyStats 令牌区间统计
// @Summary 令牌在区间内按模型与渠道的用量
// @Tags Legacy
// @Produce json
// @Param token query string true "令牌名"
// @Param start query string true "起始时间，日期或日期时间"
// @Param end query string true "结束时间（包含）"
// @Success 200 {object} analytics.TokenStats
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/stats [get]
func (h *Handler) LegacyStats(c *gin.Context) {
	token, start, end := c.Query("token"), c.Query("start"), c.Query("end")
	if token == "" || start == "" || end == "" {
		response.BadRequest(c, "Missing required params: token, start, end")
		return
	}
	stats, err := h.analytics.TokenStats(c.Request.Context(), token, start, end)
	if err != nil {
		response.Fail(c, err, usage.ErrInvalidDate)
		return
	}
	c.JSON(200, stats)
}

// LegacyTrend 令牌区间按天趋势
// @Summary 令牌在区间内按天与模型的用量
// @Tags Legacy
// @Produce json
// @Param token query string true "令牌名"
// @Param start query string true "起始时间"
// @Param end query string true "结束时间（包含）"
// @Success 200 {array} analytics.TokenTrendPoint
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/trend [get]
func (h *Handler) LegacyTrend(c *gin.Context) {
	token, start, end := c.Query("token"), c.Query("start"), c.Query("end")
	if token == "" || start == "" || end == "" {
		response.BadRequest(c, "Missing required params")
		return
	}
	points, err := h.analytics.TokenTrend(c.Request.Context(), token, start, end)
	if err != nil {
		response.Fail(c, err, usage.ErrInvalidDate)
		return
	}
	c.JSON(200, points)
}

// LegacyModels 模型与渠道
// @Summary 启用渠道提供的模型及价格文档中的自定义模型
// @Tags Legacy
// @Produce json
// @Success 200 {array} analytics.ModelChannels
// @Failure 500 {object} response.ErrorResponse
// @Router /api/models [get]
func (h *Handler) LegacyModels(c *gin.Context) {
	models, err := h.analytics.Models(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, models)
}
