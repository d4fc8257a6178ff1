// Package report 日报手动触发接口
package report

import (
	"context"

	"usagehub/internal/report"

	"github.com/gin-gonic/gin"
)

// Sender 同步发送日报
type Sender interface {
	SendDailyReport(ctx context.Context, date string) report.Result
}

// Handler 日报接口处理器
type Handler struct {
	sender Sender
}

// NewHandler 创建处理器
func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// TestNotify 立即生成并发送指定日期的日报
// @Summary 立即发送日报（仅在配置了飞书 Webhook 时注册）
// @Tags Report
// @Produce json
// @Param date query string false "日期 YYYY-MM-DD，缺省为今天"
// @Success 200 {object} report.Result
// @Router /api/newapi/test-notify [get]
func (h *Handler) TestNotify(c *gin.Context) {
	c.JSON(200, h.sender.SendDailyReport(c.Request.Context(), c.Query("date")))
}
