package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"usagehub/internal/report"
	"usagehub/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ReportSender 日报发送抽象，便于注入 mock
type ReportSender interface {
	SendDailyReport(ctx context.Context, date string) report.Result
}

type ReportHandler struct {
	sender ReportSender
	logger *zap.Logger
}

func NewReportHandler(sender ReportSender, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		sender: sender,
		logger: logger,
	}
}

// HandleDailyReport 执行日报；失败不重试
func (h *ReportHandler) HandleDailyReport(ctx context.Context, t *asynq.Task) error {
	var p tasks.DailyReportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("开始执行日报任务", zap.String("date", p.Date))

	res := h.sender.SendDailyReport(ctx, p.Date)
	if res.Reason != "" {
		h.logger.Warn("日报任务跳过", zap.String("reason", res.Reason))
		return nil
	}
	if !res.Success {
		return fmt.Errorf("日报发送失败 (%s): %s: %w", res.Date, res.Error, asynq.SkipRetry)
	}

	h.logger.Info("日报任务完成", zap.String("date", res.Date))
	return nil
}
