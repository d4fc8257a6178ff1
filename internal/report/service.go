package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"usagehub/internal/aggregation"
	"usagehub/internal/metrics"
	"usagehub/internal/notification"
	"usagehub/internal/pricing"
	"usagehub/internal/usage"

	"go.uber.org/zap"
)

// ErrWebhookNotConfigured 未配置飞书 Webhook
var ErrWebhookNotConfigured = errors.New("FEISHU_WEBHOOK_URL not configured")

// RowSource 日报需要的日志库查询
type RowSource interface {
	Rows(ctx context.Context, q usage.Query) ([]usage.Row, error)
	TokenNamesBefore(ctx context.Context, cutoff time.Time) (map[string]struct{}, error)
}

// PricingCache 可刷新的定价快照
type PricingCache interface {
	Refresh(ctx context.Context) error
	Get() *pricing.Config
}

// Result 单次日报执行结果
type Result struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Date           string `json:"date,omitempty"`
	TokensReported *int   `json:"tokensReported,omitempty"`
	Truncated      bool   `json:"truncated,omitempty"`
}

// Service 每日消耗日报
type Service struct {
	rows      RowSource
	pricing   PricingCache
	engine    *aggregation.Engine
	builder   *Builder
	transport notification.Transport
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewService 创建日报服务；transport 为 nil 表示未配置 Webhook
func NewService(rows RowSource, pc PricingCache, engine *aggregation.Engine, builder *Builder,
	transport notification.Transport, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		rows:      rows,
		pricing:   pc,
		engine:    engine,
		builder:   builder,
		transport: transport,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

// Configured 是否配置了投递通道
func (s *Service) Configured() bool {
	return s.transport != nil
}

// Preview 只构建不发送；date 为空时取当天
func (s *Service) Preview(ctx context.Context, date string) (*Payload, error) {
	if date == "" {
		date = usage.Today(s.now(), s.loc)
	}
	start, end, err := usage.ParseDay(date, s.loc)
	if err != nil {
		return nil, err
	}

	// 刷新失败时沿用旧快照
	_ = s.pricing.Refresh(ctx)

	filter := usage.Filter{Start: start, End: end, NamedOnly: true}
	rows, err := s.rows.Rows(ctx, usage.Query{Filter: filter, GroupByToken: true})
	if err != nil {
		return nil, fmt.Errorf("查询当日用量失败: %w", err)
	}
	history, err := s.rows.TokenNamesBefore(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("查询历史令牌失败: %w", err)
	}

	res := s.engine.Aggregate(rows, s.pricing.Get(), aggregation.Options{ClassifyNew: true, History: history})
	return s.builder.Build(Input{
		Date:       date,
		Identities: res.PerIdentity,
		Summary:    res.Summary,
		New:        res.New,
		Returning:  res.Returning,
	})
}

// SendDailyReport 构建并发送日报；任何错误（包括 panic）都记为该日期的失败执行
func (s *Service) SendDailyReport(ctx context.Context, date string) (result Result) {
	if s.transport == nil {
		metrics.ReportRunsTotal.WithLabelValues("skipped").Inc()
		return Result{Reason: ErrWebhookNotConfigured.Error()}
	}
	if date == "" {
		date = usage.Today(s.now(), s.loc)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("日报执行异常", zap.String("date", date), zap.Any("panic", r))
			result = Result{Error: fmt.Sprintf("panic: %v", r), Date: date}
		}
		status := "failed"
		if result.Success {
			status = "success"
		}
		metrics.ReportRunsTotal.WithLabelValues(status).Inc()
	}()

	s.logger.Info("开始生成日报", zap.String("date", date), zap.Float64("threshold", s.builder.opts.Threshold))

	payload, err := s.Preview(ctx, date)
	if err != nil {
		s.logger.Error("日报查询失败", zap.String("date", date), zap.Error(err))
		return Result{Error: err.Error(), Date: date}
	}
	if payload.Truncated {
		metrics.ReportTruncatedTotal.Inc()
		s.logger.Warn("日报卡片过大，已截断", zap.String("date", date), zap.Int("tokens", payload.Identities))
	}

	sent := s.transport.Send(ctx, payload.Body)
	reported := payload.Identities
	return Result{
		Success:        sent.Success,
		Error:          sent.Error,
		Date:           date,
		TokensReported: &reported,
		Truncated:      payload.Truncated,
	}
}
