// Package analytics 基于日志库用量与定价快照生成看板所需的统计视图
package analytics

import (
	"context"
	"time"

	"usagehub/internal/aggregation"
	"usagehub/internal/identity"
	"usagehub/internal/prices"
	"usagehub/internal/pricing"
	"usagehub/internal/usage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultTrendDays 全局趋势默认天数
	DefaultTrendDays = 30
	// MaxTrendDays 全局趋势最大天数
	MaxTrendDays = 90
	// MaxUserTrendDays 个人趋势最大天数
	MaxUserTrendDays = 365
	// MaxDistributionModels 模型占比返回条数
	MaxDistributionModels = 20
	// MaxChartModels 堆叠图展示的模型数
	MaxChartModels = 8
)

// Repository 日志库只读查询
type Repository interface {
	Rows(ctx context.Context, q usage.Query) ([]usage.Row, error)
	AvailableDates(ctx context.Context) ([]string, error)
	DistinctTokenNames(ctx context.Context) ([]string, error)
	Channels(ctx context.Context, onlyEnabled bool) ([]usage.Channel, error)
}

// PricingSnapshot 当前定价快照
type PricingSnapshot interface {
	Get() *pricing.Config
}

// PriceCatalog 手工价格文档
type PriceCatalog interface {
	Get(ctx context.Context) (prices.Document, error)
}

// Service 统计服务
type Service struct {
	repo      Repository
	pricing   PricingSnapshot
	engine    *aggregation.Engine
	catalog   PriceCatalog
	normalize func(string) string
	loc       *time.Location
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService 创建统计服务；catalog 与 normalize 可为 nil
func NewService(repo Repository, snapshot PricingSnapshot, engine *aggregation.Engine, catalog PriceCatalog,
	normalize func(string) string, loc *time.Location, logger *zap.Logger) *Service {
	if normalize == nil {
		normalize = func(s string) string { return s }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		pricing:   snapshot,
		engine:    engine,
		catalog:   catalog,
		normalize: normalize,
		loc:       loc,
		logger:    logger,
		tracer:    otel.Tracer("usagehub/internal/analytics"),
		now:       time.Now,
	}
}

// SetClock 替换时钟，滚动窗口以此为终点
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ClampDays 解析天数参数：非正数取默认值，超过上限取上限
func ClampDays(days, def, limit int) int {
	if days <= 0 {
		days = def
	}
	if days > limit {
		days = limit
	}
	return days
}

// Overview 全部历史的汇总
func (s *Service) Overview(ctx context.Context) (*Totals, error) {
	rows, err := s.query(ctx, "Overview", usage.Query{})
	if err != nil {
		return nil, err
	}
	totals := s.totals(s.engine.Summarize(rows, s.pricing.Get()))
	return &totals, nil
}

// DailyOverview 单日汇总
func (s *Service) DailyOverview(ctx context.Context, date string) (*DailyOverview, error) {
	filter, err := usage.DayFilter(date, s.loc)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "DailyOverview", usage.Query{Filter: filter})
	if err != nil {
		return nil, err
	}
	return &DailyOverview{Date: date, Totals: s.totals(s.engine.Summarize(rows, s.pricing.Get()))}, nil
}

// Trend 最近 days 天（滚动窗口）按天的趋势，日期升序
func (s *Service) Trend(ctx context.Context, days int) ([]TrendPoint, error) {
	days = ClampDays(days, DefaultTrendDays, MaxTrendDays)
	filter := usage.Filter{Start: s.now().Add(-time.Duration(days) * 24 * time.Hour)}
	return s.trend(ctx, "Trend", filter)
}

// ModelDistribution 模型成本占比，date 为空时统计全部历史
func (s *Service) ModelDistribution(ctx context.Context, date string) ([]ModelDistribution, error) {
	var filter usage.Filter
	if date != "" {
		f, err := usage.DayFilter(date, s.loc)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	rows, err := s.query(ctx, "ModelDistribution", usage.Query{Filter: filter})
	if err != nil {
		return nil, err
	}
	models := s.foldModels(s.engine.ByModel(rows, s.pricing.Get()))

	var total float64
	for _, m := range models {
		total += m.TotalCostBase
	}

	calc := s.engine.Calculator()
	out := make([]ModelDistribution, 0, min(len(models), MaxDistributionModels))
	for _, m := range models {
		if len(out) == MaxDistributionModels {
			break
		}
		d := ModelDistribution{
			ModelName:     m.Key,
			TotalCost:     m.TotalCostBase,
			TotalCostCNY:  calc.ToDisplay(m.TotalCostBase),
			TotalTokens:   m.TotalTokens,
			TotalRequests: m.TotalRequests,
		}
		if total > 0 {
			d.Percentage = m.TotalCostBase / total * 100
		}
		out = append(out, d)
	}
	return out, nil
}

// AvailableDates 有用量的日期，降序
func (s *Service) AvailableDates(ctx context.Context) ([]string, error) {
	dates, err := s.repo.AvailableDates(ctx)
	if err != nil {
		return nil, err
	}
	if dates == nil {
		dates = []string{}
	}
	return dates, nil
}

// Tokens 有消费记录的令牌名，升序
func (s *Service) Tokens(ctx context.Context) ([]string, error) {
	names, err := s.repo.DistinctTokenNames(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// UserTrend 单个身份按天的趋势；days 为 0 时不限起点
func (s *Service) UserTrend(ctx context.Context, id identity.Identity, days int) ([]TrendPoint, error) {
	filter := id.Filter()
	if days > 0 {
		days = ClampDays(days, DefaultTrendDays, MaxUserTrendDays)
		filter.Start = s.now().Add(-time.Duration(days) * 24 * time.Hour)
	}
	return s.trend(ctx, "UserTrend", filter)
}

// UserOverview 单个身份的累计汇总
func (s *Service) UserOverview(ctx context.Context, id identity.Identity) (*UserOverview, error) {
	rows, err := s.query(ctx, "UserOverview", usage.Query{Filter: id.Filter()})
	if err != nil {
		return nil, err
	}
	return &UserOverview{
		TokenName: id.DisplayName,
		Totals:    s.totals(s.engine.Summarize(rows, s.pricing.Get())),
	}, nil
}

// UserDailyOverview 单个身份的单日汇总，模型按展示货币成本降序
func (s *Service) UserDailyOverview(ctx context.Context, id identity.Identity, date string) (*UserDailyOverview, error) {
	filter, err := s.userDay(id, date)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "UserDailyOverview", usage.Query{Filter: filter})
	if err != nil {
		return nil, err
	}

	cfg := s.pricing.Get()
	return &UserDailyOverview{
		TokenName: id.DisplayName,
		Date:      date,
		Totals:    s.totals(s.engine.Summarize(rows, cfg)),
		Models:    s.shares(s.foldModels(s.engine.ByModel(rows, cfg))),
	}, nil
}

func (s *Service) trend(ctx context.Context, op string, filter usage.Filter) ([]TrendPoint, error) {
	rows, err := s.query(ctx, op, usage.Query{Filter: filter, Hourly: true})
	if err != nil {
		return nil, err
	}

	calc := s.engine.Calculator()
	days := s.engine.ByTime(rows, s.pricing.Get(), func(r usage.Row) string {
		return r.Bucket.In(s.loc).Format(usage.DateLayout)
	})
	out := make([]TrendPoint, len(days))
	for i, d := range days {
		out[i] = TrendPoint{
			Date:          d.Key,
			TotalCost:     d.TotalCostBase,
			TotalTokens:   d.TotalTokens,
			TotalRequests: d.TotalRequests,
			Models:        s.shares(s.foldModels(d.Members)),
			TotalCostCNY:  calc.ToDisplay(d.TotalCostBase),
		}
	}
	return out, nil
}

func (s *Service) userDay(id identity.Identity, date string) (usage.Filter, error) {
	start, end, err := usage.ParseDay(date, s.loc)
	if err != nil {
		return usage.Filter{}, err
	}
	filter := id.Filter()
	filter.Start, filter.End = start, end
	return filter, nil
}

// query 带追踪的日志库查询
func (s *Service) query(ctx context.Context, op string, q usage.Query) ([]usage.Row, error) {
	ctx, span := s.tracer.Start(ctx, "analytics."+op, trace.WithAttributes(
		attribute.Bool("usage.hourly", q.Hourly),
		attribute.Bool("usage.by_token", q.GroupByToken),
		attribute.Bool("usage.by_channel", q.GroupByChannel),
	))
	defer span.End()

	rows, err := s.repo.Rows(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "log store query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("usage.rows", len(rows)))
	return rows, nil
}

func (s *Service) totals(b *aggregation.Bucket) Totals {
	return Totals{
		TotalCost:             b.TotalCostBase,
		TotalCostCNY:          s.engine.Calculator().ToDisplay(b.TotalCostBase),
		TotalTokens:           b.TotalTokens,
		TotalPromptTokens:     b.TotalPromptTokens,
		TotalCompletionTokens: b.TotalCompletionTokens,
		TotalRequests:         b.TotalRequests,
	}
}

func (s *Service) shares(models []*aggregation.Bucket) []ModelShare {
	calc := s.engine.Calculator()
	out := make([]ModelShare, len(models))
	for i, m := range models {
		out[i] = ModelShare{
			ModelName: m.Key,
			CostCNY:   calc.ToDisplay(m.TotalCostBase),
			Tokens:    m.TotalTokens,
			Requests:  m.TotalRequests,
		}
	}
	return out
}

// foldModels 按展示名合并已计费的模型桶，成本降序
func (s *Service) foldModels(models []*aggregation.Bucket) []*aggregation.Bucket {
	index := make(map[string]*aggregation.Bucket, len(models))
	out := make([]*aggregation.Bucket, 0, len(models))
	for _, m := range models {
		name := s.normalize(m.Key)
		if f, ok := index[name]; ok {
			f.TotalCostBase += m.TotalCostBase
			f.TotalTokens += m.TotalTokens
			f.TotalPromptTokens += m.TotalPromptTokens
			f.TotalCompletionTokens += m.TotalCompletionTokens
			f.TotalRequests += m.TotalRequests
			continue
		}
		c := *m
		c.Key = name
		c.Members = nil
		index[name] = &c
		out = append(out, &c)
	}
	aggregation.SortByCost(out)
	return out
}
