package leaderboard

import (
	"context"
	"fmt"
	"time"

	"usagehub/internal/aggregation"
	"usagehub/internal/pricing"
	"usagehub/internal/usage"
)

// RowSource 排行榜需要的用量查询
type RowSource interface {
	Rows(ctx context.Context, q usage.Query) ([]usage.Row, error)
}

// PricingSnapshot 当前定价快照
type PricingSnapshot interface {
	Get() *pricing.Config
}

// Key 缓存键 (日期或 all, 指标, 数量)
type Key struct {
	Date   string
	Metric aggregation.Metric
	Limit  int
}

func (k Key) String() string {
	date := k.Date
	if date == "" {
		date = "all"
	}
	return fmt.Sprintf("%s|%s|%d", date, k.Metric, k.Limit)
}

// Item 排行榜条目
type Item struct {
	TokenName     string  `json:"tokenName"`
	TotalCost     float64 `json:"totalCost"`
	TotalCostCNY  float64 `json:"totalCostCNY"`
	TotalTokens   uint64  `json:"totalTokens"`
	TotalRequests uint64  `json:"totalRequests"`
	Rank          int     `json:"rank"`
}

// Options 排行榜参数
type Options struct {
	TTL          time.Duration
	MaxEntries   int
	DefaultLimit int
	MaxLimit     int
}

// Service 令牌排行榜
type Service struct {
	rows    RowSource
	pricing PricingSnapshot
	engine  *aggregation.Engine
	loc     *time.Location
	opts    Options
	cache   *Cache[[]Item]
}

// NewService 创建排行榜服务
func NewService(rows RowSource, snapshot PricingSnapshot, engine *aggregation.Engine, loc *time.Location, opts Options) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	return &Service{
		rows:    rows,
		pricing: snapshot,
		engine:  engine,
		loc:     loc,
		opts:    opts,
		cache:   NewCache[[]Item](opts.MaxEntries),
	}
}

// Cache 底层缓存
func (s *Service) Cache() *Cache[[]Item] {
	return s.cache
}

// NormalizeLimit 缺省或非法时取默认值，超过上限时截断
func (s *Service) NormalizeLimit(limit int) int {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}
	return limit
}

// Top 按指标返回前 limit 个令牌，date 为空时统计全部时间
func (s *Service) Top(ctx context.Context, date string, metric string, limit int) ([]Item, error) {
	key := Key{Date: date, Metric: aggregation.ParseMetric(metric), Limit: s.NormalizeLimit(limit)}

	filter := usage.Filter{NamedOnly: true}
	if date != "" {
		day, err := usage.DayFilter(date, s.loc)
		if err != nil {
			return nil, err
		}
		day.NamedOnly = true
		filter = day
	}

	// 同一 key 的并发请求共享一次计算，不受首个调用方取消的影响；超时由仓储的查询超时约束
	shared := context.WithoutCancel(ctx)
	return s.cache.GetOrCompute(key.String(), s.opts.TTL, func() ([]Item, error) {
		rows, err := s.rows.Rows(shared, usage.Query{Filter: filter, GroupByToken: true})
		if err != nil {
			return nil, err
		}

		res := s.engine.Aggregate(rows, s.pricing.Get(), aggregation.Options{})
		buckets := res.PerIdentity
		aggregation.SortByMetric(buckets, key.Metric)
		if len(buckets) > key.Limit {
			buckets = buckets[:key.Limit]
		}

		calc := s.engine.Calculator()
		items := make([]Item, len(buckets))
		for i, b := range buckets {
			items[i] = Item{
				TokenName:     b.Key,
				TotalCost:     b.TotalCostBase,
				TotalCostCNY:  calc.ToDisplay(b.TotalCostBase),
				TotalTokens:   b.TotalTokens,
				TotalRequests: b.TotalRequests,
				Rank:          i + 1,
			}
		}
		return items, nil
	})
}
