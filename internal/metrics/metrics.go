package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usagehub_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "usagehub_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "usagehub_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)
)

// 定价规则指标
var (
	// PricingRefreshTotal 定价规则刷新次数（status: success, failed, skipped）
	PricingRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usagehub_pricing_refresh_total",
			Help: "定价规则刷新次数",
		},
		[]string{"status"},
	)

	// PricingMalformedTables 解析失败被跳过的规则表
	PricingMalformedTables = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usagehub_pricing_malformed_tables_total",
			Help: "解析失败的定价规则表次数",
		},
		[]string{"table"},
	)
)

// 排行榜缓存指标
var (
	// LeaderboardCacheHits 排行榜缓存命中
	LeaderboardCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usagehub_leaderboard_cache_hits_total",
			Help: "排行榜缓存命中次数",
		},
	)

	// LeaderboardCacheMisses 排行榜缓存未命中
	LeaderboardCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usagehub_leaderboard_cache_misses_total",
			Help: "排行榜缓存未命中次数",
		},
	)

	// LeaderboardCacheFlushes 超过容量上限后的整体清空次数
	LeaderboardCacheFlushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usagehub_leaderboard_cache_flushes_total",
			Help: "排行榜缓存整体清空次数",
		},
	)
)

// 价格文档写队列指标
var (
	// PriceWritesTotal 持久化写入次数（status: success, failed）
	PriceWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usagehub_price_writes_total",
			Help: "价格文档持久化写入次数",
		},
		[]string{"status"},
	)

	// PriceWriteQueueDepth 等待写入的文档数量
	PriceWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "usagehub_price_write_queue_depth",
			Help: "价格文档写队列长度",
		},
	)
)

// 日报指标
var (
	// ReportRunsTotal 日报执行次数（status: success, failed, skipped）
	ReportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usagehub_report_runs_total",
			Help: "日报执行次数",
		},
		[]string{"status"},
	)

	// ReportTruncatedTotal 因体积超限被截断的日报次数
	ReportTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usagehub_report_truncated_total",
			Help: "日报截断次数",
		},
	)
)

// 日志库查询指标
var (
	// LogStoreQueryDuration 日志库 SQL 耗时（秒）
	LogStoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "usagehub_logstore_query_duration_seconds",
			Help:    "日志库 SQL 耗时分布",
			Buckets: []float64{.005, .01, .05, .1, .2, .5, 1, 2, 5},
		},
		[]string{"status"},
	)
)
