package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"usagehub/internal/aggregation"
	"usagehub/internal/identity"
	"usagehub/internal/modelalias"
	"usagehub/internal/prices"
	"usagehub/internal/pricing"
	"usagehub/internal/usage"
	"usagehub/internal/usage/usagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCatalog struct {
	doc prices.Document
	err error
}

func (c staticCatalog) Get(context.Context) (prices.Document, error) {
	return c.doc, c.err
}

func newAnalytics(t *testing.T, catalog PriceCatalog) *Service {
	t.Helper()
	db := usagetest.Open(t)
	at := usagetest.At
	usagetest.InsertLogs(t, db,
		usagetest.Log{CreatedAt: at("2025-02-01", 10, 0), TokenName: "alice", ModelName: "fixed", ChannelID: 3},
		usagetest.Log{CreatedAt: at("2025-02-01", 10, 30), TokenName: "alice", ModelName: "cheap", PromptTokens: 100000, ChannelID: 1},
		usagetest.Log{CreatedAt: at("2025-02-01", 23, 30), TokenName: "bob", ModelName: "cheap", PromptTokens: 50000, CompletionTokens: 50000, ChannelID: 1},
		usagetest.Log{CreatedAt: at("2025-02-02", 1, 0), TokenName: "bob", ModelName: "ep-1", PromptTokens: 1000, ChannelID: 1},
		usagetest.Log{CreatedAt: at("2025-02-02", 2, 0), TokenName: "bob", ModelName: "ep-2", PromptTokens: 3000, ChannelID: 2},
		usagetest.Log{Type: 1, CreatedAt: at("2025-02-02", 3, 0), TokenName: "bob", ModelName: "ep-2", PromptTokens: 99999},
	)
	usagetest.InsertChannel(t, db, 1, "volc", "ep-1,ep-2, cheap", 1)
	usagetest.InsertChannel(t, db, 3, "legacy", "fixed", 2)

	cache := pricing.NewConfigCache(pricing.StaticSource{
		pricing.TableModelPrice: `{"fixed": 10}`,
		pricing.TableModelRatio: `{"cheap": 1}`,
	}, time.Minute, time.Second, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	aliases := modelalias.Map{"ep-1": "deepseek", "ep-2": "deepseek"}
	repo := usage.NewRepository(db, usagetest.Shanghai, time.Second)
	svc := NewService(repo, cache, aggregation.NewEngine(nil), catalog, aliases.Normalize, usagetest.Shanghai, nil)
	svc.now = func() time.Time { return time.Unix(usagetest.At("2025-02-03", 12, 0), 0) }
	return svc
}

func byName(name string) identity.Identity {
	return identity.Identity{DisplayName: name, RawName: name}
}

func TestOverview(t *testing.T) {
	svc := newAnalytics(t, nil)
	ctx := context.Background()

	t.Run("全部历史", func(t *testing.T) {
		o, err := svc.Overview(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 10.64, o.TotalCost, 1e-9)
		assert.InDelta(t, 10.64*7.2, o.TotalCostCNY, 1e-9)
		assert.Equal(t, uint64(204000), o.TotalTokens)
		assert.Equal(t, uint64(154000), o.TotalPromptTokens)
		assert.Equal(t, uint64(50000), o.TotalCompletionTokens)
		assert.Equal(t, uint64(5), o.TotalRequests)
	})

	t.Run("单日边界按 UTC+8", func(t *testing.T) {
		d, err := svc.DailyOverview(ctx, "2025-02-01")
		require.NoError(t, err)
		assert.Equal(t, "2025-02-01", d.Date)
		assert.InDelta(t, 10.4, d.TotalCost, 1e-9)
		assert.Equal(t, uint64(3), d.TotalRequests)

		d, err = svc.DailyOverview(ctx, "2025-02-02")
		require.NoError(t, err)
		assert.InDelta(t, 0.24, d.TotalCost, 1e-9)
		assert.Equal(t, uint64(2), d.TotalRequests)
	})

	t.Run("无效日期", func(t *testing.T) {
		_, err := svc.DailyOverview(ctx, "02/01/2025")
		assert.True(t, errors.Is(err, usage.ErrInvalidDate))
		_, err = svc.DailyOverview(ctx, "")
		assert.True(t, errors.Is(err, usage.ErrInvalidDate))
	})
}

func TestModelDistribution(t *testing.T) {
	svc := newAnalytics(t, nil)
	ctx := context.Background()

	t.Run("别名合并", func(t *testing.T) {
		dist, err := svc.ModelDistribution(ctx, "2025-02-02")
		require.NoError(t, err)
		require.Len(t, dist, 1)
		assert.Equal(t, "deepseek", dist[0].ModelName)
		assert.Equal(t, uint64(4000), dist[0].TotalTokens)
		assert.Equal(t, uint64(2), dist[0].TotalRequests)
		assert.InDelta(t, 0.24, dist[0].TotalCost, 1e-9)
		assert.InDelta(t, 100.0, dist[0].Percentage, 1e-9)
	})

	t.Run("全部历史按成本降序", func(t *testing.T) {
		dist, err := svc.ModelDistribution(ctx, "")
		require.NoError(t, err)
		require.Len(t, dist, 3)
		assert.Equal(t, "fixed", dist[0].ModelName)
		assert.InDelta(t, 10/10.64*100, dist[0].Percentage, 1e-9)
		assert.Equal(t, "cheap", dist[1].ModelName)
		assert.Equal(t, "deepseek", dist[2].ModelName)

		var sum float64
		for _, d := range dist {
			sum += d.Percentage
		}
		assert.InDelta(t, 100.0, sum, 1e-9)
	})
}

func TestDatesAndTokens(t *testing.T) {
	svc := newAnalytics(t, nil)
	ctx := context.Background()

	dates, err := svc.AvailableDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-02-02", "2025-02-01"}, dates)

	tokens, err := svc.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, tokens)
}

func TestTrend(t *testing.T) {
	svc := newAnalytics(t, nil)
	ctx := context.Background()

	t.Run("全局", func(t *testing.T) {
		points, err := svc.Trend(ctx, 0)
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Equal(t, "2025-02-01", points[0].Date)
		assert.InDelta(t, 10.4*7.2, points[0].TotalCostCNY, 1e-9)
		require.Len(t, points[0].Models, 2)
		assert.Equal(t, "fixed", points[0].Models[0].ModelName)
		assert.InDelta(t, 72.0, points[0].Models[0].CostCNY, 1e-9)

		assert.Equal(t, "2025-02-02", points[1].Date)
		require.Len(t, points[1].Models, 1)
		assert.Equal(t, "deepseek", points[1].Models[0].ModelName)
	})

	t.Run("窗口外的数据被排除", func(t *testing.T) {
		points, err := svc.Trend(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, points)
	})

	t.Run("个人趋势不限天数", func(t *testing.T) {
		points, err := svc.UserTrend(ctx, byName("bob"), 0)
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Equal(t, uint64(100000), points[0].TotalTokens)
		assert.Equal(t, uint64(4000), points[1].TotalTokens)
	})

	assert.Equal(t, 30, ClampDays(0, DefaultTrendDays, MaxTrendDays))
	assert.Equal(t, 90, ClampDays(400, DefaultTrendDays, MaxTrendDays))
	assert.Equal(t, 365, ClampDays(400, DefaultTrendDays, MaxUserTrendDays))
}

func TestUserViews(t *testing.T) {
	svc := newAnalytics(t, nil)
	ctx := context.Background()

	t.Run("累计", func(t *testing.T) {
		o, err := svc.UserOverview(ctx, byName("alice"))
		require.NoError(t, err)
		assert.Equal(t, "alice", o.TokenName)
		assert.InDelta(t, 10.2, o.TotalCost, 1e-9)
		assert.Equal(t, uint64(2), o.TotalRequests)
	})

	t.Run("单日模型按成本降序", func(t *testing.T) {
		d, err := svc.UserDailyOverview(ctx, byName("alice"), "2025-02-01")
		require.NoError(t, err)
		assert.Equal(t, "2025-02-01", d.Date)
		require.Len(t, d.Models, 2)
		assert.Equal(t, "fixed", d.Models[0].ModelName)
		assert.Equal(t, "cheap", d.Models[1].ModelName)
		assert.InDelta(t, 1.44, d.Models[1].CostCNY, 1e-9)
	})

	t.Run("按小时", func(t *testing.T) {
		h, err := svc.UserHourly(ctx, byName("bob"), "2025-02-02")
		require.NoError(t, err)
		require.Len(t, h.ChartData, 24)
		assert.Equal(t, "00:00", h.ChartData[0]["hour"])
		assert.Equal(t, "23:00", h.ChartData[23]["hour"])
		assert.Equal(t, uint64(1000), h.ChartData[1]["deepseek"])
		assert.Equal(t, uint64(3000), h.ChartData[2]["deepseek"])
		assert.NotContains(t, h.ChartData[3], "deepseek")
		assert.Equal(t, []string{"deepseek"}, h.TopModels)
	})

	t.Run("缺少日期", func(t *testing.T) {
		_, err := svc.UserHourly(ctx, byName("bob"), "")
		assert.True(t, errors.Is(err, usage.ErrInvalidDate))
	})
}

func TestModelTrend(t *testing.T) {
	svc := newAnalytics(t, nil)
	ctx := context.Background()

	t.Run("按天", func(t *testing.T) {
		mt, err := svc.ModelTrend(ctx, "2025-02-01", "2025-02-02", ParseGranularity(""))
		require.NoError(t, err)
		assert.Equal(t, GranularityDay, mt.Granularity)
		assert.Equal(t, []string{"cheap", "deepseek", "fixed"}, mt.TopModels)

		require.Len(t, mt.ChartData, 2)
		assert.Equal(t, "2025-02-01", mt.ChartData[0]["bucket"])
		assert.Equal(t, uint64(200000), mt.ChartData[0]["cheap"])
		assert.Equal(t, uint64(0), mt.ChartData[0]["deepseek"])
		assert.Equal(t, uint64(4000), mt.ChartData[1]["deepseek"])

		require.Len(t, mt.PieData, 3)
		assert.Equal(t, PieSlice{Name: "cheap", Value: 2, Tokens: 200000}, mt.PieData[0])
		assert.Equal(t, PieSlice{Name: "fixed", Value: 1, Tokens: 0}, mt.PieData[2])
	})

	t.Run("结束日期包含当天", func(t *testing.T) {
		mt, err := svc.ModelTrend(ctx, "2025-02-02", "2025-02-02", GranularityHour)
		require.NoError(t, err)
		require.Len(t, mt.ChartData, 2)
		assert.Equal(t, "2025-02-02 01:00", mt.ChartData[0]["bucket"])
		assert.Equal(t, "2025-02-02 02:00", mt.ChartData[1]["bucket"])
	})

	t.Run("按周与按月", func(t *testing.T) {
		mt, err := svc.ModelTrend(ctx, "2025-02-01", "2025-02-02", GranularityWeek)
		require.NoError(t, err)
		require.Len(t, mt.ChartData, 1)
		assert.Equal(t, "2025-01-27", mt.ChartData[0]["bucket"])

		mt, err = svc.ModelTrend(ctx, "2025-02-01", "2025-02-02", GranularityMonth)
		require.NoError(t, err)
		require.Len(t, mt.ChartData, 1)
		assert.Equal(t, "2025-02", mt.ChartData[0]["bucket"])
	})

	t.Run("缺少参数", func(t *testing.T) {
		_, err := svc.ModelTrend(ctx, "2025-02-01", "", GranularityDay)
		assert.True(t, errors.Is(err, usage.ErrInvalidDate))
	})
}

func TestGranularityLabel(t *testing.T) {
	sunday := time.Date(2025, 3, 9, 15, 40, 0, 0, usagetest.Shanghai)
	assert.Equal(t, "2025-03-09 15:00", GranularityHour.Label(sunday))
	assert.Equal(t, "2025-03-09", GranularityDay.Label(sunday))
	assert.Equal(t, "2025-03-03", GranularityWeek.Label(sunday))
	assert.Equal(t, "2025-03-03", GranularityWeek.Label(time.Date(2025, 3, 3, 0, 0, 0, 0, usagetest.Shanghai)))
	assert.Equal(t, "2025-03", GranularityMonth.Label(sunday))
	assert.Equal(t, GranularityDay, ParseGranularity("quarter"))
}

func TestLegacyStats(t *testing.T) {
	svc := newAnalytics(t, staticCatalog{doc: prices.Document{
		"gpt-4o": {Input: 2.5, Output: 10},
		"cheap":  {Input: 0.1, Output: 0.2},
	}})
	ctx := context.Background()

	t.Run("按模型与渠道", func(t *testing.T) {
		stats, err := svc.TokenStats(ctx, "bob", "2025-02-01", "2025-02-02")
		require.NoError(t, err)
		require.Len(t, stats.Models, 3)

		assert.Equal(t, ChannelModelStats{
			ModelName: "cheap", ChannelID: 1, ChannelName: "volc",
			RequestCount: 1, PromptTokens: 50000, CompletionTokens: 50000, TotalTokens: 100000,
		}, stats.Models[0])
		assert.Equal(t, "ep-2", stats.Models[1].ModelName)
		assert.Equal(t, "Channel 2", stats.Models[1].ChannelName)
		assert.Equal(t, "ep-1", stats.Models[2].ModelName)

		assert.Equal(t, StatsSummary{
			TotalRequests: 3, TotalTokens: 104000, TotalPromptTokens: 54000, TotalCompletionTokens: 50000,
		}, stats.Summary)
	})

	t.Run("结束时刻包含在内", func(t *testing.T) {
		stats, err := svc.TokenStats(ctx, "alice", "2025-02-01 10:00:00", "2025-02-01 10:30:00")
		require.NoError(t, err)
		assert.Len(t, stats.Models, 2)
		assert.Equal(t, "legacy", stats.Models[1].ChannelName)
	})

	t.Run("按天与模型", func(t *testing.T) {
		points, err := svc.TokenTrend(ctx, "bob", "2025-02-01", "2025-02-02")
		require.NoError(t, err)
		assert.Equal(t, []TokenTrendPoint{
			{Date: "2025-02-01", ModelName: "cheap", RequestCount: 1, TotalTokens: 100000},
			{Date: "2025-02-02", ModelName: "ep-1", RequestCount: 1, TotalTokens: 1000},
			{Date: "2025-02-02", ModelName: "ep-2", RequestCount: 1, TotalTokens: 3000},
		}, points)
	})

	t.Run("参数错误", func(t *testing.T) {
		_, err := svc.TokenStats(ctx, "bob", "yesterday", "2025-02-02")
		assert.True(t, errors.Is(err, usage.ErrInvalidDate))
	})

	t.Run("模型与渠道", func(t *testing.T) {
		models, err := svc.Models(ctx)
		require.NoError(t, err)
		require.Len(t, models, 4)
		assert.Equal(t, ModelChannels{ModelName: "cheap", ChannelIDs: []int{1}, ChannelNames: []string{"volc"}}, models[0])
		assert.Equal(t, "ep-1", models[1].ModelName)
		assert.Equal(t, "ep-2", models[2].ModelName)
		assert.Equal(t, ModelChannels{ModelName: "gpt-4o", ChannelIDs: []int{}, ChannelNames: []string{CustomChannelName}}, models[3])
	})
}

func TestModelsWithoutPriceDocument(t *testing.T) {
	svc := newAnalytics(t, staticCatalog{err: errors.New("disk gone")})
	models, err := svc.Models(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 3)
}
