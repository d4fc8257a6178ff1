package aggregation

import (
	"testing"
	"time"

	"usagehub/internal/pricing"
	"usagehub/internal/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *pricing.Config {
	return &pricing.Config{
		ModelPrice:      pricing.RuleTable{"fixed": 0.5},
		ModelRatio:      pricing.RuleTable{"gpt-x": 20, "cheap": 1},
		CompletionRatio: pricing.RuleTable{"gpt-x": 2},
	}
}

func TestAggregateEndToEnd(t *testing.T) {
	engine := NewEngine(nil)
	rows := []usage.Row{
		{IdentityKey: "A", ModelName: "gpt-x", PromptTokens: 1000, CompletionTokens: 500, RequestCount: 10},
	}

	res := engine.Aggregate(rows, testConfig(), Options{})
	require.Len(t, res.PerIdentity, 1)
	assert.InDelta(t, 0.08, res.PerIdentity[0].TotalCostBase, 1e-12)
	assert.InDelta(t, 0.08, res.Summary.TotalCostBase, 1e-12)
	assert.Equal(t, uint64(1500), res.Summary.TotalTokens)
	assert.Equal(t, uint64(10), res.Summary.TotalRequests)
	assert.Nil(t, res.New)
}

func TestAggregateMergesBeforeCosting(t *testing.T) {
	engine := NewEngine(nil)
	// 同一 (身份, 模型) 被渠道拆成多行
	rows := []usage.Row{
		{IdentityKey: "A", ModelName: "fixed", ChannelID: 1, RequestCount: 3},
		{IdentityKey: "A", ModelName: "fixed", ChannelID: 2, RequestCount: 1},
		{IdentityKey: "A", ModelName: "cheap", PromptTokens: 1000, CompletionTokens: 1000, RequestCount: 1},
	}

	res := engine.Aggregate(rows, testConfig(), Options{})
	require.Len(t, res.PerIdentity, 1)

	a := res.PerIdentity[0]
	require.Len(t, a.Members, 2)
	assert.Equal(t, "fixed", a.Members[0].Key)
	assert.InDelta(t, 2.0, a.Members[0].TotalCostBase, 1e-12)
	assert.Equal(t, uint64(4), a.Members[0].TotalRequests)
	assert.Equal(t, "cheap", a.Members[1].Key)
	assert.InDelta(t, 0.004, a.Members[1].TotalCostBase, 1e-12)
	assert.InDelta(t, 2.004, a.TotalCostBase, 1e-12)
	assert.Equal(t, uint64(5), a.TotalRequests)
	assert.Equal(t, uint64(1000), a.TotalPromptTokens)
	assert.Equal(t, uint64(1000), a.TotalCompletionTokens)
}

func TestAggregateOrderingAndClassification(t *testing.T) {
	engine := NewEngine(nil)
	rows := []usage.Row{
		{IdentityKey: "carol", ModelName: "fixed", RequestCount: 2},
		{IdentityKey: "bob", ModelName: "fixed", RequestCount: 2},
		{IdentityKey: "alice", ModelName: "fixed", RequestCount: 10},
		{IdentityKey: "dave", ModelName: "", PromptTokens: 100, RequestCount: 1},
	}

	res := engine.Aggregate(rows, testConfig(), Options{
		ClassifyNew: true,
		History:     map[string]struct{}{"bob": {}, "dave": {}},
	})

	keys := func(bs []*Bucket) []string {
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = b.Key
		}
		return out
	}

	// 成本相同按 Key 升序
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, keys(res.PerIdentity))
	assert.Equal(t, []string{"alice", "carol"}, keys(res.New))
	assert.Equal(t, []string{"bob", "dave"}, keys(res.Returning))
	assert.Zero(t, res.PerIdentity[3].TotalCostBase, "空模型名不计费")
	assert.InDelta(t, 7.0, res.Summary.TotalCostBase, 1e-12)
}

func TestByModelAndTime(t *testing.T) {
	engine := NewEngine(nil)
	day1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	rows := []usage.Row{
		{ModelName: "cheap", PromptTokens: 100, RequestCount: 1, Bucket: day2},
		{ModelName: "fixed", RequestCount: 1, Bucket: day1},
		{ModelName: "cheap", PromptTokens: 100, RequestCount: 1, Bucket: day1},
	}

	models := engine.ByModel(rows, testConfig())
	require.Len(t, models, 2)
	assert.Equal(t, "fixed", models[0].Key)
	assert.Equal(t, uint64(200), models[1].TotalPromptTokens)

	days := engine.ByTime(rows, testConfig(), func(r usage.Row) string { return r.Bucket.Format("2006-01-02") })
	require.Len(t, days, 2)
	assert.Equal(t, "2025-01-01", days[0].Key)
	assert.Len(t, days[0].Members, 2)
	assert.Equal(t, uint64(2), days[0].TotalRequests)
	assert.Equal(t, "2025-01-02", days[1].Key)

	summary := engine.Summarize(rows, testConfig())
	assert.Equal(t, uint64(3), summary.TotalRequests)
	assert.InDelta(t, 0.5+200*0.000002, summary.TotalCostBase, 1e-12)
}

func TestSortByMetric(t *testing.T) {
	buckets := []*Bucket{
		{Key: "b", TotalTokens: 10, TotalRequests: 1, TotalCostBase: 3},
		{Key: "a", TotalTokens: 10, TotalRequests: 5, TotalCostBase: 1},
		{Key: "c", TotalTokens: 99, TotalRequests: 2, TotalCostBase: 2},
	}

	SortByMetric(buckets, MetricTokens)
	assert.Equal(t, "c", buckets[0].Key)
	assert.Equal(t, "a", buckets[1].Key)

	SortByMetric(buckets, MetricRequests)
	assert.Equal(t, "a", buckets[0].Key)

	SortByMetric(buckets, ParseMetric("bogus"))
	assert.Equal(t, "b", buckets[0].Key)
}
