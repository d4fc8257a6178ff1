package aggregation

import "sort"

// Metric 排名指标
type Metric string

const (
	MetricCost     Metric = "cost"
	MetricTokens   Metric = "tokens"
	MetricRequests Metric = "requests"
)

// ParseMetric 解析指标名，未知值按成本处理
func ParseMetric(s string) Metric {
	switch Metric(s) {
	case MetricTokens:
		return MetricTokens
	case MetricRequests:
		return MetricRequests
	default:
		return MetricCost
	}
}

// Value 桶在该指标下的取值
func (m Metric) Value(b *Bucket) float64 {
	switch m {
	case MetricTokens:
		return float64(b.TotalTokens)
	case MetricRequests:
		return float64(b.TotalRequests)
	default:
		return b.TotalCostBase
	}
}

// SortByMetric 按指标降序，Key 升序兜底
func SortByMetric(buckets []*Bucket, m Metric) {
	sort.SliceStable(buckets, func(i, j int) bool {
		vi, vj := m.Value(buckets[i]), m.Value(buckets[j])
		if vi != vj {
			return vi > vj
		}
		return buckets[i].Key < buckets[j].Key
	})
}

// SortByCost 按成本降序
func SortByCost(buckets []*Bucket) {
	SortByMetric(buckets, MetricCost)
}
