package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"usagehub/internal/identity"
	"usagehub/internal/usage"
)

// Granularity 模型趋势的时间粒度
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity 未知或空值按天处理
func ParseGranularity(s string) Granularity {
	switch Granularity(s) {
	case GranularityHour, GranularityWeek, GranularityMonth:
		return Granularity(s)
	default:
		return GranularityDay
	}
}

// Label 时间点所在桶的标签：小时 "YYYY-MM-DD HH:00"，周为周一的日期，月 "YYYY-MM"
func (g Granularity) Label(t time.Time) string {
	switch g {
	case GranularityHour:
		return t.Format("2006-01-02 15:00")
	case GranularityWeek:
		sinceMonday := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -sinceMonday).Format(usage.DateLayout)
	case GranularityMonth:
		return t.Format("2006-01")
	default:
		return t.Format(usage.DateLayout)
	}
}

// modelTally 按模型累计 tokens 与请求数
type modelTally struct {
	name     string
	tokens   uint64
	requests uint64
}

// rankModels tokens 降序，名称升序兜底
func rankModels(tallies map[string]*modelTally) []*modelTally {
	out := make([]*modelTally, 0, len(tallies))
	for _, t := range tallies {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].tokens != out[j].tokens {
			return out[i].tokens > out[j].tokens
		}
		return out[i].name < out[j].name
	})
	return out
}

func topNames(ranked []*modelTally, n int) []string {
	names := make([]string, 0, min(len(ranked), n))
	for _, t := range ranked {
		if len(names) == n {
			break
		}
		names = append(names, t.name)
	}
	return names
}

func hourLabel(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

// UserHourly 单个身份某一天 24 小时的模型 tokens 分布
func (s *Service) UserHourly(ctx context.Context, id identity.Identity, date string) (*HourlyChart, error) {
	filter, err := s.userDay(id, date)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "UserHourly", usage.Query{Filter: filter, Hourly: true})
	if err != nil {
		return nil, err
	}

	chart := make([]ChartRow, 24)
	for h := range chart {
		chart[h] = ChartRow{"hour": hourLabel(h)}
	}
	tallies := make(map[string]*modelTally)
	for _, r := range rows {
		name := s.normalize(r.ModelName)
		row := chart[r.Bucket.In(s.loc).Hour()]
		prev, _ := row[name].(uint64)
		row[name] = prev + r.Tokens()

		t, ok := tallies[name]
		if !ok {
			t = &modelTally{name: name}
			tallies[name] = t
		}
		t.tokens += r.Tokens()
	}

	return &HourlyChart{ChartData: chart, TopModels: topNames(rankModels(tallies), MaxChartModels)}, nil
}

// ModelTrend 全局模型趋势；start 与 end 均为包含的自然日
func (s *Service) ModelTrend(ctx context.Context, start, end string, granularity Granularity) (*ModelTrend, error) {
	from, _, err := usage.ParseDay(start, s.loc)
	if err != nil {
		return nil, err
	}
	_, to, err := usage.ParseDay(end, s.loc)
	if err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, "ModelTrend", usage.Query{Filter: usage.Filter{Start: from, End: to}, Hourly: true})
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]map[string]uint64)
	tallies := make(map[string]*modelTally)
	for _, r := range rows {
		name := s.normalize(r.ModelName)
		label := granularity.Label(r.Bucket.In(s.loc))
		if buckets[label] == nil {
			buckets[label] = make(map[string]uint64)
		}
		buckets[label][name] += r.Tokens()

		t, ok := tallies[name]
		if !ok {
			t = &modelTally{name: name}
			tallies[name] = t
		}
		t.tokens += r.Tokens()
		t.requests += r.RequestCount
	}

	ranked := rankModels(tallies)
	top := topNames(ranked, MaxChartModels)

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	chart := make([]ChartRow, len(labels))
	for i, label := range labels {
		row := ChartRow{"bucket": label}
		for _, name := range top {
			row[name] = buckets[label][name]
		}
		chart[i] = row
	}

	pie := make([]PieSlice, len(ranked))
	for i, t := range ranked {
		pie[i] = PieSlice{Name: t.name, Value: t.requests, Tokens: t.tokens}
	}
	sort.SliceStable(pie, func(i, j int) bool { return pie[i].Value > pie[j].Value })

	return &ModelTrend{ChartData: chart, TopModels: top, PieData: pie, Granularity: granularity}, nil
}
