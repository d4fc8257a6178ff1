package analytics

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"usagehub/internal/usage"

	"go.uber.org/zap"
)

// CustomChannelName 只在价格文档中出现的模型的渠道名
const CustomChannelName = "自定义"

var instantLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseRange 解析旧版接口的 start/end，两端均包含；纯日期的 end 覆盖当天
func ParseRange(start, end string, loc *time.Location) (usage.Filter, error) {
	from, _, err := parseInstant(start, loc)
	if err != nil {
		return usage.Filter{}, err
	}
	to, dateOnly, err := parseInstant(end, loc)
	if err != nil {
		return usage.Filter{}, err
	}
	if dateOnly {
		to = to.AddDate(0, 0, 1)
	} else {
		to = to.Add(time.Second)
	}
	return usage.Filter{Start: from, End: to}, nil
}

func parseInstant(s string, loc *time.Location) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, fmt.Errorf("%w: empty", usage.ErrInvalidDate)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation(usage.DateLayout, s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: %s", usage.ErrInvalidDate, s)
}

// TokenStats 令牌在区间内按 (模型, 渠道) 的用量，按 tokens 降序
func (s *Service) TokenStats(ctx context.Context, tokenName, start, end string) (*TokenStats, error) {
	filter, err := ParseRange(start, end, s.loc)
	if err != nil {
		return nil, err
	}
	filter.TokenName = tokenName

	rows, err := s.query(ctx, "TokenStats", usage.Query{Filter: filter, GroupByChannel: true})
	if err != nil {
		return nil, err
	}
	names := s.channelNames(ctx)

	stats := &TokenStats{Models: make([]ChannelModelStats, 0, len(rows))}
	for _, r := range rows {
		name, ok := names[r.ChannelID]
		if !ok {
			name = fmt.Sprintf("Channel %d", r.ChannelID)
		}
		stats.Models = append(stats.Models, ChannelModelStats{
			ModelName:        r.ModelName,
			ChannelID:        r.ChannelID,
			ChannelName:      name,
			RequestCount:     r.RequestCount,
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
			TotalTokens:      r.Tokens(),
		})
		stats.Summary.TotalRequests += r.RequestCount
		stats.Summary.TotalPromptTokens += r.PromptTokens
		stats.Summary.TotalCompletionTokens += r.CompletionTokens
		stats.Summary.TotalTokens += r.Tokens()
	}

	sort.SliceStable(stats.Models, func(i, j int) bool {
		a, b := stats.Models[i], stats.Models[j]
		if a.TotalTokens != b.TotalTokens {
			return a.TotalTokens > b.TotalTokens
		}
		if a.ModelName != b.ModelName {
			return a.ModelName < b.ModelName
		}
		return a.ChannelID < b.ChannelID
	})
	return stats, nil
}

// TokenTrend 令牌在区间内按 (天, 模型) 的用量，日期升序
func (s *Service) TokenTrend(ctx context.Context, tokenName, start, end string) ([]TokenTrendPoint, error) {
	filter, err := ParseRange(start, end, s.loc)
	if err != nil {
		return nil, err
	}
	filter.TokenName = tokenName

	rows, err := s.query(ctx, "TokenTrend", usage.Query{Filter: filter, Hourly: true})
	if err != nil {
		return nil, err
	}

	type key struct{ date, model string }
	index := make(map[key]*TokenTrendPoint)
	out := make([]*TokenTrendPoint, 0)
	for _, r := range rows {
		k := key{date: r.Bucket.In(s.loc).Format(usage.DateLayout), model: r.ModelName}
		p, ok := index[k]
		if !ok {
			p = &TokenTrendPoint{Date: k.date, ModelName: k.model}
			index[k] = p
			out = append(out, p)
		}
		p.RequestCount += r.RequestCount
		p.TotalTokens += r.Tokens()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ModelName < out[j].ModelName
	})

	points := make([]TokenTrendPoint, len(out))
	for i, p := range out {
		points[i] = *p
	}
	return points, nil
}

// Models 启用渠道提供的模型，加上只在价格文档中配置过的模型，按名称升序
func (s *Service) Models(ctx context.Context) ([]ModelChannels, error) {
	channels, err := s.repo.Channels(ctx, true)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*ModelChannels)
	for _, ch := range channels {
		for _, model := range strings.Split(ch.Models, ",") {
			model = strings.TrimSpace(model)
			if model == "" {
				continue
			}
			entry, ok := index[model]
			if !ok {
				entry = &ModelChannels{ModelName: model, ChannelIDs: []int{}, ChannelNames: []string{}}
				index[model] = entry
			}
			if !slices.Contains(entry.ChannelIDs, ch.ID) {
				entry.ChannelIDs = append(entry.ChannelIDs, ch.ID)
				entry.ChannelNames = append(entry.ChannelNames, ch.Name)
			}
		}
	}

	if s.catalog != nil {
		doc, err := s.catalog.Get(ctx)
		if err != nil {
			s.logger.Warn("读取价格文档失败，仅返回渠道模型", zap.Error(err))
		}
		for _, model := range doc.Keys() {
			if _, ok := index[model]; !ok {
				index[model] = &ModelChannels{ModelName: model, ChannelIDs: []int{}, ChannelNames: []string{CustomChannelName}}
			}
		}
	}

	out := make([]ModelChannels, 0, len(index))
	for _, entry := range index {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelName < out[j].ModelName })
	return out, nil
}

// channelNames 渠道 ID -> 名称；查询失败时返回空表，调用方使用占位名
func (s *Service) channelNames(ctx context.Context) map[int]string {
	channels, err := s.repo.Channels(ctx, false)
	if err != nil {
		s.logger.Warn("加载渠道列表失败", zap.Error(err))
		return map[int]string{}
	}
	names := make(map[int]string, len(channels))
	for _, ch := range channels {
		names[ch.ID] = ch.Name
	}
	return names
}
