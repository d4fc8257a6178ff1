package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Repository new-api 日志库只读访问
type Repository struct {
	db      *gorm.DB
	loc     *time.Location
	timeout time.Duration
}

// NewRepository 创建用量仓储
// loc 决定日期与时间桶的边界，timeout 约束每次查询
func NewRepository(db *gorm.DB, loc *time.Location, timeout time.Duration) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{db: db, loc: loc, timeout: timeout}
}

// Location 日期边界使用的时区
func (r *Repository) Location() *time.Location {
	return r.loc
}

type rowScan struct {
	TokenName        string
	ModelName        string
	ChannelID        int
	HourIndex        int64
	PromptTokens     int64
	CompletionTokens int64
	RequestCount     int64
}

// Rows 按 (令牌, 模型, 渠道, 小时) 的任意组合聚合用量
func (r *Repository) Rows(ctx context.Context, q Query) ([]Row, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	// 分组维度：模型总是参与分组
	selects := []string{"model_name"}
	groups := []string{"model_name"}
	if q.GroupByToken {
		selects = append(selects, "token_name")
		groups = append(groups, "token_name")
	}
	if q.GroupByChannel {
		selects = append(selects, "channel_id")
		groups = append(groups, "channel_id")
	}

	// 小时桶按时区偏移在 SQL 中分组，日/周/月由调用方折叠
	offset := zoneOffset(r.loc, q.Start)
	if q.Hourly {
		expr := r.indexExpr(offset, 3600)
		selects = append(selects, expr+" AS hour_index")
		groups = append(groups, expr)
	}
	selects = append(selects,
		"SUM(prompt_tokens) AS prompt_tokens",
		"SUM(completion_tokens) AS completion_tokens",
		"COUNT(*) AS request_count",
	)

	var scans []rowScan
	err := r.db.WithContext(ctx).
		Table("logs").
		Select(strings.Join(selects, ", ")).
		Scopes(r.filter(q.Filter)).
		Group(strings.Join(groups, ", ")).
		Scan(&scans).Error
	if err != nil {
		return nil, fmt.Errorf("查询用量失败: %w", err)
	}

	// 负值视为 0
	rows := make([]Row, len(scans))
	for i, s := range scans {
		rows[i] = Row{
			ModelName:        s.ModelName,
			ChannelID:        s.ChannelID,
			PromptTokens:     unsigned(s.PromptTokens),
			CompletionTokens: unsigned(s.CompletionTokens),
			RequestCount:     unsigned(s.RequestCount),
		}
		if q.GroupByToken {
			rows[i].IdentityKey = s.TokenName
		}
		if q.Hourly {
			rows[i].Bucket = time.Unix(s.HourIndex*3600-int64(offset), 0).In(r.loc)
		}
	}
	return rows, nil
}

// DistinctTokenNames 有消费记录的非空令牌名，升序
func (r *Repository) DistinctTokenNames(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var names []string
	err := r.db.WithContext(ctx).
		Table("logs").
		Distinct("token_name").
		Scopes(r.filter(Filter{NamedOnly: true})).
		Order("token_name").
		Pluck("token_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("查询令牌列表失败: %w", err)
	}
	return names, nil
}

// TokenNamesBefore 在 cutoff 之前有过消费记录的令牌名集合
func (r *Repository) TokenNamesBefore(ctx context.Context, cutoff time.Time) (map[string]struct{}, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var names []string
	err := r.db.WithContext(ctx).
		Table("logs").
		Distinct("token_name").
		Scopes(r.filter(Filter{NamedOnly: true, End: cutoff})).
		Pluck("token_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("查询历史令牌失败: %w", err)
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

// HasUsage 是否存在满足条件的消费记录
func (r *Repository) HasUsage(ctx context.Context, f Filter) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var hits []int
	err := r.db.WithContext(ctx).
		Table("logs").
		Select("1").
		Scopes(r.filter(f)).
		Limit(1).
		Scan(&hits).Error
	if err != nil {
		return false, fmt.Errorf("查询用量记录失败: %w", err)
	}
	return len(hits) > 0, nil
}

// LatestTokenName 令牌最近一条消费记录上的名称，无记录时返回空串
func (r *Repository) LatestTokenName(ctx context.Context, tokenID int) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var names []string
	err := r.db.WithContext(ctx).
		Table("logs").
		Scopes(r.filter(Filter{TokenID: &tokenID, NamedOnly: true})).
		Order("created_at DESC").
		Limit(1).
		Pluck("token_name", &names).Error
	if err != nil {
		return "", fmt.Errorf("查询令牌名称失败: %w", err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

// AvailableDates 有消费记录的日期，降序
func (r *Repository) AvailableDates(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	offset := zoneOffset(r.loc, time.Time{})
	expr := r.indexExpr(offset, 86400)

	var indexes []int64
	err := r.db.WithContext(ctx).
		Table("logs").
		Select("DISTINCT "+expr+" AS day_index").
		Scopes(r.filter(Filter{})).
		Order("day_index DESC").
		Scan(&indexes).Error
	if err != nil {
		return nil, fmt.Errorf("查询可用日期失败: %w", err)
	}

	dates := make([]string, len(indexes))
	for i, idx := range indexes {
		dates[i] = time.Unix(idx*86400-int64(offset), 0).In(r.loc).Format(DateLayout)
	}
	return dates, nil
}

// Channels 渠道列表；onlyEnabled 时仅返回启用渠道
func (r *Repository) Channels(ctx context.Context, onlyEnabled bool) ([]Channel, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := r.db.WithContext(ctx).Table("channels").Select("id, name, models, status")
	if onlyEnabled {
		query = query.Where("status = ?", ChannelStatusEnabled)
	}

	var channels []Channel
	if err := query.Order("id").Scan(&channels).Error; err != nil {
		return nil, fmt.Errorf("查询渠道失败: %w", err)
	}
	return channels, nil
}

// filter 公共过滤条件：仅统计消费日志
func (r *Repository) filter(f Filter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("type = ?", LogTypeConsume)
		if f.TokenID != nil {
			db = db.Where("token_id = ?", *f.TokenID)
		} else if f.TokenName != "" {
			db = db.Where("token_name = ?", f.TokenName)
		}
		if f.NamedOnly {
			db = db.Where("token_name != ?", "")
		}
		if !f.Start.IsZero() {
			db = db.Where("created_at >= ?", f.Start.Unix())
		}
		if !f.End.IsZero() {
			db = db.Where("created_at < ?", f.End.Unix())
		}
		return db
	}
}

// indexExpr created_at 平移到本地时区后的整数桶序号
func (r *Repository) indexExpr(offset int, width int) string {
	if r.db.Dialector.Name() == "mysql" {
		return fmt.Sprintf("((created_at + (%d)) DIV %d)", offset, width)
	}
	return fmt.Sprintf("((created_at + (%d)) / %d)", offset, width)
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func unsigned(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
