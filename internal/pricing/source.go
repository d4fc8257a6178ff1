package pricing

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// optionRow new-api options 表行
type optionRow struct {
	Key   string `gorm:"column:key"`
	Value string `gorm:"column:value"`
}

// OptionsSource 从日志库 options 表读取定价规则
type OptionsSource struct {
	db *gorm.DB
}

// NewOptionsSource 创建 options 表规则来源
func NewOptionsSource(db *gorm.DB) *OptionsSource {
	return &OptionsSource{db: db}
}

// FetchRules 读取 ModelRatio / CompletionRatio / ModelPrice 三张规则表
func (s *OptionsSource) FetchRules(ctx context.Context) (map[string]string, error) {
	keys := make([]interface{}, 0, len(RuleTables))
	for _, name := range RuleTables {
		keys = append(keys, name)
	}

	var rows []optionRow
	err := s.db.WithContext(ctx).
		Table("options").
		Where(clause.IN{Column: clause.Column{Name: "key"}, Values: keys}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 options 表失败: %w", err)
	}

	raw := make(map[string]string, len(rows))
	for _, row := range rows {
		raw[row.Key] = row.Value
	}
	return raw, nil
}

// StaticSource 固定规则来源（CLI 离线模式与测试使用）
type StaticSource map[string]string

// FetchRules 返回固定规则
func (s StaticSource) FetchRules(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}
