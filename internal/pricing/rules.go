package pricing

import (
	"encoding/json"
	"fmt"
	"time"
)

// 定价规则表在 options 表中的键名
const (
	TableModelRatio      = "ModelRatio"
	TableCompletionRatio = "CompletionRatio"
	TableModelPrice      = "ModelPrice"
)

// RuleTables 刷新时读取的全部规则表
var RuleTables = []string{TableModelRatio, TableCompletionRatio, TableModelPrice}

// RuleTable 模型到数值的规则映射，缺失键需显式处理
type RuleTable map[string]float64

// Lookup 查询模型规则；配置为 0 的值视为存在
func (t RuleTable) Lookup(model string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t[model]
	return v, ok
}

// LookupOr 查询模型规则，缺失时返回默认值
func (t RuleTable) LookupOr(model string, def float64) float64 {
	if v, ok := t.Lookup(model); ok {
		return v
	}
	return def
}

// Config 定价规则快照，刷新时整体替换，从不原地修改
type Config struct {
	ModelPrice      RuleTable `json:"modelPrice"`
	ModelRatio      RuleTable `json:"modelRatio"`
	CompletionRatio RuleTable `json:"completionRatio"`
	RefreshedAt     time.Time `json:"refreshedAt"`
}

// EmptyConfig 返回不含任何规则的快照（首次刷新前使用）
func EmptyConfig() *Config {
	return &Config{
		ModelPrice:      RuleTable{},
		ModelRatio:      RuleTable{},
		CompletionRatio: RuleTable{},
	}
}

// TableError 单张规则表解析失败
type TableError struct {
	Table string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("解析定价规则表 %s 失败: %v", e.Table, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

// ParseRules 将原始 JSON 规则表解析为快照，解析失败的表按空表处理并返回告警
func ParseRules(raw map[string]string, refreshedAt time.Time) (*Config, []*TableError) {
	cfg := EmptyConfig()
	cfg.RefreshedAt = refreshedAt

	var warnings []*TableError
	for _, name := range RuleTables {
		value, ok := raw[name]
		if !ok || value == "" {
			continue
		}

		table := RuleTable{}
		if err := json.Unmarshal([]byte(value), &table); err != nil {
			warnings = append(warnings, &TableError{Table: name, Err: err})
			continue
		}

		switch name {
		case TableModelRatio:
			cfg.ModelRatio = table
		case TableCompletionRatio:
			cfg.CompletionRatio = table
		case TableModelPrice:
			cfg.ModelPrice = table
		}
	}
	return cfg, warnings
}
