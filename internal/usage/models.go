package usage

import (
	"errors"
	"time"
)

// LogTypeConsume new-api 消费类日志
const LogTypeConsume = 2

// ErrInvalidDate 日期参数缺失或格式错误
var ErrInvalidDate = errors.New("invalid date")

// Row 日志库聚合后的用量行，只读事实
type Row struct {
	IdentityKey      string
	ModelName        string
	ChannelID        int
	PromptTokens     uint64
	CompletionTokens uint64
	RequestCount     uint64
	// Bucket 小时桶起点（仅 Query.Hourly 时有值）
	Bucket time.Time
}

// Tokens prompt + completion
func (r Row) Tokens() uint64 {
	return r.PromptTokens + r.CompletionTokens
}

// Filter 用量过滤条件
type Filter struct {
	TokenID   *int
	TokenName string
	// Start/End 为左闭右开区间，零值表示不限
	Start time.Time
	End   time.Time
	// NamedOnly 排除 token_name 为空的行
	NamedOnly bool
}

// Query 聚合查询
type Query struct {
	Filter
	GroupByToken   bool
	GroupByChannel bool
	Hourly         bool
}

// Channel new-api 渠道
type Channel struct {
	ID     int    `gorm:"column:id"`
	Name   string `gorm:"column:name"`
	Models string `gorm:"column:models"`
	Status int    `gorm:"column:status"`
}

// ChannelStatusEnabled 渠道启用状态
const ChannelStatusEnabled = 1
