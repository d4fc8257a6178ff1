package identity

import (
	"context"
	"fmt"

	"usagehub/internal/usage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Token new-api 令牌记录
type Token struct {
	ID   int    `gorm:"column:id"`
	Key  string `gorm:"column:key"`
	Name string `gorm:"column:name"`
}

// Store 令牌注册表
type Store interface {
	// FindByKey 按密钥查找令牌，未命中返回 nil, nil
	FindByKey(ctx context.Context, key string) (*Token, error)
}

// UsageLookup 身份解析需要的日志库查询
type UsageLookup interface {
	LatestTokenName(ctx context.Context, tokenID int) (string, error)
	HasUsage(ctx context.Context, f usage.Filter) (bool, error)
}

// GormStore 基于 tokens 表的令牌注册表
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建令牌注册表
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FindByKey 按密钥查找令牌
func (s *GormStore) FindByKey(ctx context.Context, key string) (*Token, error) {
	var tokens []Token
	err := s.db.WithContext(ctx).
		Table("tokens").
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Limit(1).
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("查询令牌失败: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	return &tokens[0], nil
}
