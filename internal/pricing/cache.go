package pricing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"usagehub/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source 定价规则来源，返回各规则表的原始 JSON 文本
type Source interface {
	FetchRules(ctx context.Context) (map[string]string, error)
}

// ConfigCache 定价规则快照缓存
// Get 从不阻塞；Refresh 在 TTL 内为空操作，失败时保留上一份快照
type ConfigCache struct {
	source  Source
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	current     atomic.Pointer[Config]
	lastSuccess atomic.Int64
	group       singleflight.Group
}

// NewConfigCache 创建定价规则缓存
func NewConfigCache(source Source, ttl, timeout time.Duration, logger *zap.Logger) *ConfigCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ConfigCache{
		source:  source,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	c.current.Store(EmptyConfig())
	return c
}

// SetClock 替换时钟（测试使用）
func (c *ConfigCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get 返回当前快照
func (c *ConfigCache) Get() *Config {
	return c.current.Load()
}

// Fresh 上次成功刷新是否仍在 TTL 内
func (c *ConfigCache) Fresh() bool {
	last := c.lastSuccess.Load()
	if last == 0 {
		return false
	}
	return c.now().Sub(time.Unix(0, last)) < c.ttl
}

// Refresh 超过 TTL 时从来源拉取全部规则并原子替换快照
// 并发调用合并为一次拉取
func (c *ConfigCache) Refresh(ctx context.Context) error {
	if c.Fresh() {
		metrics.PricingRefreshTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		if c.Fresh() {
			return nil, nil
		}
		return nil, c.load(ctx)
	})
	return err
}

func (c *ConfigCache) load(ctx context.Context) error {
	// 合并的调用方共享本次拉取，不受单个请求取消影响
	fetchCtx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, c.timeout)
		defer cancel()
	}

	raw, err := c.source.FetchRules(fetchCtx)
	if err != nil {
		metrics.PricingRefreshTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("刷新定价规则失败，继续使用旧快照", zap.Error(err))
		return fmt.Errorf("刷新定价规则失败: %w", err)
	}

	now := c.now()
	cfg, warnings := ParseRules(raw, now)
	for _, w := range warnings {
		metrics.PricingMalformedTables.WithLabelValues(w.Table).Inc()
		c.logger.Warn("定价规则表格式错误，已按空表处理", zap.String("table", w.Table), zap.Error(w.Err))
	}

	c.current.Store(cfg)
	c.lastSuccess.Store(now.UnixNano())
	metrics.PricingRefreshTotal.WithLabelValues("success").Inc()
	c.logger.Info("定价规则已刷新",
		zap.Int("model_price", len(cfg.ModelPrice)),
		zap.Int("model_ratio", len(cfg.ModelRatio)),
		zap.Int("completion_ratio", len(cfg.CompletionRatio)),
	)
	return nil
}
