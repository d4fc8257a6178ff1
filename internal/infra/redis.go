package infra

import (
	"context"
	"fmt"
	"time"

	"usagehub/internal/config"
	"usagehub/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions 把配置转换为 go-redis 通用参数
// 支持三种模式: standalone(单节点), sentinel(哨兵), cluster(集群)
func RedisOptions(cfg *config.RedisConfig) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		Password:     cfg.Password,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}

	switch cfg.Mode {
	case "", "standalone":
		opts.Addrs = []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
		opts.DB = cfg.DB
	case "sentinel":
		if cfg.MasterName == "" || len(cfg.SentinelAddrs) == 0 {
			return nil, fmt.Errorf("哨兵模式需要配置 master_name 和 sentinel_addrs")
		}
		opts.MasterName = cfg.MasterName
		opts.Addrs = cfg.SentinelAddrs
		opts.SentinelPassword = cfg.SentinelPassword
		opts.DB = cfg.DB
	case "cluster":
		if len(cfg.ClusterAddrs) == 0 {
			return nil, fmt.Errorf("集群模式需要配置 cluster_addrs")
		}
		opts.Addrs = cfg.ClusterAddrs
	default:
		return nil, fmt.Errorf("不支持的 Redis 模式: %s (可选: standalone, sentinel, cluster)", cfg.Mode)
	}
	return opts, nil
}

// InitRedis 初始化 Redis 连接并做一次连通性检查
func InitRedis(ctx context.Context, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	var rdb redis.UniversalClient
	switch cfg.Mode {
	case "sentinel":
		rdb = redis.NewFailoverClient(opts.Failover())
	case "cluster":
		rdb = redis.NewClusterClient(opts.Cluster())
	default:
		rdb = redis.NewClient(opts.Simple())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功",
		zap.String("mode", cfg.Mode),
		zap.Strings("addrs", opts.Addrs),
	)
	return rdb, nil
}
