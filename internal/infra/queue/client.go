package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"usagehub/internal/config"
	"usagehub/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueDailyReport(ctx context.Context, date string) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// RedisOpt 由 Redis 配置构造 asynq 连接参数
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	return &asynqClient{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *asynqClient) EnqueueDailyReport(ctx context.Context, date string) error {
	payload, err := json.Marshal(tasks.DailyReportPayload{Date: date})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeDailyReport, payload)

	// 日报不重试，避免重复推送；同一日期一小时内只入队一次
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Minute),
		asynq.Unique(time.Hour),
		asynq.Queue(tasks.QueueReport),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
