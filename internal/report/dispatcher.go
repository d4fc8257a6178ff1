package report

import (
	"context"

	"go.uber.org/zap"
)

// Enqueuer 将日报投递到后台队列
type Enqueuer interface {
	EnqueueDailyReport(ctx context.Context, date string) error
}

// Dispatcher 定时触发时的执行方式：有队列走 asynq，否则同步执行
type Dispatcher struct {
	service  *Service
	enqueuer Enqueuer
	logger   *zap.Logger
}

// NewDispatcher 创建分发器；enqueuer 为 nil 时同步执行
func NewDispatcher(service *Service, enqueuer Enqueuer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{service: service, enqueuer: enqueuer, logger: logger}
}

// Dispatch 作为 Scheduler 的 Job 使用
func (d *Dispatcher) Dispatch(ctx context.Context, date string) {
	if d.enqueuer != nil {
		err := d.enqueuer.EnqueueDailyReport(ctx, date)
		if err == nil {
			d.logger.Info("日报任务已入队", zap.String("date", date))
			return
		}
		d.logger.Warn("日报任务入队失败，改为同步执行", zap.Error(err))
	}

	res := d.service.SendDailyReport(ctx, date)
	if !res.Success {
		d.logger.Warn("日报发送未成功",
			zap.String("date", res.Date),
			zap.String("error", res.Error),
			zap.String("reason", res.Reason),
		)
	}
}
