package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job 定时执行的日报任务，date 为空表示当天
type Job func(ctx context.Context, date string)

// Scheduler 按 cron 表达式触发日报
type Scheduler struct {
	spec    string
	job     Job
	cron    *cron.Cron
	logger  *zap.Logger
	mu      sync.Mutex
	running bool
}

// NewScheduler 创建调度器；loc 为 cron 表达式所在时区
func NewScheduler(spec string, loc *time.Location, job Job, logger *zap.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("无效的 cron 表达式 %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		spec:   spec,
		job:    job,
		cron:   cron.New(cron.WithLocation(loc)),
		logger: logger,
	}, nil
}

// Start 注册任务并启动；ctx 取消时自动停止
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("注册日报任务失败: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("日报调度已启动", zap.String("schedule", s.spec))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("日报任务异常", zap.Any("panic", r))
		}
	}()
	s.logger.Info("日报定时任务触发")
	s.job(ctx, "")
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("日报调度已停止")
}

// NextRun 下一次触发时间
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
