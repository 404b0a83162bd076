// Package scheduler 运行定时任务：发布到期的定时文章，并在启动时索引创建失败后补建索引。
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Publisher 发布到期文章，返回处理条数
type Publisher interface {
	PublishScheduled(ctx context.Context) (int, error)
}

// IndexEnsurer 可重复执行的索引创建
type IndexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
	IndexesReady() bool
}

// jobTimeout 单次任务的最长执行时间
const jobTimeout = 30 * time.Second

// Scheduler 基于 cron 的定时任务调度器
type Scheduler struct {
	cron      *cron.Cron
	publisher Publisher
	log       *zap.Logger
}

// New 创建调度器并注册发布任务
//
// 参数:
//   - spec: cron 表达式，支持 "@every 1m" 形式
//   - publisher: 文章发布实现
//   - log: 日志
func New(spec string, publisher Publisher, log *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		)),
		publisher: publisher,
		log:       log,
	}
	if _, err := s.cron.AddFunc(spec, s.publishDue); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	return s, nil
}

// RetryIndexes 注册索引补建任务，索引就绪后任务不再访问存储
func (s *Scheduler) RetryIndexes(spec string, ix IndexEnsurer) error {
	if _, err := s.cron.AddFunc(spec, func() { s.ensureIndexes(ix) }); err != nil {
		return fmt.Errorf("invalid index retry spec %q: %w", spec, err)
	}
	return nil
}

// Run 启动调度并阻塞到 ctx 结束，返回前等待正在执行的任务完成
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) publishDue() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.publisher.PublishScheduled(ctx)
	if err != nil {
		s.log.Error("publish scheduled blogs failed", zap.Int("published", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("published scheduled blogs", zap.Int("count", n))
	}
}

func (s *Scheduler) ensureIndexes(ix IndexEnsurer) {
	if ix.IndexesReady() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := ix.EnsureIndexes(ctx); err != nil {
		s.log.Warn("index retry failed", zap.Error(err))
		return
	}
	s.log.Info("indexes created after retry")
}

// cronLogger 将 cron 内部日志转到 zap
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
