package pool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped 协程池已停止，不再接受任务
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool 协程池
//
// 用于限制并发协程数量，例如期刊群发时限制同时打开的 SMTP 连接数
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func(context.Context)
	wg         sync.WaitGroup
	log        *zap.Logger

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数，小于 1 时按 1 处理
//   - queueSize: 任务队列大小
//   - log: 记录任务 panic
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(context.Context), queueSize),
		log:        log,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务
//
// 队列已满时阻塞，直到有空位或 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, task func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止接收任务，并等待已入队任务执行完毕
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.taskQueue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// worker 工作协程
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(ctx, task)
	}
}

// run 执行单个任务并捕获 panic
func (p *WorkerPool) run(ctx context.Context, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	task(ctx)
}

// Run 以最多 workers 个并发处理 items，全部完成后返回
//
// ctx 取消后尚未提交的条目不再处理，返回 ctx.Err()
func Run[T any](ctx context.Context, workers int, items []T, log *zap.Logger, fn func(context.Context, T)) error {
	p := NewWorkerPool(workers, len(items), log)
	p.Start(ctx)

	var submitErr error
	for _, item := range items {
		if err := p.Submit(ctx, func(ctx context.Context) { fn(ctx, item) }); err != nil {
			submitErr = err
			break
		}
	}
	p.Stop()
	return submitErr
}
