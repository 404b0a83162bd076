package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingPublisher struct {
	calls int64
	err   error
}

func (p *countingPublisher) PublishScheduled(context.Context) (int, error) {
	atomic.AddInt64(&p.calls, 1)
	return 1, p.err
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("every minute please", &countingPublisher{}, zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_Run(t *testing.T) {
	t.Run("按间隔执行并随上下文停止", func(t *testing.T) {
		p := &countingPublisher{}
		s, err := New("@every 1s", p, zap.NewNop())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			_ = s.Run(ctx)
			close(done)
		}()

		assert.Eventually(t, func() bool { return atomic.LoadInt64(&p.calls) >= 1 }, 3*time.Second, 50*time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	})

	t.Run("任务出错不影响调度", func(t *testing.T) {
		p := &countingPublisher{err: errors.New("store down")}
		s, err := New("@every 1s", p, zap.NewNop())
		require.NoError(t, err)
		assert.NotPanics(t, s.publishDue)
		assert.Equal(t, int64(1), atomic.LoadInt64(&p.calls))
	})
}

type flakyIndexes struct {
	failures int64
	calls    int64
	ready    atomic.Bool
}

func (f *flakyIndexes) EnsureIndexes(context.Context) error {
	if atomic.AddInt64(&f.calls, 1) <= f.failures {
		return errors.New("server selection timeout")
	}
	f.ready.Store(true)
	return nil
}

func (f *flakyIndexes) IndexesReady() bool { return f.ready.Load() }

func TestScheduler_RetryIndexes(t *testing.T) {
	t.Run("失败后重试直到成功", func(t *testing.T) {
		ix := &flakyIndexes{failures: 2}
		s, err := New("@every 1h", &countingPublisher{}, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, s.RetryIndexes("@every 1m", ix))

		s.ensureIndexes(ix)
		s.ensureIndexes(ix)
		assert.False(t, ix.IndexesReady())
		s.ensureIndexes(ix)
		assert.True(t, ix.IndexesReady())

		s.ensureIndexes(ix)
		assert.Equal(t, int64(3), atomic.LoadInt64(&ix.calls))
	})

	t.Run("非法表达式", func(t *testing.T) {
		s, err := New("@every 1h", &countingPublisher{}, zap.NewNop())
		require.NoError(t, err)
		assert.Error(t, s.RetryIndexes("sometimes", &flakyIndexes{}))
	})

	t.Run("调度器按间隔触发重试", func(t *testing.T) {
		ix := &flakyIndexes{failures: 1}
		s, err := New("@every 1h", &countingPublisher{}, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, s.RetryIndexes("@every 1s", ix))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = s.Run(ctx) }()

		assert.Eventually(t, ix.IndexesReady, 5*time.Second, 50*time.Millisecond)
	})
}
