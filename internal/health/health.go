package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// checkTimeout 单项依赖检查的超时
const checkTimeout = 2 * time.Second

// Pinger 可探测连通性的依赖，例如文档存储与 Redis
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	deps   map[string]Pinger
	order  []string
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// 参数:
//   - store: 文档存储，必须提供
//   - uploadDir: 上传根目录，就绪检查要求其存在
//   - logger: 日志
func NewHealthChecker(store Pinger, uploadDir string, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		deps:   map[string]Pinger{},
		logger: logger,
	}
	hc.AddDependency("database", store)

	// 协程数量异常通常意味着泄漏
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	hc.health.AddReadinessCheck("upload-dir", func() error {
		info, err := os.Stat(uploadDir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", uploadDir)
		}
		return nil
	})
	return hc
}

// AddDependency 注册需要就绪检查的外部依赖
func (hc *HealthChecker) AddDependency(name string, dep Pinger) {
	if dep == nil {
		return
	}
	hc.deps[name] = dep
	hc.order = append(hc.order, name)
	hc.health.AddReadinessCheck(name, healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return dep.Ping(ctx)
	}, checkTimeout))
}

// LiveHandler 存活检查
func (hc *HealthChecker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 就绪检查
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}

// CheckHealth 逐项探测依赖，全部正常时 ok 为 true
func (hc *HealthChecker) CheckHealth(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(hc.order)+1)
	ok := true
	for _, name := range hc.order {
		pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := hc.deps[name].Ping(pingCtx)
		cancel()
		if err != nil {
			ok = false
			results[name] = "ERROR"
			hc.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		results[name] = "OK"
	}
	results["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return results, ok
}
