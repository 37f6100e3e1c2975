package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/api"
	"github.com/taoyao-code/eload-server/internal/api/middleware"
	"github.com/taoyao-code/eload-server/internal/app"
	cfgpkg "github.com/taoyao-code/eload-server/internal/config"
	"github.com/taoyao-code/eload-server/internal/metrics"
)

// Run 统一启动流程，阻塞直到收到 SIGINT/SIGTERM
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, cfg, log)
}

// RunContext 启动工作器与 HTTP 服务，ctx 取消后优雅关闭
func RunContext(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	instanceID := app.GenerateInstanceID()
	log = log.With(zap.String("instance", instanceID))
	log.Info("starting eload server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("device", cfg.Serial.Device))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	ready := app.NewReady()

	// ========== 阶段2: 仪器工作器（设备离线时降级运行并定期重连）==========
	// 工作器生命周期由 Stop 控制，保证关闭时 HTTP 已停止接收命令
	worker := app.NewWorker(cfg, appm, log)
	if err := worker.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer worker.Stop()
	ready.SetWorkerReady(true)

	// ========== 阶段3: HTTP 服务 ==========
	healthAgg := app.NewHealthAggregator(worker, cfg.Instrument.FailureThreshold)
	httpSrv := app.NewHTTPServer(cfg, metrics.Handler(reg), ready.Ready, log.Named("http"))

	var limiter *middleware.RateLimiter
	if cfg.API.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.API.RateLimit.PerSecond, cfg.API.RateLimit.Burst)
	}
	httpSrv.Register(func(r *gin.Engine) {
		api.RegisterInstrumentRoutes(r, worker, api.RouteOptions{
			Auth: middleware.AuthConfig{
				APIKeys: cfg.API.Auth.APIKeys,
				Enabled: cfg.API.Auth.Enabled,
			},
			Limiter:        limiter,
			OnRateLimited:  appm.APIRejected.Inc,
			CommandTimeout: cfg.Instrument.CommandTimeout,
		}, log.Named("api"))
		app.RegisterHealthRoutes(r, healthAgg)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Start() }()
	ready.SetHTTPReady(true)

	// ========== 阶段4: 等待关闭 ==========
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			runErr = err
		}
	}
	ready.SetHTTPReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("http shutdown failed", zap.Error(err))
	}
	log.Info("http server stopped")

	// 工作器停止时关闭负载输出并释放串口
	worker.Stop()
	log.Info("shutdown complete")
	return runErr
}
