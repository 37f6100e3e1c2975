package main

import (
	"flag"

	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/eload-server/internal/config"
	"github.com/taoyao-code/eload-server/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default $ELOAD_CONFIG or ./configs/eload.yaml)")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动服务（阻塞直到收到退出信号）
	if err := bootstrap.Run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}
