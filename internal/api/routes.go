package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/api/middleware"
)

// RouteOptions /api 路由组的保护配置
type RouteOptions struct {
	Auth           middleware.AuthConfig
	Limiter        *middleware.RateLimiter // nil 表示不限流
	OnRateLimited  func()
	CommandTimeout time.Duration
}

// RegisterInstrumentRoutes 注册电子负载控制路由
func RegisterInstrumentRoutes(r gin.IRouter, ctrl Controller, opts RouteOptions, logger *zap.Logger) {
	if r == nil || ctrl == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewInstrumentHandler(ctrl, opts.CommandTimeout, logger)

	api := r.Group("/api")
	api.Use(middleware.RequestTracing())
	if opts.Auth.Enabled {
		api.Use(middleware.APIKeyAuth(opts.Auth, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(opts.Auth.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	if opts.Limiter != nil {
		api.Use(middleware.RateLimit(opts.Limiter, opts.OnRateLimited))
	}

	api.GET("/state", handler.GetState)
	api.POST("/commands", handler.ExecuteCommand)
	api.POST("/mode", handler.SetMode)
	api.POST("/poll", handler.Poll)

	logger.Info("instrument routes registered", zap.Int("endpoints", 4))
}
