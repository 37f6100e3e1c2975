package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/eload-server/internal/health"
)

// NewHealthAggregator 创建健康检查聚合器
func NewHealthAggregator(src health.StatusSource, failureThreshold int) *health.Aggregator {
	return health.NewAggregator(health.NewInstrumentChecker(src, failureThreshold))
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// NewReady 进程级就绪标记
func NewReady() *health.Readiness {
	return health.New()
}
