package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/instrument"
	"github.com/taoyao-code/eload-server/internal/metrics"
)

// NewMetrics 初始化注册表与应用指标
func NewMetrics() (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	return reg, appm
}

// MetricsSink 把连接状态同步到 eload_connected
type MetricsSink struct {
	m *metrics.AppMetrics
}

func NewMetricsSink(m *metrics.AppMetrics) *MetricsSink { return &MetricsSink{m: m} }

func (s *MetricsSink) Consume(instrument.Snapshot) {}

func (s *MetricsSink) ConnectionChanged(connected bool) {
	if connected {
		s.m.Connected.Set(1)
	} else {
		s.m.Connected.Set(0)
	}
}

// LogSink 记录轮询结果：有失败寄存器时 warn，否则 debug
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Consume(snap instrument.Snapshot) {
	if len(snap.Failed) > 0 {
		s.log.Warn("poll incomplete", zap.Strings("failed", snap.Failed))
		return
	}
	if ce := s.log.Check(zap.DebugLevel, "poll"); ce != nil {
		fields := make([]zap.Field, 0, len(snap.Readings))
		for name, v := range snap.Readings {
			fields = append(fields, zap.Stringer(name, v))
		}
		ce.Write(fields...)
	}
}

func (s *LogSink) ConnectionChanged(connected bool) {
	s.log.Info("instrument connection changed", zap.Bool("connected", connected))
}
