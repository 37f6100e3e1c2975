package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	FrameTotal      *prometheus.CounterVec // labels: result=ok|no_response|ack_only|frame_mismatch|transport_error
	ResyncDiscarded prometheus.Counter     // 重同步丢弃的字节数
	PollTotal       *prometheus.CounterVec // labels: mode=deep|shallow
	CommandTotal    *prometheus.CounterVec // labels: command, result=verified|unverified
	CommandAttempts *prometheus.CounterVec // labels: command
	Reading         *prometheus.GaugeVec   // labels: register
	Connected       prometheus.Gauge       // 设备在线 1/0
	APIRejected     prometheus.Counter     // 被限流拒绝的 API 请求
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FrameTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eload_frame_total",
			Help: "Register query responses by decode result.",
		}, []string{"result"}),
		ResyncDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eload_resync_discarded_bytes_total",
			Help: "Bytes discarded while resynchronizing the response stream.",
		}),
		PollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eload_poll_total",
			Help: "Poll cycles by mode.",
		}, []string{"mode"}),
		CommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eload_command_total",
			Help: "Set commands by verification result.",
		}, []string{"command", "result"}),
		CommandAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eload_command_attempts_total",
			Help: "Set command attempts including retries.",
		}, []string{"command"}),
		Reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eload_reading",
			Help: "Last decoded value per register.",
		}, []string{"register"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eload_connected",
			Help: "Whether the instrument is connected and answering.",
		}),
		APIRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eload_api_rate_limited_total",
			Help: "API requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.FrameTotal, m.ResyncDiscarded, m.PollTotal, m.CommandTotal,
		m.CommandAttempts, m.Reading, m.Connected, m.APIRejected)
	return m
}
