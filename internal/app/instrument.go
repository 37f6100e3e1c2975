package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/eload-server/internal/config"
	"github.com/taoyao-code/eload-server/internal/instrument"
	"github.com/taoyao-code/eload-server/internal/metrics"
	"github.com/taoyao-code/eload-server/internal/serial"
	"github.com/taoyao-code/eload-server/internal/simulator"
)

// SimDevice 串口设备名为该值时使用内置模拟设备
const SimDevice = "sim"

// NewOpener 按配置返回串口打开函数
func NewOpener(cfg cfgpkg.SerialConfig, log *zap.Logger) instrument.Opener {
	if cfg.Device == SimDevice {
		log.Warn("using simulated instrument")
		dev := simulator.New()
		return func() (instrument.Port, error) { return dev, nil }
	}
	return func() (instrument.Port, error) {
		p, err := serial.Open(cfg, log.Named("serial"))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NewWorker 创建仪器工作器，并挂接指标与日志 Sink
func NewWorker(cfg *cfgpkg.Config, appm *metrics.AppMetrics, log *zap.Logger) *instrument.Worker {
	ic := cfg.Instrument
	w := instrument.NewWorker(
		NewOpener(cfg.Serial, log),
		instrument.WorkerConfig{
			PollInterval:      ic.PollInterval,
			ReconnectInterval: ic.ReconnectInterval,
			DeepPollEvery:     ic.DeepPollEvery,
			QueueSize:         ic.QueueSize,
		},
		log.Named("instrument"),
		instrument.WithMetrics(appm),
		instrument.WithMaxScan(ic.MaxScan),
		instrument.WithRetryPolicy(instrument.RetryPolicy{
			MaxAttempts: ic.Retry.MaxAttempts,
			SettleDelay: ic.Retry.SettleDelay,
			RetryDelay:  ic.Retry.RetryDelay,
		}),
	)
	w.AddSink(NewMetricsSink(appm))
	w.AddSink(NewLogSink(log.Named("poll")))
	return w
}
