package health

import (
	"context"
	"time"

	"github.com/taoyao-code/eload-server/internal/instrument"
)

// StatusSource 提供仪器工作器状态
type StatusSource interface {
	Status() instrument.Status
	IsRunning() bool
}

// InstrumentChecker 电子负载连接健康检查器
//   - 未运行或未连接：Unhealthy
//   - 连续 degradedAfter 轮存在读取失败：Degraded
type InstrumentChecker struct {
	src           StatusSource
	degradedAfter int
}

// NewInstrumentChecker 创建检查器（degradedAfter<=0 时取 3）
func NewInstrumentChecker(src StatusSource, degradedAfter int) *InstrumentChecker {
	if degradedAfter <= 0 {
		degradedAfter = 3
	}
	return &InstrumentChecker{src: src, degradedAfter: degradedAfter}
}

func (c *InstrumentChecker) Name() string {
	return "instrument"
}

func (c *InstrumentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st := c.src.Status()

	details := map[string]interface{}{
		"connected":            st.Connected,
		"polls":                st.Polls,
		"consecutive_failures": st.ConsecutiveFailures,
	}
	if !st.LastPoll.IsZero() {
		details["last_poll"] = st.LastPoll
	}
	if st.LastError != "" {
		details["last_error"] = st.LastError
	}

	status, message := StatusHealthy, "ok"
	switch {
	case !c.src.IsRunning():
		status, message = StatusUnhealthy, "worker stopped"
	case !st.Connected:
		status, message = StatusUnhealthy, "instrument not connected"
	case st.ConsecutiveFailures >= c.degradedAfter:
		status, message = StatusDegraded, "register reads failing"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
