package instrument

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
)

// RetryPolicy 设置命令的重试策略
type RetryPolicy struct {
	MaxAttempts int           // 最多尝试次数（含首次）
	SettleDelay time.Duration // 发送后等待设备生效的时间
	RetryDelay  time.Duration // 两次尝试之间的间隔
}

// DefaultRetryPolicy 3 次尝试，发送后等待 0.5s，重试间隔 0.7s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		SettleDelay: 500 * time.Millisecond,
		RetryDelay:  700 * time.Millisecond,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.SettleDelay < 0 {
		p.SettleDelay = 0
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	return p
}

// Sleeper 可取消的等待
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext 默认等待实现
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Outcome 一次设置命令的执行结果。
// 重试耗尽不视为错误：Verified=false，状态中保留最后一次读到的（可能过期的）值。
type Outcome struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Requested dl24m.Value   `json:"requested"`
	Observed  *dl24m.Value  `json:"observed,omitempty"` // 最后一次成功回读的值
	Verified  bool          `json:"verified"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Execute 发送设置命令并回读校验寄存器确认生效，不一致时按策略重试。
// 清零命令校验通过后会重新读取全部辅助寄存器。
func (d *Driver) Execute(ctx context.Context, cmd dl24m.Command, v dl24m.Value) (Outcome, error) {
	out := Outcome{ID: uuid.NewString(), Command: cmd.String(), Requested: v}
	reg, ok := cmd.VerifyRegister()
	if !ok {
		return out, ErrUnverifiable
	}
	// 先校验可编码，避免无效值写入串口
	if _, err := dl24m.EncodeValue(cmd, v); err != nil {
		return out, err
	}

	start := d.now()
	log := d.log.With(zap.String("cmd_id", out.ID), zap.Stringer("cmd", cmd), zap.Stringer("value", v))

	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		out.Attempts = attempt
		if err := d.Set(cmd, v); err != nil {
			log.Warn("set command failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		if err := d.sleep(ctx, d.policy.SettleDelay); err != nil {
			return d.finish(out, start), err
		}

		got, err := d.refresh(reg)
		if err == nil {
			out.Observed = &got
			if got.Equal(v) {
				out.Verified = true
				break
			}
		}

		if attempt < d.policy.MaxAttempts {
			log.Info("verification mismatch, retrying",
				zap.Int("attempt", attempt),
				zap.String("reg", reg.Name),
				zap.Stringer("observed", d.observed(reg)))
			if err := d.sleep(ctx, d.policy.RetryDelay); err != nil {
				return d.finish(out, start), err
			}
		}
	}

	if out.Verified {
		log.Info("command verified", zap.Int("attempts", out.Attempts))
		if cmd == dl24m.CmdReset {
			for _, r := range dl24m.Auxiliary() {
				_, _ = d.refresh(r)
			}
		}
	} else {
		log.Warn("command not verified, keeping last observed value",
			zap.Int("attempts", out.Attempts),
			zap.String("reg", reg.Name),
			zap.Stringer("observed", d.observed(reg)))
	}
	if d.metrics != nil {
		result := "unverified"
		if out.Verified {
			result = "verified"
		}
		d.metrics.CommandTotal.WithLabelValues(cmd.String(), result).Inc()
		d.metrics.CommandAttempts.WithLabelValues(cmd.String()).Add(float64(out.Attempts))
	}
	return d.finish(out, start), nil
}

func (d *Driver) finish(out Outcome, start time.Time) Outcome {
	out.Elapsed = d.now().Sub(start)
	return out
}

func (d *Driver) observed(r dl24m.Register) dl24m.Value {
	v, _ := d.state.Get(r.Name)
	return v
}
