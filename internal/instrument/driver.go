package instrument

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/metrics"
	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
)

// Port 串口传输接口
//   - ReadFull 阻塞直到读满 n 字节或读超时，超时返回短结果
//   - Buffered 返回输入缓冲中尚未读取的字节数
type Port interface {
	dl24m.Source
	Write(p []byte) (int, error)
	Buffered() (int, error)
	Close() error
}

// ErrUnverifiable 命令没有可回读的校验寄存器
var ErrUnverifiable = errors.New("command has no verification register")

// Driver DL24M 协议驱动（单线程使用：同一时刻只允许一个请求/应答在途）
type Driver struct {
	port    Port
	scanner *dl24m.Scanner
	state   *State

	policy  RetryPolicy
	sleep   Sleeper
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.AppMetrics
	maxScan int
}

// Option 驱动配置项
type Option func(*Driver)

func WithLogger(l *zap.Logger) Option { return func(d *Driver) { d.log = l } }

func WithMetrics(m *metrics.AppMetrics) Option { return func(d *Driver) { d.metrics = m } }

func WithRetryPolicy(p RetryPolicy) Option { return func(d *Driver) { d.policy = p } }

func WithSleeper(s Sleeper) Option { return func(d *Driver) { d.sleep = s } }

func WithMaxScan(n int) Option { return func(d *Driver) { d.maxScan = n } }

// NewDriver 基于已打开的串口创建驱动
func NewDriver(port Port, opts ...Option) *Driver {
	d := &Driver{
		port:   port,
		state:  NewState(),
		policy: DefaultRetryPolicy(),
		sleep:  SleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	d.policy = d.policy.normalize()
	d.scanner = dl24m.NewScanner(port, d.maxScan)
	return d
}

// State 返回驱动持有的设备状态
func (d *Driver) State() *State { return d.state }

// Query 查询一个寄存器，返回解码结果或明确的错误类型
// （ErrNoResponse / ErrAckOnly / ErrFrameMismatch / *TransportError）
func (d *Driver) Query(r dl24m.Register) (dl24m.Value, error) {
	frame := dl24m.Encode(r.Code, [2]byte{0, 0})
	if _, err := d.port.Write(frame[:]); err != nil {
		return dl24m.Value{}, d.observe(r, &dl24m.TransportError{Op: "write", Err: err})
	}

	raw, err := d.scanner.ReadFrame()
	if n := d.scanner.Discarded(); n > 0 {
		d.log.Debug("resync discarded bytes", zap.String("reg", r.Name), zap.Int("bytes", n))
		if d.metrics != nil {
			d.metrics.ResyncDiscarded.Add(float64(n))
		}
	}
	if err != nil {
		return dl24m.Value{}, d.observe(r, err)
	}

	payload, err := dl24m.Decode(raw, r.Code)
	if err != nil {
		d.log.Debug("raw response", zap.String("reg", r.Name), zap.String("hex", hex.EncodeToString(raw)))
		return dl24m.Value{}, d.observe(r, err)
	}
	d.observe(r, nil)
	return dl24m.DecodeValue(r, payload), nil
}

// refresh 查询并在成功时更新状态；失败只记录日志，保留旧值
func (d *Driver) refresh(r dl24m.Register) (dl24m.Value, error) {
	v, err := d.Query(r)
	if err != nil {
		d.log.Warn("register read failed",
			zap.String("reg", r.Name),
			zap.Uint8("code", r.Code),
			zap.String("kind", dl24m.Classify(err)),
			zap.Error(err))
		return v, err
	}
	d.state.set(r.Name, v, d.now())
	if d.metrics != nil && v.IsNumber() {
		d.metrics.Reading.WithLabelValues(r.Name).Set(v.Number)
	}
	return v, nil
}

func (d *Driver) observe(r dl24m.Register, err error) error {
	if d.metrics != nil {
		d.metrics.FrameTotal.WithLabelValues(dl24m.Classify(err)).Inc()
	}
	return err
}

// Set 发送设置类命令（设备不应答或只回 0x6F，不读取）
func (d *Driver) Set(cmd dl24m.Command, v dl24m.Value) error {
	payload, err := dl24m.EncodeValue(cmd, v)
	if err != nil {
		return err
	}
	frame := dl24m.Encode(byte(cmd), payload)
	if _, err := d.port.Write(frame[:]); err != nil {
		return &dl24m.TransportError{Op: "write", Err: err}
	}
	d.log.Debug("set command sent",
		zap.Stringer("cmd", cmd),
		zap.String("frame", hex.EncodeToString(frame[:])))
	return nil
}

// SetMode 切换工作模式（无校验寄存器，只发送一次）
func (d *Driver) SetMode(m dl24m.Mode) error {
	return d.Set(dl24m.CmdSetMode, dl24m.Int(int(m)))
}

// Probe 读取电压并判断设备是否在线
func (d *Driver) Probe() bool {
	d.clearInput()
	v, err := d.refresh(dl24m.Voltage)
	return err == nil && v.IsNumber()
}

// TurnOff 关闭负载输出
func (d *Driver) TurnOff() error {
	return d.Set(dl24m.CmdOutput, dl24m.Bool(false))
}

// Close 关闭输出后释放串口
func (d *Driver) Close() error {
	if err := d.TurnOff(); err != nil {
		d.log.Warn("turn off before close failed", zap.Error(err))
	} else {
		_ = d.sleep(context.Background(), 200*time.Millisecond)
	}
	return d.port.Close()
}

// clearInput 尽力丢弃输入缓冲中的残留字节（错误忽略）
func (d *Driver) clearInput() {
	n, err := d.port.Buffered()
	if err != nil {
		d.log.Debug("query input buffer failed", zap.Error(err))
		return
	}
	if n <= 0 {
		return
	}
	junk, err := d.port.ReadFull(n)
	if err != nil {
		d.log.Debug("clear input buffer failed", zap.Error(err))
		return
	}
	d.log.Debug("input buffer cleared", zap.Int("bytes", len(junk)))
}
