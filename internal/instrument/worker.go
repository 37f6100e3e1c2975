package instrument

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
)

// ErrNotConnected 设备未连接
var ErrNotConnected = errors.New("instrument not connected")

// ErrWorkerStopped 工作器已停止
var ErrWorkerStopped = errors.New("instrument worker stopped")

// Opener 打开串口
type Opener func() (Port, error)

// Sink 轮询结果接收方（数据记录等外部组件）
type Sink interface {
	Consume(s Snapshot)
}

// SinkFunc 函数适配 Sink
type SinkFunc func(s Snapshot)

func (f SinkFunc) Consume(s Snapshot) { f(s) }

// WorkerConfig 工作器配置
type WorkerConfig struct {
	PollInterval      time.Duration
	ReconnectInterval time.Duration
	DeepPollEvery     int // 每 N 个周期做一次全量轮询，0 表示只在连接后和显式请求时
	QueueSize         int
}

// DefaultWorkerConfig 默认配置
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:      time.Second,
		ReconnectInterval: 5 * time.Second,
		QueueSize:         16,
	}
}

// Status 工作器对外状态
type Status struct {
	Connected           bool                   `json:"connected"`
	Readings            map[string]dl24m.Value `json:"readings"`
	Failed              []string               `json:"failed,omitempty"`
	LastPoll            time.Time              `json:"last_poll"`
	Polls               int64                  `json:"polls"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	LastError           string                 `json:"last_error,omitempty"`
}

type request struct {
	ctx   context.Context
	cmd   dl24m.Command
	value dl24m.Value
	mode  *dl24m.Mode
	resp  chan response
}

type response struct {
	outcome Outcome
	err     error
}

// Worker 串口唯一持有者：在同一个 goroutine 中串行执行轮询与设置命令，
// 保证同一时刻只有一个请求/应答在途。
type Worker struct {
	open  Opener
	cfg   WorkerConfig
	opts  []Option
	log   *zap.Logger
	sinks []Sink

	requests chan request
	deepCh   chan struct{}

	mu      sync.RWMutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
	status  Status
}

// NewWorker 创建工作器；opts 透传给每次连接创建的 Driver
func NewWorker(open Opener, cfg WorkerConfig, log *zap.Logger, opts ...Option) *Worker {
	def := DefaultWorkerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		open:     open,
		cfg:      cfg,
		opts:     append([]Option{WithLogger(log)}, opts...),
		log:      log,
		requests: make(chan request, cfg.QueueSize),
		deepCh:   make(chan struct{}, 1),
	}
}

// AddSink 注册轮询结果接收方（需在 Start 之前调用）
func (w *Worker) AddSink(s Sink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sinks = append(w.sinks, s)
}

// Start 启动工作器
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop(ctx, w.done)
	w.log.Info("instrument worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Int("deep_poll_every", w.cfg.DeepPollEvery))
	return nil
}

// Stop 停止工作器（关闭输出并释放串口）
func (w *Worker) Stop() {
	w.mu.Lock()
	stopped := w.markStopped(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	if stopped {
		w.log.Info("instrument worker stopped")
	}
}

// markStopped 将 done 对应的运行实例标记为已停止，调用方需持有 w.mu
func (w *Worker) markStopped(done chan struct{}) bool {
	if !w.running || w.done != done {
		return false
	}
	w.running = false
	close(done)
	return true
}

// IsRunning 是否正在运行
func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Status 返回最近一次轮询的状态
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	st := w.status
	st.Readings = make(map[string]dl24m.Value, len(w.status.Readings))
	for k, v := range w.status.Readings {
		st.Readings[k] = v
	}
	return st
}

// RequestDeepPoll 下一个周期读取全部辅助寄存器
func (w *Worker) RequestDeepPoll() {
	select {
	case w.deepCh <- struct{}{}:
	default:
	}
}

// Execute 将设置命令排队，等待工作器执行完毕
func (w *Worker) Execute(ctx context.Context, cmd dl24m.Command, v dl24m.Value) (Outcome, error) {
	resp, err := w.submit(ctx, request{ctx: ctx, cmd: cmd, value: v})
	return resp.outcome, err
}

// SetMode 将模式切换排队
func (w *Worker) SetMode(ctx context.Context, m dl24m.Mode) error {
	_, err := w.submit(ctx, request{ctx: ctx, cmd: dl24m.CmdSetMode, mode: &m})
	return err
}

func (w *Worker) submit(ctx context.Context, req request) (response, error) {
	w.mu.RLock()
	running, done := w.running, w.done
	w.mu.RUnlock()
	if !running {
		return response{}, ErrWorkerStopped
	}

	req.resp = make(chan response, 1)
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-done:
		return response{}, ErrWorkerStopped
	}

	select {
	case r := <-req.resp:
		return r, r.err
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-done:
		return response{}, ErrWorkerStopped
	}
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer w.wg.Done()

	var (
		drv         *Driver
		lastAttempt time.Time
		deep        = true
		cycles      int
	)
	defer func() {
		if drv != nil {
			if err := drv.Close(); err != nil {
				w.log.Warn("close port failed", zap.Error(err))
			}
		}
		w.setConnected(false, nil)
	}()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	tick := func() {
		if drv == nil {
			if !lastAttempt.IsZero() && time.Since(lastAttempt) < w.cfg.ReconnectInterval {
				return
			}
			lastAttempt = time.Now()
			drv = w.connect()
			if drv == nil {
				return
			}
			deep = true
		}

		cycles++
		if w.cfg.DeepPollEvery > 0 && cycles%w.cfg.DeepPollEvery == 0 {
			deep = true
		}
		snap, err := drv.Poll(ctx, deep)
		deep = false
		w.publish(snap, err)
		if dl24m.IsTransportError(err) {
			w.log.Error("transport failure, reconnecting", zap.Error(err))
			_ = drv.port.Close()
			drv = nil
			w.setConnected(false, err)
		}
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			stopped := w.markStopped(done)
			w.mu.Unlock()
			if stopped {
				w.log.Info("instrument worker context done, stopping", zap.Error(ctx.Err()))
			}
			return
		case <-done:
			return
		case <-w.deepCh:
			deep = true
		case req := <-w.requests:
			req.resp <- w.handle(drv, req)
		case <-ticker.C:
			tick()
		}
	}
}

func (w *Worker) handle(drv *Driver, req request) response {
	if drv == nil {
		return response{err: ErrNotConnected}
	}
	if err := req.ctx.Err(); err != nil {
		return response{err: err}
	}
	if req.mode != nil {
		w.log.Info("set mode", zap.Stringer("mode", *req.mode))
		return response{err: drv.SetMode(*req.mode)}
	}
	out, err := drv.Execute(req.ctx, req.cmd, req.value)
	if err == nil {
		w.mu.Lock()
		w.status.Readings = drv.State().Snapshot().Readings
		w.mu.Unlock()
	}
	return response{outcome: out, err: err}
}

// connect 打开串口并探测设备；失败时记录日志并返回 nil（降级运行，稍后重试）
func (w *Worker) connect() *Driver {
	port, err := w.open()
	if err != nil {
		w.log.Warn("open instrument port failed", zap.Error(err))
		w.setConnected(false, err)
		return nil
	}
	drv := NewDriver(port, w.opts...)
	if !drv.Probe() {
		w.log.Warn("instrument probe failed")
		_ = port.Close()
		w.setConnected(false, errors.New("probe failed"))
		return nil
	}
	w.log.Info("instrument connected")
	w.setConnected(true, nil)
	return drv
}

func (w *Worker) setConnected(ok bool, err error) {
	w.mu.Lock()
	w.status.Connected = ok
	if err != nil {
		w.status.LastError = err.Error()
	}
	sinks := append([]Sink(nil), w.sinks...)
	w.mu.Unlock()

	for _, s := range sinks {
		if o, isObs := s.(ConnectionObserver); isObs {
			o.ConnectionChanged(ok)
		}
	}
}

// ConnectionObserver 可选接口：Sink 同时关心连接状态
type ConnectionObserver interface {
	ConnectionChanged(connected bool)
}

func (w *Worker) publish(snap Snapshot, err error) {
	w.mu.Lock()
	w.status.Readings = snap.Readings
	w.status.Failed = snap.Failed
	w.status.LastPoll = time.Now()
	w.status.Polls++
	if len(snap.Failed) > 0 {
		w.status.ConsecutiveFailures++
		if err != nil {
			w.status.LastError = err.Error()
		} else {
			w.status.LastError = fmt.Sprintf("read failed: %v", snap.Failed)
		}
	} else {
		w.status.ConsecutiveFailures = 0
	}
	sinks := append([]Sink(nil), w.sinks...)
	w.mu.Unlock()

	for _, s := range sinks {
		s.Consume(snap)
	}
}
