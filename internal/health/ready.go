package health

import "sync/atomic"

// Readiness 进程级就绪标记（HTTP 已监听、仪器工作器已启动）
type Readiness struct {
	httpReady   atomic.Bool
	workerReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetHTTPReady(v bool)   { r.httpReady.Store(v) }
func (r *Readiness) SetWorkerReady(v bool) { r.workerReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.httpReady.Load() && r.workerReady.Load()
}
