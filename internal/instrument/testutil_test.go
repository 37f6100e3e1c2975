package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/taoyao-code/eload-server/internal/simulator"
)

// recordingSleeper 记录等待时长，不真正休眠
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestDriver(dev *simulator.Device, opts ...Option) (*Driver, *recordingSleeper) {
	rs := &recordingSleeper{}
	all := append([]Option{WithSleeper(rs.Sleep)}, opts...)
	return NewDriver(dev, all...), rs
}

// commandCodes 提取每次写入的命令字节
func commandCodes(dev *simulator.Device) []byte {
	var codes []byte
	for _, w := range dev.Writes() {
		codes = append(codes, w[2])
	}
	return codes
}
