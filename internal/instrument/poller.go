package instrument

import (
	"context"

	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
)

// Poll 执行一个轮询周期：
//  1. 尽力清空输入缓冲
//  2. 读取全部高频寄存器
//  3. deep=true 时读取全部辅助寄存器，否则按轮转游标读取一个
//
// 单个寄存器读取失败只保留旧值；遇到传输层错误立即结束本轮并返回该错误。
func (d *Driver) Poll(ctx context.Context, deep bool) (Snapshot, error) {
	d.clearInput()

	var failed []string
	read := func(r dl24m.Register) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := d.refresh(r); err != nil {
			failed = append(failed, r.Name)
			if dl24m.IsTransportError(err) {
				return err
			}
		}
		return nil
	}

	err := d.pollRegisters(deep, read)
	if d.metrics != nil {
		mode := "shallow"
		if deep {
			mode = "deep"
		}
		d.metrics.PollTotal.WithLabelValues(mode).Inc()
	}

	snap := d.state.Snapshot()
	snap.Failed = failed
	return snap, err
}

func (d *Driver) pollRegisters(deep bool, read func(dl24m.Register) error) error {
	for _, r := range dl24m.Frequent() {
		if err := read(r); err != nil {
			return err
		}
	}

	aux := dl24m.Auxiliary()
	if !deep {
		return read(aux[d.state.nextAux(len(aux))])
	}
	for _, r := range aux {
		if err := read(r); err != nil {
			return err
		}
	}
	return nil
}
