// Package serial 串口传输：在 tarm/serial 之上提供带超时的定长读取与输入缓冲计数。
package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/config"
)

// ErrClosed 端口已关闭
var ErrClosed = errors.New("serial port closed")

// pumpInterval 底层单次读取的超时，决定读泵响应关闭的速度
const pumpInterval = 100 * time.Millisecond

// Port 串口封装。
// 读泵 goroutine 持续把设备输出搬入内存缓冲，
// ReadFull 从缓冲取数据并在超时后返回短结果，Buffered 返回缓冲长度。
type Port struct {
	rw      io.ReadWriteCloser
	timeout time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	buf    []byte
	err    error // 读泵终止原因
	notify chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open 按配置打开串口；非法的校验位/停止位/数据位/流控配置记录告警并回退到默认值
func Open(cfg config.SerialConfig, log *zap.Logger) (*Port, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sc := tarmConfig(cfg, log)
	p, err := serial.OpenPort(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	log.Info("serial port opened",
		zap.String("device", sc.Name),
		zap.Int("baud", sc.Baud),
		zap.Uint8("data_bits", sc.Size),
		zap.String("parity", string(rune(sc.Parity))),
		zap.Uint8("stop_bits", uint8(sc.StopBits)))
	return NewPort(idleReader{p}, cfg.ReadTimeout, log), nil
}

// NewPort 基于任意字节流创建端口并启动读泵。
// rw.Read 返回 (0, nil) 表示暂无数据，其余错误使读泵终止。
func NewPort(rw io.ReadWriteCloser, timeout time.Duration, log *zap.Logger) *Port {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Port{
		rw:      rw,
		timeout: timeout,
		log:     log,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.pump()
	return p
}

func (p *Port) pump() {
	chunk := make([]byte, 256)
	for {
		n, err := p.rw.Read(chunk)
		if n > 0 {
			p.mu.Lock()
			p.buf = append(p.buf, chunk[:n]...)
			p.mu.Unlock()
			p.signal()
		}
		if err != nil {
			select {
			case <-p.done:
			default:
				p.log.Error("serial read failed", zap.Error(err))
			}
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			p.signal()
			return
		}
		select {
		case <-p.done:
			return
		default:
		}
	}
}

func (p *Port) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// ReadFull 读取 n 字节；超时返回已有的短结果（可能为空），读泵已终止时返回其错误
func (p *Port) ReadFull(n int) ([]byte, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if p.closed() {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		if len(p.buf) >= n || p.err != nil {
			out := p.takeLocked(n)
			err := p.err
			p.mu.Unlock()
			if len(out) < n && err != nil {
				return out, err
			}
			return out, nil
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-timer.C:
			p.mu.Lock()
			out := p.takeLocked(n)
			p.mu.Unlock()
			return out, nil
		case <-p.done:
			return nil, ErrClosed
		}
	}
}

func (p *Port) takeLocked(n int) []byte {
	k := min(n, len(p.buf))
	out := append([]byte(nil), p.buf[:k]...)
	p.buf = p.buf[k:]
	return out
}

// Buffered 输入缓冲中尚未读取的字节数
func (p *Port) Buffered() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed() {
		return 0, ErrClosed
	}
	if len(p.buf) == 0 && p.err != nil {
		return 0, p.err
	}
	return len(p.buf), nil
}

func (p *Port) Write(b []byte) (int, error) {
	if p.closed() {
		return 0, ErrClosed
	}
	return p.rw.Write(b)
}

// Close 关闭端口，读泵随底层读取返回而退出
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.closeErr = p.rw.Close()
	})
	return p.closeErr
}

func (p *Port) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// idleReader tarm/serial 在读超时时返回 (0, io.EOF)，这里转换为“暂无数据”
type idleReader struct {
	*serial.Port
}

func (r idleReader) Read(b []byte) (int, error) {
	n, err := r.Port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func tarmConfig(cfg config.SerialConfig, log *zap.Logger) *serial.Config {
	sc := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: pumpInterval,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	if sc.Baud <= 0 {
		log.Warn("invalid baud rate, using 9600", zap.Int("baud", cfg.Baud))
		sc.Baud = 9600
	}

	switch {
	case cfg.DataBits >= 5 && cfg.DataBits <= 8:
		sc.Size = byte(cfg.DataBits)
	case cfg.DataBits != 0:
		log.Warn("invalid data bits, using 8", zap.Int("data_bits", cfg.DataBits))
	}

	switch cfg.Parity {
	case "", "N", "n":
	case "O", "o":
		sc.Parity = serial.ParityOdd
	case "E", "e":
		sc.Parity = serial.ParityEven
	case "M", "m":
		sc.Parity = serial.ParityMark
	case "S", "s":
		sc.Parity = serial.ParitySpace
	default:
		log.Warn("invalid parity, using N", zap.String("parity", cfg.Parity))
	}

	switch cfg.StopBits {
	case "", "1":
	case "1.5":
		sc.StopBits = serial.Stop1Half
	case "2":
		sc.StopBits = serial.Stop2
	default:
		log.Warn("invalid stop bits, using 1", zap.String("stop_bits", cfg.StopBits))
	}

	switch cfg.FlowControl {
	case "", "none":
	default:
		log.Warn("flow control not supported, disabled", zap.String("flow_control", cfg.FlowControl))
	}
	return sc
}
