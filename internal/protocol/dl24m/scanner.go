package dl24m

import "fmt"

// Source 原始字节源：ReadFull 阻塞直到读满 n 字节或读超时，超时返回短结果（可能为空）
type Source interface {
	ReadFull(n int) ([]byte, error)
}

// DefaultMaxScan 单次重同步最多丢弃的字节数
const DefaultMaxScan = 512

type scanState uint8

const (
	seekingHeader    scanState = iota // 寻找 CA
	confirmingHeader                  // 已有 CA，等待 CB
)

// Scanner 帧重同步扫描器
// 设备会在应答前插入变长状态帧，或应答本身发生错位；
// 扫描器先消费已读到的字节，再逐字节从串口读取，直到确认 CA CB 帧头。
type Scanner struct {
	src     Source
	maxScan int

	pending   []byte
	discarded int
}

// NewScanner 创建扫描器（maxScan<=0 时使用默认值）
func NewScanner(src Source, maxScan int) *Scanner {
	if maxScan <= 0 {
		maxScan = DefaultMaxScan
	}
	return &Scanner{src: src, maxScan: maxScan}
}

// Discarded 最近一次扫描丢弃的字节数
func (s *Scanner) Discarded() int { return s.discarded }

// ReadFrame 读取一帧 8 字节应答；帧头错位时进入重同步
func (s *Scanner) ReadFrame() ([]byte, error) {
	s.discarded = 0
	raw, err := s.src.ReadFull(InboundLen)
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}
	if len(raw) < 2 || HasHeader(raw) {
		return raw, nil
	}
	return s.Resync(raw)
}

// Resync 从 prefix（已读但帧头不匹配的字节）开始寻找帧头，返回以 CA CB 开头的帧。
// 每个不匹配分支都至少消费一个字节；读超时返回 ErrNoResponse。
func (s *Scanner) Resync(prefix []byte) ([]byte, error) {
	s.pending = append(s.pending[:0], prefix...)
	state := seekingHeader

	for {
		b, err := s.next()
		if err != nil {
			return nil, err
		}

		switch state {
		case seekingHeader:
			if b == inHeader[0] {
				state = confirmingHeader
				continue
			}
			s.discarded++
		case confirmingHeader:
			switch b {
			case inHeader[1]:
				rest, err := s.take(InboundLen - 2)
				frame := append([]byte{inHeader[0], inHeader[1]}, rest...)
				s.discarded += len(s.pending)
				s.pending = s.pending[:0]
				return frame, err
			case inHeader[0]:
				// 连续的 CA：丢弃前一个，当前字节作为新的候选帧头
				s.discarded++
			default:
				s.discarded += 2
				state = seekingHeader
			}
		}

		if s.discarded > s.maxScan {
			return nil, fmt.Errorf("%w: no header within %d bytes", ErrFrameMismatch, s.maxScan)
		}
	}
}

func (s *Scanner) next() (byte, error) {
	if len(s.pending) > 0 {
		b := s.pending[0]
		s.pending = s.pending[1:]
		return b, nil
	}
	raw, err := s.src.ReadFull(1)
	if err != nil {
		return 0, &TransportError{Op: "read", Err: err}
	}
	if len(raw) == 0 {
		return 0, ErrNoResponse
	}
	return raw[0], nil
}

// take 先取缓存字节，不足部分从串口补读；超时时返回短结果，由 Decode 判定
func (s *Scanner) take(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	k := min(n, len(s.pending))
	out = append(out, s.pending[:k]...)
	s.pending = s.pending[k:]
	if len(out) == n {
		return out, nil
	}
	raw, err := s.src.ReadFull(n - len(out))
	out = append(out, raw...)
	if err != nil {
		return out, &TransportError{Op: "read", Err: err}
	}
	return out, nil
}
