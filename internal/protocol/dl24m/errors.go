package dl24m

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResponse 读超时，未收到任何字节
	ErrNoResponse = errors.New("no response")
	// ErrAckOnly 设备只回了 0x6F 确认字节，没有数据
	ErrAckOnly = errors.New("ack only")
	// ErrFrameMismatch 长度/帧头/帧尾/命令回显校验失败
	ErrFrameMismatch = errors.New("frame mismatch")
	// ErrValueRange 数值无法编码为 2 字节负载
	ErrValueRange = errors.New("value out of range")
	// ErrUnknownRegister 寄存器表中不存在
	ErrUnknownRegister = errors.New("unknown register")
)

// TransportError 串口 I/O 故障（断开、句柄关闭等）
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError 判断是否为传输层错误
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// 错误分类标签（日志与指标共用）
const (
	KindOK            = "ok"
	KindNoResponse    = "no_response"
	KindAckOnly       = "ack_only"
	KindFrameMismatch = "frame_mismatch"
	KindTransport     = "transport_error"
	KindOther         = "other"
)

// Classify 将错误映射为稳定的分类标签
func Classify(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrNoResponse):
		return KindNoResponse
	case errors.Is(err, ErrAckOnly):
		return KindAckOnly
	case errors.Is(err, ErrFrameMismatch):
		return KindFrameMismatch
	case IsTransportError(err):
		return KindTransport
	default:
		return KindOther
	}
}
