package dl24m

import "fmt"

// 帧格式
// 下行（主机 -> 负载）：B1 B2 | cmd | p0 p1 | B6，共 6 字节
// 上行（负载 -> 主机）：CA CB | cmd(回显) | p0 p1 p2 | CE CF，共 8 字节
// 设置类命令可能只回一个 0x6F 字节
const (
	OutboundLen = 6
	InboundLen  = 8

	AckByte = 0x6F
)

var (
	outHeader = [2]byte{0xB1, 0xB2}
	outTail   = byte(0xB6)

	inHeader = [2]byte{0xCA, 0xCB}
	inTail   = [2]byte{0xCE, 0xCF}
)

// Encode 构造一帧下行命令（payload 固定 2 字节）
func Encode(cmd byte, payload [2]byte) [OutboundLen]byte {
	return [OutboundLen]byte{outHeader[0], outHeader[1], cmd, payload[0], payload[1], outTail}
}

// HasHeader 判断缓冲区是否以上行帧头 CA CB 开始
func HasHeader(b []byte) bool {
	return len(b) >= 2 && b[0] == inHeader[0] && b[1] == inHeader[1]
}

// Decode 校验一帧上行数据并返回 3 字节负载
func Decode(raw []byte, expected byte) ([3]byte, error) {
	var payload [3]byte
	switch {
	case len(raw) == 0:
		return payload, ErrNoResponse
	case len(raw) == 1 && raw[0] == AckByte:
		return payload, ErrAckOnly
	case len(raw) < InboundLen:
		return payload, fmt.Errorf("%w: short frame (%d bytes)", ErrFrameMismatch, len(raw))
	case !HasHeader(raw):
		return payload, fmt.Errorf("%w: bad header % X", ErrFrameMismatch, raw[:2])
	case raw[6] != inTail[0] || raw[7] != inTail[1]:
		return payload, fmt.Errorf("%w: bad tail % X", ErrFrameMismatch, raw[6:8])
	case raw[2] != expected:
		return payload, fmt.Errorf("%w: echo 0x%02X, want 0x%02X", ErrFrameMismatch, raw[2], expected)
	}
	copy(payload[:], raw[3:6])
	return payload, nil
}
