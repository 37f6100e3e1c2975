package dl24m

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind 物理量类型
type ValueKind uint8

const (
	ValueNumber ValueKind = iota
	ValueInteger
	ValueBool
	ValueDuration
)

// Value 寄存器读数或设置目标值
type Value struct {
	Kind     ValueKind
	Number   float64
	Duration time.Duration
}

func Float(f float64) Value          { return Value{Kind: ValueNumber, Number: f} }
func Int(n int) Value                { return Value{Kind: ValueInteger, Number: float64(n)} }
func Duration(d time.Duration) Value { return Value{Kind: ValueDuration, Duration: d} }

func Bool(b bool) Value {
	if b {
		return Value{Kind: ValueBool, Number: 1}
	}
	return Value{Kind: ValueBool}
}

// IsNumber 数值类读数（布尔/整数也视为数值）
func (v Value) IsNumber() bool {
	return v.Kind != ValueDuration && !math.IsNaN(v.Number) && !math.IsInf(v.Number, 0)
}

// Equal 精确比较：时长与时长比较，其余按数值比较（true == 1）
func (v Value) Equal(o Value) bool {
	if v.Kind == ValueDuration || o.Kind == ValueDuration {
		return v.Kind == o.Kind && v.Duration == o.Duration
	}
	return v.Number == o.Number
}

func (v Value) String() string {
	switch v.Kind {
	case ValueDuration:
		return FormatClock(v.Duration)
	case ValueBool:
		return strconv.FormatBool(v.Number != 0)
	default:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueDuration:
		return json.Marshal(FormatClock(v.Duration))
	case ValueBool:
		return json.Marshal(v.Number != 0)
	default:
		return json.Marshal(v.Number)
	}
}

// FormatClock 按 hh:mm:ss 格式化
func FormatClock(d time.Duration) string {
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// ParseClock 解析 hh:mm:ss / mm:ss / 秒数
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad clock %q", s)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

// DecodeValue 按寄存器解码 3 字节负载
func DecodeValue(r Register, p [3]byte) Value {
	if r.Decoding == DecodeDuration {
		return Duration(time.Duration(p[0])*time.Hour +
			time.Duration(p[1])*time.Minute +
			time.Duration(p[2])*time.Second)
	}
	raw := uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2])
	return Float(float64(raw) / r.Divisor())
}

// EncodeValue 将设置目标值编码为 2 字节负载
//   - 时长：总秒数，大端 uint16
//   - 浮点：[整数部分, 小数部分*100 取整]，即设备使用的定点百分位格式
//   - 输出开启：固定 01 00
//   - 其余整数：大端 uint16
func EncodeValue(cmd Command, v Value) ([2]byte, error) {
	var p [2]byte
	switch v.Kind {
	case ValueDuration:
		secs := int64(v.Duration / time.Second)
		if secs < 0 || secs > math.MaxUint16 {
			return p, fmt.Errorf("%w: %s", ErrValueRange, FormatClock(v.Duration))
		}
		binary.BigEndian.PutUint16(p[:], uint16(secs))
		return p, nil
	case ValueNumber:
		if !v.IsNumber() || v.Number < 0 {
			return p, fmt.Errorf("%w: %v", ErrValueRange, v.Number)
		}
		ip, fp := math.Modf(v.Number)
		if ip > math.MaxUint8 {
			return p, fmt.Errorf("%w: %v", ErrValueRange, v.Number)
		}
		p[0] = byte(ip)
		p[1] = byte(math.RoundToEven(fp * 100))
		return p, nil
	}

	if cmd == CmdOutput && v.Number != 0 {
		return [2]byte{0x01, 0x00}, nil
	}
	if v.Number < 0 || v.Number > math.MaxUint16 || v.Number != math.Trunc(v.Number) {
		return p, fmt.Errorf("%w: %v", ErrValueRange, v.Number)
	}
	binary.BigEndian.PutUint16(p[:], uint16(v.Number))
	return p, nil
}
