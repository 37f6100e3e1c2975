package simulator

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
)

// ErrClosed 端口已关闭
var ErrClosed = errors.New("simulator: port closed")

// Device DL24M 行为模拟器，实现 instrument.Port。
// 只模拟寄存器读写与帧格式，不做真实电气仿真；读超时立即返回短结果。
type Device struct {
	mu sync.Mutex

	regs   map[byte]uint32 // 查询寄存器原始值（24 位）
	mode   dl24m.Mode
	out    []byte
	writes [][]byte
	closed bool

	// Noise 在每个应答之前插入的字节（模拟变长状态帧/错位），可为 nil
	Noise func(cmd byte) []byte
	// AckSets 设置命令是否回 0x6F
	AckSets bool
	// IgnoreSets 忽略接下来的 N 条设置命令（用于模拟设备未生效）
	IgnoreSets int
	// Silent 不应答任何查询
	Silent bool
	// WriteErr 非 nil 时写入失败
	WriteErr error
}

// New 创建模拟器，默认电压 12.000V、温度 25℃
func New() *Device {
	d := &Device{regs: make(map[byte]uint32)}
	for _, r := range dl24m.Registers() {
		d.regs[r.Code] = 0
	}
	d.regs[dl24m.Voltage.Code] = 12000
	d.regs[dl24m.Temperature.Code] = 25
	return d
}

// SetRaw 设置寄存器原始值（时长类寄存器按 hh<<16|mm<<8|ss 存放）
func (d *Device) SetRaw(code byte, raw uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[code] = raw & 0xFFFFFF
}

// Raw 读取寄存器原始值
func (d *Device) Raw(code byte) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[code]
}

// Mode 当前工作模式
func (d *Device) Mode() dl24m.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Writes 收到的全部下行帧
func (d *Device) Writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.writes...)
}

// Inject 向输入缓冲追加任意字节
func (d *Device) Inject(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = append(d.out, b...)
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if d.WriteErr != nil {
		return 0, d.WriteErr
	}
	d.writes = append(d.writes, append([]byte(nil), p...))

	n := len(p)
	for len(p) >= dl24m.OutboundLen {
		f := p[:dl24m.OutboundLen]
		p = p[dl24m.OutboundLen:]
		if f[0] != 0xB1 || f[1] != 0xB2 || f[5] != 0xB6 {
			continue
		}
		d.handle(f[2], [2]byte{f[3], f[4]})
	}
	return n, nil
}

func (d *Device) handle(cmd byte, payload [2]byte) {
	if dl24m.IsQuery(cmd) {
		if d.Silent {
			return
		}
		if d.Noise != nil {
			d.out = append(d.out, d.Noise(cmd)...)
		}
		raw := d.regs[cmd]
		d.out = append(d.out, 0xCA, 0xCB, cmd, byte(raw>>16), byte(raw>>8), byte(raw), 0xCE, 0xCF)
		return
	}

	if d.AckSets {
		d.out = append(d.out, dl24m.AckByte)
	}
	if d.IgnoreSets > 0 {
		d.IgnoreSets--
		return
	}

	fixed := uint32(payload[0])*100 + uint32(payload[1])
	switch dl24m.Command(cmd) {
	case dl24m.CmdOutput:
		d.regs[dl24m.IsOn.Code] = uint32(payload[0])
	case dl24m.CmdSetCurrent:
		d.regs[dl24m.CurrentLimit.Code] = fixed
	case dl24m.CmdSetVoltageCutoff:
		d.regs[dl24m.VoltageLimit.Code] = fixed
	case dl24m.CmdSetTimer:
		secs := uint32(binary.BigEndian.Uint16(payload[:]))
		d.regs[dl24m.Timer.Code] = (secs/3600)<<16 | (secs/60%60)<<8 | secs%60
	case dl24m.CmdReset:
		d.regs[dl24m.CapacityAh.Code] = 0
		d.regs[dl24m.CapacityWh.Code] = 0
		d.regs[dl24m.Elapsed.Code] = 0
	case dl24m.CmdSetMode:
		d.mode = dl24m.Mode(payload[1])
	}
}

// ReadFull 读取最多 n 字节；数据不足时立即返回短结果（等同于读超时）
func (d *Device) ReadFull(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	k := min(n, len(d.out))
	b := append([]byte(nil), d.out[:k]...)
	d.out = d.out[k:]
	return b, nil
}

// Buffered 未读字节数
func (d *Device) Buffered() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	return len(d.out), nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed 是否已关闭
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
