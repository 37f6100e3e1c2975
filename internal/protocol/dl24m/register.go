package dl24m

import "fmt"

// Decoding 寄存器负载的解码方式
type Decoding uint8

const (
	DecodeScalar   Decoding = iota // 24 位大端无符号整数 / 倍率
	DecodeDuration                 // 时、分、秒各 1 字节
)

const defaultScale = 1000.0

// Register 只读寄存器描述（查询命令 >= 0x10，应答固定 8 字节）
type Register struct {
	Name     string
	Code     byte
	Scale    float64
	Decoding Decoding
}

// Divisor 返回有效倍率（未配置时为 1000）
func (r Register) Divisor() float64 {
	if r.Scale == 0 {
		return defaultScale
	}
	return r.Scale
}

func (r Register) String() string {
	return fmt.Sprintf("%s(0x%02X)", r.Name, r.Code)
}

var (
	IsOn         = Register{Name: "is_on", Code: 0x10, Scale: 1}
	Voltage      = Register{Name: "voltage", Code: 0x11, Scale: 1000}
	Current      = Register{Name: "current", Code: 0x12, Scale: 1000}
	Elapsed      = Register{Name: "time", Code: 0x13, Decoding: DecodeDuration}
	CapacityAh   = Register{Name: "cap_ah", Code: 0x14, Scale: 1000}
	CapacityWh   = Register{Name: "cap_wh", Code: 0x15, Scale: 1000}
	Temperature  = Register{Name: "temp", Code: 0x16, Scale: 1}
	CurrentLimit = Register{Name: "set_current", Code: 0x17, Scale: 100}
	VoltageLimit = Register{Name: "set_voltage", Code: 0x18, Scale: 100}
	Timer        = Register{Name: "set_timer", Code: 0x19, Decoding: DecodeDuration}
)

var (
	frequent  = []Register{IsOn, Voltage, Current, Elapsed, CapacityAh}
	auxiliary = []Register{CapacityWh, Temperature, CurrentLimit, VoltageLimit, Timer}
)

// Frequent 每个轮询周期都读取的寄存器
func Frequent() []Register { return append([]Register(nil), frequent...) }

// Auxiliary 轮转读取的辅助寄存器（固定顺序）
func Auxiliary() []Register { return append([]Register(nil), auxiliary...) }

// Registers 全部已知寄存器
func Registers() []Register {
	out := make([]Register, 0, len(frequent)+len(auxiliary))
	out = append(out, frequent...)
	return append(out, auxiliary...)
}

// LookupRegister 按名称查找寄存器
func LookupRegister(name string) (Register, error) {
	for _, r := range Registers() {
		if r.Name == name {
			return r, nil
		}
	}
	return Register{}, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
}

// IsQuery 查询类命令会返回 8 字节应答，设置类命令不返回（或只回 0x6F）
func IsQuery(code byte) bool { return code >= 0x10 }

// Command 设置类命令
type Command byte

const (
	CmdOutput           Command = 0x01
	CmdSetCurrent       Command = 0x02 // 电流（或其它模式下的功率/电阻）设定
	CmdSetVoltageCutoff Command = 0x03
	CmdSetTimer         Command = 0x04
	CmdReset            Command = 0x05 // 清零累计数据
	CmdSetMode          Command = 0x06
)

var commandNames = map[Command]string{
	CmdOutput:           "enable",
	CmdSetCurrent:       "set_current",
	CmdSetVoltageCutoff: "set_voltage",
	CmdSetTimer:         "set_timer",
	CmdReset:            "reset",
	CmdSetMode:          "set_mode",
}

// 命令 -> 校验寄存器
var verifyRegisters = map[Command]Register{
	CmdOutput:           IsOn,
	CmdSetCurrent:       CurrentLimit,
	CmdSetVoltageCutoff: VoltageLimit,
	CmdSetTimer:         Timer,
	CmdReset:            CapacityAh,
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("cmd(0x%02X)", byte(c))
}

// VerifyRegister 返回命令对应的回读校验寄存器；模式设置没有可回读的寄存器
func (c Command) VerifyRegister() (Register, bool) {
	r, ok := verifyRegisters[c]
	return r, ok
}

// ParseCommand 按名称解析命令
func ParseCommand(name string) (Command, error) {
	for c, n := range commandNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

// Mode 负载工作模式（0x06 命令，负载为 00 mode）
type Mode uint8

const (
	ModeCC Mode = iota // 恒流
	ModeCV             // 恒压
	ModeCR             // 恒阻
	ModeCP             // 恒功率
)

var modeNames = [...]string{"CC", "CV", "CR", "CP"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode 解析模式名称（CC/CV/CR/CP）
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}
