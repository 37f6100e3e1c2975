package instrument

import (
	"time"

	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
)

// State 设备读数快照（由 Driver 独占，只在解码成功后更新）
type State struct {
	values    map[string]dl24m.Value
	auxCursor int
	updatedAt time.Time
}

// NewState 初始化所有寄存器为零值
func NewState() *State {
	s := &State{values: make(map[string]dl24m.Value)}
	for _, r := range dl24m.Registers() {
		if r.Decoding == dl24m.DecodeDuration {
			s.values[r.Name] = dl24m.Duration(0)
		} else {
			s.values[r.Name] = dl24m.Float(0)
		}
	}
	return s
}

// Get 读取寄存器最近一次的值
func (s *State) Get(name string) (dl24m.Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

func (s *State) set(name string, v dl24m.Value, at time.Time) {
	s.values[name] = v
	s.updatedAt = at
}

// nextAux 返回当前轮转位置并前移游标
func (s *State) nextAux(n int) int {
	if n <= 0 {
		return 0
	}
	i := s.auxCursor % n
	s.auxCursor = (i + 1) % n
	return i
}

// Snapshot 拷贝当前状态
func (s *State) Snapshot() Snapshot {
	readings := make(map[string]dl24m.Value, len(s.values))
	for k, v := range s.values {
		readings[k] = v
	}
	return Snapshot{Readings: readings, AuxCursor: s.auxCursor, UpdatedAt: s.updatedAt}
}

// Snapshot 对外发布的只读状态
type Snapshot struct {
	Readings  map[string]dl24m.Value `json:"readings"`
	AuxCursor int                    `json:"aux_cursor"`
	UpdatedAt time.Time              `json:"updated_at"`
	Failed    []string               `json:"failed,omitempty"` // 本轮读取失败的寄存器
}
