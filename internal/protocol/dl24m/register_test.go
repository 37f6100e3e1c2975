package dl24m

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisters_Table(t *testing.T) {
	regs := Registers()
	require.Len(t, regs, 10)
	for i, r := range regs {
		assert.Equal(t, byte(0x10+i), r.Code, r.Name)
		assert.True(t, IsQuery(r.Code))
	}
	assert.Equal(t, []string{"cap_wh", "temp", "set_current", "set_voltage", "set_timer"}, names(Auxiliary()))
	assert.Equal(t, []string{"is_on", "voltage", "current", "time", "cap_ah"}, names(Frequent()))
	assert.False(t, IsQuery(byte(CmdSetMode)))
}

func names(rs []Register) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

func TestLookupRegister(t *testing.T) {
	r, err := LookupRegister("set_voltage")
	require.NoError(t, err)
	assert.Equal(t, VoltageLimit, r)
	assert.Equal(t, "set_voltage(0x18)", r.String())

	_, err = LookupRegister("power")
	assert.ErrorIs(t, err, ErrUnknownRegister)
}

func TestCommand_VerifyRegister(t *testing.T) {
	tests := []struct {
		name string
		want Register
	}{
		{"enable", IsOn},
		{"set_current", CurrentLimit},
		{"set_voltage", VoltageLimit},
		{"set_timer", Timer},
		{"reset", CapacityAh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCommand(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, c.String())
			r, ok := c.VerifyRegister()
			assert.True(t, ok)
			assert.Equal(t, tt.want, r)
		})
	}

	_, ok := CmdSetMode.VerifyRegister()
	assert.False(t, ok)
	_, err := ParseCommand("explode")
	assert.Error(t, err)
	assert.Equal(t, "cmd(0x7F)", Command(0x7F).String())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("CR")
	require.NoError(t, err)
	assert.Equal(t, ModeCR, m)
	assert.Equal(t, "CP", ModeCP.String())
	assert.Equal(t, "mode(9)", Mode(9).String())

	_, err = ParseMode("cc")
	assert.Error(t, err)
}
