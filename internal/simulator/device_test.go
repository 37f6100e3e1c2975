package simulator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
)

func write(t *testing.T, d *Device, cmd dl24m.Command, p0, p1 byte) {
	t.Helper()
	f := dl24m.Encode(byte(cmd), [2]byte{p0, p1})
	_, err := d.Write(f[:])
	require.NoError(t, err)
}

func query(t *testing.T, d *Device, r dl24m.Register) []byte {
	t.Helper()
	f := dl24m.Encode(r.Code, [2]byte{})
	_, err := d.Write(f[:])
	require.NoError(t, err)
	b, err := d.ReadFull(8)
	require.NoError(t, err)
	return b
}

func TestDevice_QueryResponse(t *testing.T) {
	d := New()
	assert.Equal(t, []byte{0xCA, 0xCB, 0x11, 0x00, 0x2E, 0xE0, 0xCE, 0xCF}, query(t, d, dl24m.Voltage))

	// 无待读数据时返回空结果
	b, err := d.ReadFull(8)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestDevice_SetCommands(t *testing.T) {
	d := New()

	write(t, d, dl24m.CmdSetCurrent, 3, 12)
	assert.Equal(t, uint32(312), d.Raw(dl24m.CurrentLimit.Code))

	write(t, d, dl24m.CmdSetTimer, 0x0E, 0x11) // 3601s
	assert.Equal(t, uint32(1<<16|0<<8|1), d.Raw(dl24m.Timer.Code))

	write(t, d, dl24m.CmdOutput, 1, 0)
	assert.Equal(t, uint32(1), d.Raw(dl24m.IsOn.Code))

	d.SetRaw(dl24m.CapacityAh.Code, 1500)
	write(t, d, dl24m.CmdReset, 0, 0)
	assert.Zero(t, d.Raw(dl24m.CapacityAh.Code))

	write(t, d, dl24m.CmdSetMode, 0, byte(dl24m.ModeCP))
	assert.Equal(t, dl24m.ModeCP, d.Mode())

	n, err := d.Buffered()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, d.Writes(), 5)
}

func TestDevice_Faults(t *testing.T) {
	d := New()
	d.AckSets = true
	d.IgnoreSets = 1

	write(t, d, dl24m.CmdSetCurrent, 1, 0)
	b, err := d.ReadFull(8)
	require.NoError(t, err)
	assert.Equal(t, []byte{dl24m.AckByte}, b)
	assert.Zero(t, d.Raw(dl24m.CurrentLimit.Code))

	d.Noise = func(byte) []byte { return []byte{0xCA, 0x00} }
	b = query(t, d, dl24m.Temperature)
	assert.Equal(t, []byte{0xCA, 0x00, 0xCA, 0xCB, 0x16, 0x00, 0x00, 0x19}, b)

	d.Noise = nil
	_, _ = d.ReadFull(8)
	d.Silent = true
	assert.Empty(t, query(t, d, dl24m.Voltage))

	d.WriteErr = errors.New("io error")
	_, err = d.Write([]byte{0})
	assert.EqualError(t, err, "io error")
}

func TestDevice_Close(t *testing.T) {
	d := New()
	require.NoError(t, d.Close())
	assert.True(t, d.Closed())

	_, err := d.Write([]byte{0})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.ReadFull(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.Buffered()
	assert.ErrorIs(t, err, ErrClosed)
}
