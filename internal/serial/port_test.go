package serial

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taoyao-code/eload-server/internal/config"
)

func newPipePort(t *testing.T, timeout time.Duration) (*Port, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	p := NewPort(local, timeout, zap.NewNop())
	t.Cleanup(func() {
		_ = p.Close()
		_ = remote.Close()
	})
	return p, remote
}

func TestPort_ReadFull(t *testing.T) {
	p, remote := newPipePort(t, time.Second)

	go func() { _, _ = remote.Write([]byte{0xCA, 0xCB, 0x11, 0x00, 0x03, 0xE8, 0xCE, 0xCF}) }()

	b, err := p.ReadFull(8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xCB, 0x11, 0x00, 0x03, 0xE8, 0xCE, 0xCF}, b)
}

func TestPort_ReadFullTimeoutReturnsShort(t *testing.T) {
	p, remote := newPipePort(t, 50*time.Millisecond)

	_, err := remote.Write([]byte{0x6F})
	require.NoError(t, err)

	start := time.Now()
	b, err := p.ReadFull(8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x6F}, b)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	b, err = p.ReadFull(1)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestPort_Buffered(t *testing.T) {
	p, remote := newPipePort(t, 50*time.Millisecond)

	_, err := remote.Write([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, err := p.Buffered()
		return err == nil && n == 5
	}, time.Second, 5*time.Millisecond)

	b, err := p.ReadFull(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
	n, err := p.Buffered()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPort_Write(t *testing.T) {
	p, remote := newPipePort(t, 50*time.Millisecond)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 6)
		_, _ = io.ReadFull(remote, buf)
		got <- buf
	}()

	n, err := p.Write([]byte{0xB1, 0xB2, 0x10, 0x00, 0x00, 0xB6})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{0xB1, 0xB2, 0x10, 0x00, 0x00, 0xB6}, <-got)
}

func TestPort_PeerClosed(t *testing.T) {
	p, remote := newPipePort(t, time.Second)
	require.NoError(t, remote.Close())

	_, err := p.ReadFull(8)
	assert.ErrorIs(t, err, io.EOF)
	_, err = p.Buffered()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPort_Close(t *testing.T) {
	p, _ := newPipePort(t, time.Second)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.ReadFull(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.Write([]byte{0})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.Buffered()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTarmConfig(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	sc := tarmConfig(config.SerialConfig{
		Device:   "/dev/ttyUSB0",
		Baud:     9600,
		DataBits: 7,
		Parity:   "E",
		StopBits: "2",
	}, log)
	assert.Equal(t, "/dev/ttyUSB0", sc.Name)
	assert.Equal(t, byte(7), sc.Size)
	assert.Equal(t, serial.ParityEven, sc.Parity)
	assert.Equal(t, serial.Stop2, sc.StopBits)
	assert.Zero(t, logs.Len())

	// 非法参数降级为 8N1 并告警
	sc = tarmConfig(config.SerialConfig{
		Device:      "/dev/ttyUSB0",
		DataBits:    9,
		Parity:      "X",
		StopBits:    "3",
		FlowControl: "rtscts",
	}, log)
	assert.Equal(t, 9600, sc.Baud)
	assert.Equal(t, byte(8), sc.Size)
	assert.Equal(t, serial.ParityNone, sc.Parity)
	assert.Equal(t, serial.Stop1, sc.StopBits)
	assert.Equal(t, 5, logs.Len())
}
