package instrument

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/eload-server/internal/metrics"
	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
	"github.com/taoyao-code/eload-server/internal/simulator"
)

func TestQuery_DecodesRegister(t *testing.T) {
	dev := simulator.New()
	dev.SetRaw(dl24m.Current.Code, 1500)
	drv, _ := newTestDriver(dev)

	v, err := drv.Query(dl24m.Current)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v.Number)
	assert.Equal(t, [][]byte{{0xB1, 0xB2, 0x12, 0x00, 0x00, 0xB6}}, dev.Writes())
}

func TestQuery_Duration(t *testing.T) {
	dev := simulator.New()
	dev.SetRaw(dl24m.Elapsed.Code, 0x020304) // 02:03:04
	drv, _ := newTestDriver(dev)

	v, err := drv.Query(dl24m.Elapsed)
	require.NoError(t, err)
	assert.Equal(t, dl24m.ValueDuration, v.Kind)
	assert.Equal(t, 2*time.Hour+3*time.Minute+4*time.Second, v.Duration)
}

func TestQuery_ErrorKinds(t *testing.T) {
	t.Run("silent", func(t *testing.T) {
		dev := simulator.New()
		dev.Silent = true
		drv, _ := newTestDriver(dev)
		_, err := drv.Query(dl24m.Voltage)
		assert.ErrorIs(t, err, dl24m.ErrNoResponse)
	})

	t.Run("ack only", func(t *testing.T) {
		dev := simulator.New()
		dev.Silent = true
		dev.Inject([]byte{dl24m.AckByte})
		drv, _ := newTestDriver(dev)
		_, err := drv.Query(dl24m.Voltage)
		assert.ErrorIs(t, err, dl24m.ErrAckOnly)
	})

	t.Run("wrong echo", func(t *testing.T) {
		dev := simulator.New()
		dev.Silent = true
		dev.Inject([]byte{0xCA, 0xCB, 0x12, 0x00, 0x00, 0x01, 0xCE, 0xCF})
		drv, _ := newTestDriver(dev)
		_, err := drv.Query(dl24m.Voltage)
		assert.ErrorIs(t, err, dl24m.ErrFrameMismatch)
	})

	t.Run("write failure", func(t *testing.T) {
		dev := simulator.New()
		dev.WriteErr = errors.New("device gone")
		drv, _ := newTestDriver(dev)
		_, err := drv.Query(dl24m.Voltage)
		assert.True(t, dl24m.IsTransportError(err))
	})
}

func TestQuery_ResyncsAfterNoise(t *testing.T) {
	dev := simulator.New()
	dev.Noise = func(byte) []byte { return []byte{0x00, dl24m.AckByte} }
	reg := prometheus.NewRegistry()
	m := metrics.NewAppMetrics(reg)
	drv, _ := newTestDriver(dev, WithMetrics(m))

	v, err := drv.Query(dl24m.Voltage)
	require.NoError(t, err)
	assert.Equal(t, 12.0, v.Number)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResyncDiscarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrameTotal.WithLabelValues(dl24m.KindOK)))
}

func TestRefresh_KeepsOldValueOnFailure(t *testing.T) {
	dev := simulator.New()
	drv, _ := newTestDriver(dev)

	_, err := drv.refresh(dl24m.Voltage)
	require.NoError(t, err)

	dev.Silent = true
	dev.SetRaw(dl24m.Voltage.Code, 1)
	_, err = drv.refresh(dl24m.Voltage)
	require.Error(t, err)

	v, ok := drv.State().Get("voltage")
	require.True(t, ok)
	assert.Equal(t, 12.0, v.Number)
}

func TestProbe(t *testing.T) {
	dev := simulator.New()
	dev.Inject([]byte{0x11, 0x22, 0x33})
	drv, _ := newTestDriver(dev)
	assert.True(t, drv.Probe())

	dev.Silent = true
	assert.False(t, drv.Probe())
}

func TestSetMode_SendsFrame(t *testing.T) {
	dev := simulator.New()
	drv, _ := newTestDriver(dev)

	require.NoError(t, drv.SetMode(dl24m.ModeCV))
	assert.Equal(t, dl24m.ModeCV, dev.Mode())
	assert.Equal(t, [][]byte{{0xB1, 0xB2, 0x06, 0x00, 0x01, 0xB6}}, dev.Writes())
}

func TestClose_TurnsOutputOff(t *testing.T) {
	dev := simulator.New()
	dev.SetRaw(dl24m.IsOn.Code, 1)
	drv, rs := newTestDriver(dev)

	require.NoError(t, drv.Close())
	assert.True(t, dev.Closed())
	assert.Equal(t, uint32(0), dev.Raw(dl24m.IsOn.Code))
	assert.Equal(t, [][]byte{{0xB1, 0xB2, 0x01, 0x00, 0x00, 0xB6}}, dev.Writes())
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, rs.Waits())
}
