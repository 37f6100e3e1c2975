package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/eload-server/internal/instrument"
)

type fakeSource struct {
	running bool
	status  instrument.Status
}

func (f *fakeSource) Status() instrument.Status { return f.status }
func (f *fakeSource) IsRunning() bool           { return f.running }

func TestInstrumentChecker(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{running: true, status: instrument.Status{Connected: true, Polls: 4}}
	c := NewInstrumentChecker(src, 2)
	assert.Equal(t, "instrument", c.Name())

	res := c.Check(ctx)
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, int64(4), res.Details["polls"])

	src.status.ConsecutiveFailures = 2
	src.status.LastError = "read failed: [voltage]"
	res = c.Check(ctx)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "read failed: [voltage]", res.Details["last_error"])

	src.status.Connected = false
	assert.Equal(t, StatusUnhealthy, c.Check(ctx).Status)

	src.running = false
	src.status.Connected = true
	res = c.Check(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "worker stopped", res.Message)
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	src := &fakeSource{running: true}
	r := gin.New()
	RegisterHTTPRoutes(r, NewAggregator(NewInstrumentChecker(src, 0)))

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	assert.Equal(t, http.StatusOK, get("/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready").Code)

	rr := get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "instrument not connected", report.Checks["instrument"].Message)

	src.status.Connected = true
	assert.Equal(t, http.StatusOK, get("/health/ready").Code)
	assert.Equal(t, http.StatusOK, get("/health").Code)
}
