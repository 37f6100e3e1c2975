package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/eload-server/internal/instrument"
	"github.com/taoyao-code/eload-server/internal/protocol/dl24m"
)

// Controller 仪器工作器的控制面（instrument.Worker 实现）
type Controller interface {
	Status() instrument.Status
	IsRunning() bool
	Execute(ctx context.Context, cmd dl24m.Command, v dl24m.Value) (instrument.Outcome, error)
	SetMode(ctx context.Context, m dl24m.Mode) error
	RequestDeepPoll()
}

// StandardResponse 统一响应格式
type StandardResponse struct {
	Code      int         `json:"code"`           // 0=成功, >0=错误码
	Message   string      `json:"message"`        // 消息
	Data      interface{} `json:"data,omitempty"` // 业务数据
	RequestID string      `json:"request_id"`     // 请求追踪ID
	Timestamp int64       `json:"timestamp"`      // 时间戳
}

// CommandRequest 设置命令请求
type CommandRequest struct {
	Command string          `json:"command" binding:"required"` // enable|set_current|set_voltage|set_timer|reset
	Value   json.RawMessage `json:"value"`
}

// ModeRequest 模式切换请求
type ModeRequest struct {
	Mode string `json:"mode" binding:"required"` // CC|CV|CR|CP
}

// PollRequest 轮询请求
type PollRequest struct {
	Deep bool `json:"deep"`
}

// InstrumentHandler 电子负载控制API处理器
type InstrumentHandler struct {
	ctrl    Controller
	timeout time.Duration
	logger  *zap.Logger
}

// NewInstrumentHandler 创建处理器；timeout 为单条命令的最长等待时间
func NewInstrumentHandler(ctrl Controller, timeout time.Duration, logger *zap.Logger) *InstrumentHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentHandler{ctrl: ctrl, timeout: timeout, logger: logger}
}

// GetState 最近一次轮询的读数与连接状态
// @Router /api/state [get]
func (h *InstrumentHandler) GetState(c *gin.Context) {
	h.respond(c, http.StatusOK, CodeOK, "success", h.ctrl.Status())
}

// ExecuteCommand 发送设置命令并等待回读校验
// 回读未确认时仍返回 200，code=1001，data 中带最后观测值
// @Router /api/commands [post]
func (h *InstrumentHandler) ExecuteCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respond(c, http.StatusBadRequest, CodeBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	cmd, err := dl24m.ParseCommand(req.Command)
	if err != nil {
		h.respond(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}
	if cmd == dl24m.CmdSetMode {
		h.respond(c, http.StatusBadRequest, CodeBadRequest, "use /api/mode to change mode", nil)
		return
	}
	v, err := parseValue(cmd, req.Value)
	if err != nil {
		h.respond(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	out, err := h.ctrl.Execute(ctx, cmd, v)
	if err != nil {
		h.fail(c, "execute command failed", err, zap.Stringer("cmd", cmd), zap.Stringer("value", v))
		return
	}

	h.logger.Info("command executed",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("cmd_id", out.ID),
		zap.Stringer("cmd", cmd),
		zap.Bool("verified", out.Verified),
		zap.Int("attempts", out.Attempts))
	if !out.Verified {
		h.respond(c, http.StatusOK, CodeUnverified, "command sent but not verified", out)
		return
	}
	h.respond(c, http.StatusOK, CodeOK, "success", out)
}

// SetMode 切换 CC/CV/CR/CP 模式
// @Router /api/mode [post]
func (h *InstrumentHandler) SetMode(c *gin.Context) {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respond(c, http.StatusBadRequest, CodeBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	m, err := dl24m.ParseMode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	if err != nil {
		h.respond(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.ctrl.SetMode(ctx, m); err != nil {
		h.fail(c, "set mode failed", err, zap.Stringer("mode", m))
		return
	}
	h.respond(c, http.StatusOK, CodeOK, "success", gin.H{"mode": m.String()})
}

// Poll 请求下个周期做一次全量轮询（请求体可省略，默认 deep=true）
// @Router /api/poll [post]
func (h *InstrumentHandler) Poll(c *gin.Context) {
	req := PollRequest{Deep: true}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respond(c, http.StatusBadRequest, CodeBadRequest, "invalid request: "+err.Error(), nil)
			return
		}
	}
	if !h.ctrl.IsRunning() {
		h.respond(c, http.StatusServiceUnavailable, CodeOffline, instrument.ErrWorkerStopped.Error(), nil)
		return
	}
	if !req.Deep {
		h.respond(c, http.StatusOK, CodeOK, "polling on schedule", gin.H{"deep": false})
		return
	}
	h.ctrl.RequestDeepPoll()
	h.respond(c, http.StatusAccepted, CodeOK, "deep poll scheduled", gin.H{"deep": true})
}

func (h *InstrumentHandler) fail(c *gin.Context, msg string, err error, fields ...zap.Field) {
	status, code := http.StatusInternalServerError, CodeInternal
	switch {
	case errors.Is(err, dl24m.ErrValueRange), errors.Is(err, instrument.ErrUnverifiable):
		status, code = http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, instrument.ErrNotConnected), errors.Is(err, instrument.ErrWorkerStopped):
		status, code = http.StatusServiceUnavailable, CodeOffline
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, CodeTimeout
	}
	fields = append(fields, zap.String("request_id", c.GetString("request_id")), zap.Error(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, fields...)
	} else {
		h.logger.Warn(msg, fields...)
	}
	h.respond(c, status, code, err.Error(), nil)
}

func (h *InstrumentHandler) respond(c *gin.Context, status, code int, msg string, data interface{}) {
	c.JSON(status, StandardResponse{
		Code:      code,
		Message:   msg,
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

// parseValue 按命令解析 JSON 值
//   - enable: true/false 或数字（非零为开）
//   - set_timer: "hh:mm:ss" 或秒数
//   - reset: 忽略 value
//   - 其余: 数字
func parseValue(cmd dl24m.Command, raw json.RawMessage) (dl24m.Value, error) {
	if cmd == dl24m.CmdReset {
		return dl24m.Int(0), nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return dl24m.Value{}, fmt.Errorf("%s requires a value", cmd)
	}

	switch cmd {
	case dl24m.CmdOutput:
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return dl24m.Bool(b), nil
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return dl24m.Value{}, fmt.Errorf("enable expects a boolean")
		}
		return dl24m.Bool(n != 0), nil
	case dl24m.CmdSetTimer:
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			d, err := dl24m.ParseClock(s)
			if err != nil {
				return dl24m.Value{}, err
			}
			return dl24m.Duration(d), nil
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil || n < 0 {
			return dl24m.Value{}, fmt.Errorf("set_timer expects hh:mm:ss or seconds")
		}
		return dl24m.Duration(time.Duration(n) * time.Second), nil
	default:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return dl24m.Value{}, fmt.Errorf("%s expects a number", cmd)
		}
		return dl24m.Float(n), nil
	}
}
