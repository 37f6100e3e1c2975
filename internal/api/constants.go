package api

// 响应码（StandardResponse.Code）
const (
	CodeOK         = 0    // 成功
	CodeUnverified = 1001 // 命令已发送，但回读未确认生效
	CodeBadRequest = 400
	CodeInternal   = 500
	CodeOffline    = 503 // 设备未连接或工作器已停止
	CodeTimeout    = 504
)
