package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Pprof        HTTPPprof     `mapstructure:"pprof"`
}

// HTTPPprof HTTP pprof 配置
type HTTPPprof struct {
	Enable bool   `mapstructure:"enable"`
	Prefix string `mapstructure:"prefix"`
}

// SerialConfig 串口参数。
// Device 为 "sim" 时使用内置模拟设备。
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	DataBits    int           `mapstructure:"dataBits"`
	Parity      string        `mapstructure:"parity"`   // N/O/E/M/S
	StopBits    string        `mapstructure:"stopBits"` // 1/1.5/2
	FlowControl string        `mapstructure:"flowControl"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

// RetryConfig 设置命令回读校验重试
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	SettleDelay time.Duration `mapstructure:"settleDelay"`
	RetryDelay  time.Duration `mapstructure:"retryDelay"`
}

// InstrumentConfig 轮询与驱动行为
type InstrumentConfig struct {
	PollInterval      time.Duration `mapstructure:"pollInterval"`
	ReconnectInterval time.Duration `mapstructure:"reconnectInterval"`
	DeepPollEvery     int           `mapstructure:"deepPollEvery"`
	QueueSize         int           `mapstructure:"queueSize"`
	MaxScan           int           `mapstructure:"maxScan"`
	CommandTimeout    time.Duration `mapstructure:"commandTimeout"`
	FailureThreshold  int           `mapstructure:"failureThreshold"` // 连续失败多少轮视为降级
	Retry             RetryConfig   `mapstructure:"retry"`
}

// AuthConfig API Key 认证
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// RateLimitConfig 控制接口限流
type RateLimitConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	PerSecond float64 `mapstructure:"perSecond"`
	Burst     int     `mapstructure:"burst"`
}

// APIConfig HTTP 控制接口
type APIConfig struct {
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Config 顶层配置结构
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Serial     SerialConfig     `mapstructure:"serial"`
	Instrument InstrumentConfig `mapstructure:"instrument"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	API        APIConfig        `mapstructure:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 ELOAD_CONFIG 读取；否则回退到 configs/eload.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("ELOAD_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("eload")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// 环境变量覆盖：前缀 ELOAD_，点号替换为下划线（如 ELOAD_SERIAL_DEVICE）
	v.SetEnvPrefix("ELOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查无法降级处理的配置错误
func (c *Config) Validate() error {
	if c.Serial.Device == "" {
		return errors.New("serial.device is required")
	}
	if c.Instrument.PollInterval <= 0 {
		return fmt.Errorf("instrument.pollInterval must be positive, got %s", c.Instrument.PollInterval)
	}
	if c.Instrument.Retry.MaxAttempts < 1 {
		return fmt.Errorf("instrument.retry.maxAttempts must be >= 1, got %d", c.Instrument.Retry.MaxAttempts)
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.enabled requires at least one api key")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "eload-server")
	v.SetDefault("app.env", "dev")

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.dataBits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stopBits", "1")
	v.SetDefault("serial.flowControl", "none")
	v.SetDefault("serial.readTimeout", "500ms")

	v.SetDefault("instrument.pollInterval", "1s")
	v.SetDefault("instrument.reconnectInterval", "5s")
	v.SetDefault("instrument.deepPollEvery", 0)
	v.SetDefault("instrument.queueSize", 16)
	v.SetDefault("instrument.maxScan", 512)
	v.SetDefault("instrument.commandTimeout", "10s")
	v.SetDefault("instrument.failureThreshold", 3)
	v.SetDefault("instrument.retry.maxAttempts", 3)
	v.SetDefault("instrument.retry.settleDelay", "500ms")
	v.SetDefault("instrument.retry.retryDelay", "700ms")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "15s")
	v.SetDefault("http.pprof.enable", false)
	v.SetDefault("http.pprof.prefix", "/debug/pprof")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.apiKeys", []string{})
	v.SetDefault("api.rateLimit.enabled", true)
	v.SetDefault("api.rateLimit.perSecond", 5)
	v.SetDefault("api.rateLimit.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/eload-server.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}
