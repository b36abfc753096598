package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置（启动时加载一次，运行期间不可变；
// 配置变更通过重启进程生效，而不是运行时热更新）
type Config struct {
	App      AppConfig       `mapstructure:"app"`
	MySQL    MySQLConfig     `mapstructure:"mysql"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Cloud    CloudConfig     `mapstructure:"cloud"`
	Poller   PollerConfig    `mapstructure:"poller"`
	Dispatch DispatchConfig  `mapstructure:"dispatch"`
	Ack      AckConfig       `mapstructure:"ack"`
	Outbox   OutboxConfig    `mapstructure:"outbox"`
	Health   HealthConfig    `mapstructure:"health"`
	Server   ServerConfig    `mapstructure:"server"`
	Printers []PrinterConfig `mapstructure:"printers"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	DeviceID string `mapstructure:"device_id"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置（可选，仅用于状态事件发布）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CloudConfig 云端平台配置
// BaseURL/WebSocketURL/Tenant/APIKey 缺失时云端侧组件保持禁用，不影响进程启动
type CloudConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
	Tenant         string        `mapstructure:"tenant"`
	APIKey         string        `mapstructure:"api_key"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Configured 云端凭据是否完整
func (c CloudConfig) Configured() bool {
	return c.BaseURL != "" && c.Tenant != "" && c.APIKey != ""
}

// PollerConfig 轮询兜底配置
type PollerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// DispatchConfig 打印调度配置
type DispatchConfig struct {
	Tick       time.Duration `mapstructure:"tick"`
	MaxRetries int           `mapstructure:"max_retries"`
	ClaimLimit int           `mapstructure:"claim_limit"`
	// PRINTING 状态滞留多久后视为上次进程异常退出遗留，可回收重派
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// AckConfig 回执重试配置
type AckConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// OutboxConfig 离线操作队列配置
type OutboxConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Batch      int           `mapstructure:"batch"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// HealthConfig 打印机健康探测配置
type HealthConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// ServerConfig 本地状态 API 配置
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// PrinterConfig 打印机静态注册配置（增删改由外部管理）
type PrinterConfig struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	Address    string `mapstructure:"address"`
	Port       int    `mapstructure:"port"`
	Brand      string `mapstructure:"brand"`
	PaperWidth int    `mapstructure:"paper_width"`
	Type       string `mapstructure:"type"`
	PrintGroup string `mapstructure:"print_group"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults 填充缺省值
func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Cloud.ConnectTimeout <= 0 {
		c.Cloud.ConnectTimeout = 10 * time.Second
	}
	if c.Cloud.RequestTimeout <= 0 {
		c.Cloud.RequestTimeout = 15 * time.Second
	}
	if c.Poller.Interval <= 0 {
		c.Poller.Interval = 3 * time.Second
	}
	if c.Dispatch.Tick <= 0 {
		c.Dispatch.Tick = 5 * time.Second
	}
	if c.Dispatch.MaxRetries <= 0 {
		c.Dispatch.MaxRetries = 5
	}
	if c.Dispatch.ClaimLimit <= 0 {
		c.Dispatch.ClaimLimit = 20
	}
	if c.Dispatch.StaleAfter <= 0 {
		c.Dispatch.StaleAfter = 2 * time.Minute
	}
	if c.Ack.Interval <= 0 {
		c.Ack.Interval = 60 * time.Second
	}
	if c.Outbox.Interval <= 0 {
		c.Outbox.Interval = 30 * time.Second
	}
	if c.Outbox.Batch <= 0 {
		c.Outbox.Batch = 50
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 3
	}
	if c.Health.Interval <= 0 {
		c.Health.Interval = 30 * time.Second
	}
	if c.Health.ProbeTimeout <= 0 {
		c.Health.ProbeTimeout = 3 * time.Second
	}
	for i := range c.Printers {
		if c.Printers[i].Port <= 0 {
			c.Printers[i].Port = 9100
		}
		if c.Printers[i].PaperWidth <= 0 {
			c.Printers[i].PaperWidth = 80
		}
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.App.DeviceID == "" {
		return fmt.Errorf("app.device_id is required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	for _, p := range c.Printers {
		if p.ID == "" || p.Address == "" {
			return fmt.Errorf("printer %q: id and address are required", p.Name)
		}
	}
	return nil
}
