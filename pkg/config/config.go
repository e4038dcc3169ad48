package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/datasource"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath 指定配置文件路径的环境变量
const EnvConfigPath = "SQLSCOPE_CONFIG"

// Config 应用程序配置
type Config struct {
	Database DatabaseConfig `json:"database" yaml:"database"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	URL        string           `json:"url" yaml:"url"`
	DebugSQL   bool             `json:"debug_sql" yaml:"debug_sql"`
	Connection ConnectionConfig `json:"connection" yaml:"connection"`
}

// ConnectionConfig 连接池配置
type ConnectionConfig struct {
	MaxOpen        int      `json:"max_open" yaml:"max_open"`
	MaxIdle        int      `json:"max_idle" yaml:"max_idle"`
	Lifetime       Duration `json:"lifetime" yaml:"lifetime"`
	IdleTimeout    Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ConnectTimeout Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json or text
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// Duration is a time.Duration written as "30s" in config files. Plain
// numbers are read as seconds.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:      "sqlite:///data/app.db",
			DebugSQL: false,
			Connection: ConnectionConfig{
				MaxOpen:        25,
				MaxIdle:        5,
				Lifetime:       Duration(5 * time.Minute),
				IdleTimeout:    Duration(1 * time.Minute),
				ConnectTimeout: Duration(10 * time.Second),
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "sqlscope",
		},
	}
}

// LoadConfig 从文件加载配置, .yaml/.yml 按 YAML 解析, 其它按 JSON
func LoadConfig(configPath string) (*Config, error) {
	// 如果没有指定配置文件，使用默认配置
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// 检查配置文件是否存在
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, api.NewConfigurationError(fmt.Sprintf("配置文件不存在: %s", configPath), err)
	}

	// 读取配置文件
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, api.NewConfigurationError("读取配置文件失败", err)
	}

	// 解析配置
	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, api.NewConfigurationError("解析配置文件失败", err)
	}

	// 验证配置
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigOrDefault 尝试从常见位置加载配置文件
func LoadConfigOrDefault() *Config {
	// 尝试的配置文件路径
	possiblePaths := []string{
		"config.yaml",
		"config.json",
		"./config/config.yaml",
		"./config/config.json",
		"/etc/sqlscope/config.yaml",
	}

	// 尝试从环境变量获取配置文件路径
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		if config, err := LoadConfig(envPath); err == nil {
			return config
		}
	}

	// 尝试从常见位置加载
	for _, path := range possiblePaths {
		if absPath, err := filepath.Abs(path); err == nil {
			if config, err := LoadConfig(absPath); err == nil {
				return config
			}
		}
	}

	// 使用默认配置
	return DefaultConfig()
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if strings.TrimSpace(config.Database.URL) == "" {
		return api.NewConfigurationError("数据库 URL 不能为空", nil)
	}

	if _, err := datasource.ParseURL(config.Database.URL); err != nil {
		return err
	}

	if config.Database.Connection.MaxOpen < 0 {
		return api.NewConfigurationError("连接池最大连接数不能为负数", nil)
	}

	if config.Database.Connection.MaxIdle < 0 {
		return api.NewConfigurationError("连接池最大空闲连接数不能为负数", nil)
	}

	if _, err := api.ParseLogLevel(config.Log.Level); err != nil {
		return api.NewConfigurationError("无效的日志级别", err)
	}

	switch config.Log.Format {
	case "", "text", "json":
	default:
		return api.NewConfigurationError(fmt.Sprintf("无效的日志格式: %s", config.Log.Format), nil)
	}

	return nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	return validateConfig(c)
}

// DataSource converts the database section into backend configuration.
func (c *DatabaseConfig) DataSource() *datasource.Config {
	return &datasource.Config{
		URL:   c.URL,
		Debug: c.DebugSQL,
		Pool: datasource.PoolConfig{
			MaxOpenConns:    c.Connection.MaxOpen,
			MaxIdleConns:    c.Connection.MaxIdle,
			ConnMaxLifetime: time.Duration(c.Connection.Lifetime),
			ConnMaxIdleTime: time.Duration(c.Connection.IdleTimeout),
			ConnectTimeout:  time.Duration(c.Connection.ConnectTimeout),
		},
	}
}

// LogLevel 返回解析后的日志级别
func (c *LogConfig) LogLevel() api.LogLevel {
	level, _ := api.ParseLogLevel(c.Level)
	return level
}
