package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Prices      PricesConfig      `mapstructure:"prices"`
	Report      ReportConfig      `mapstructure:"report"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Models      ModelsConfig      `mapstructure:"models"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"` // <= 0 关闭限流
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig 日志库（new-api）连接配置，只读使用
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, mysql, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"` // sqlite 文件路径
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒

	QueryTimeout time.Duration `mapstructure:"query_timeout"` // 单次日志库查询超时
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 连接模式: standalone(单节点), sentinel(哨兵), cluster(集群)
	Mode string `mapstructure:"mode"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MasterName       string   `mapstructure:"master_name"`
	SentinelAddrs    []string `mapstructure:"sentinel_addrs"`
	SentinelPassword string   `mapstructure:"sentinel_password"`

	ClusterAddrs []string `mapstructure:"cluster_addrs"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// PricingConfig 定价规则缓存与计费公式参数
type PricingConfig struct {
	RefreshTTL             time.Duration `mapstructure:"refresh_ttl"`
	RefreshTimeout         time.Duration `mapstructure:"refresh_timeout"`
	ExchangeRate           float64       `mapstructure:"exchange_rate"`
	BaseUnit               float64       `mapstructure:"base_unit"`
	DefaultRatio           float64       `mapstructure:"default_ratio"`
	DefaultCompletionRatio float64       `mapstructure:"default_completion_ratio"`
}

// LeaderboardConfig 排行榜缓存配置
type LeaderboardConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	MaxEntries   int           `mapstructure:"max_entries"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
}

// PricesConfig 手工价格文档存储配置
type PricesConfig struct {
	Backend       string        `mapstructure:"backend"` // file, redis, database
	FilePath      string        `mapstructure:"file_path"`
	RedisKey      string        `mapstructure:"redis_key"`
	DocumentName  string        `mapstructure:"document_name"`
	RemoteURL     string        `mapstructure:"remote_url"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
	QueueSize     int           `mapstructure:"queue_size"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

// ReportConfig 每日消耗日报配置
type ReportConfig struct {
	WebhookURL      string        `mapstructure:"webhook_url"`
	WebhookSecret   string        `mapstructure:"webhook_secret"`
	Threshold       float64       `mapstructure:"threshold"`
	MaxIdentities   int           `mapstructure:"max_identities"`
	MaxModels       int           `mapstructure:"max_models"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
	Cron            string        `mapstructure:"cron"`
	Timezone        string        `mapstructure:"timezone"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
}

// WorkerConfig asynq 后台任务配置
type WorkerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
}

// IdentityConfig 令牌身份解析配置
type IdentityConfig struct {
	SecretPrefix  string        `mapstructure:"secret_prefix"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

// ModelsConfig 模型展示配置
type ModelsConfig struct {
	AliasFile string `mapstructure:"alias_file"`
}

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := newViper()

	if configPath == "" {
		v.SetConfigName(env)
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	// 配置文件可选：仅靠环境变量也能启动
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	return unmarshal(v)
}

// Defaults 返回仅包含默认值与环境变量的配置
func Defaults() *Config {
	cfg, err := unmarshal(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindLegacyEnv(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.query_timeout", 30*time.Second)

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("pricing.refresh_ttl", 5*time.Minute)
	v.SetDefault("pricing.refresh_timeout", 5*time.Second)
	v.SetDefault("pricing.exchange_rate", 7.2)
	v.SetDefault("pricing.base_unit", 0.002/1000)
	v.SetDefault("pricing.default_ratio", 30.0)
	v.SetDefault("pricing.default_completion_ratio", 1.0)

	v.SetDefault("leaderboard.ttl", 30*time.Second)
	v.SetDefault("leaderboard.max_entries", 200)
	v.SetDefault("leaderboard.default_limit", 20)
	v.SetDefault("leaderboard.max_limit", 100)

	v.SetDefault("prices.backend", "file")
	v.SetDefault("prices.file_path", "model-prices.json")
	v.SetDefault("prices.redis_key", "usagehub:model-prices")
	v.SetDefault("prices.document_name", "model-prices")
	v.SetDefault("prices.remote_url", "https://models.dev/api.json")
	v.SetDefault("prices.remote_timeout", 15*time.Second)
	v.SetDefault("prices.queue_size", 1000)
	v.SetDefault("prices.write_timeout", 10*time.Second)

	v.SetDefault("report.threshold", 150.0)
	v.SetDefault("report.max_identities", 20)
	v.SetDefault("report.max_models", 10)
	v.SetDefault("report.max_payload_bytes", 19000)
	v.SetDefault("report.cron", "0 17 * * *")
	v.SetDefault("report.timezone", "Asia/Shanghai")
	v.SetDefault("report.send_timeout", 10*time.Second)

	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.concurrency", 2)

	v.SetDefault("identity.secret_prefix", "sk-")
	v.SetDefault("identity.lookup_timeout", 5*time.Second)

	v.SetDefault("models.alias_file", "config/model_aliases.yaml")
}

// bindLegacyEnv 兼容旧部署使用的环境变量名
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string][]string{
		"server.port":        {"APP_SERVER_PORT", "PORT"},
		"database.host":      {"APP_DATABASE_HOST", "NEWAPI_DB_HOST"},
		"database.port":      {"APP_DATABASE_PORT", "NEWAPI_DB_PORT"},
		"database.user":      {"APP_DATABASE_USER", "NEWAPI_DB_USER"},
		"database.password":  {"APP_DATABASE_PASSWORD", "NEWAPI_DB_PASSWORD"},
		"database.dbname":    {"APP_DATABASE_DBNAME", "NEWAPI_DB_NAME"},
		"report.webhook_url": {"APP_REPORT_WEBHOOK_URL", "FEISHU_WEBHOOK_URL"},
		"report.threshold":   {"APP_REPORT_THRESHOLD", "FEISHU_ALERT_THRESHOLD"},
	}
	for key, envs := range legacy {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName,
		)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
		)
	}
}

// Location 解析日报与日期边界使用的时区
func (c *ReportConfig) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %s 失败: %w", name, err)
	}
	return loc, nil
}
