package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/parcelsync/internal/logger"

	"github.com/spf13/viper"
)

// ErrConfigInvalid 配置缺失或非法
var ErrConfigInvalid = errors.New("config invalid")

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Carrier      CarrierConfig      `mapstructure:"carrier"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"`
	Notification NotificationConfig `mapstructure:"notification"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                     string `mapstructure:"host"`
	Port                     string `mapstructure:"port"`
	Mode                     string `mapstructure:"mode"` // debug / release
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	ReadTimeoutSeconds       int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds      int    `mapstructure:"write_timeout_seconds"` // 须小于承运商回调的应答窗口
	IdleTimeoutSeconds       int    `mapstructure:"idle_timeout_seconds"`
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 运营接口 JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	Prefix        string `mapstructure:"prefix"`
	DialTimeoutMs int    `mapstructure:"dial_timeout_ms"`
	IOTimeoutMs   int    `mapstructure:"io_timeout_ms"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	Host             string         `mapstructure:"host"`
	Port             int            `mapstructure:"port"`
	Password         string         `mapstructure:"password"`
	DB               int            `mapstructure:"db"`
	Concurrency      int            `mapstructure:"concurrency"`
	Queues           map[string]int `mapstructure:"queues"`
	EnqueueTimeoutMs int            `mapstructure:"enqueue_timeout_ms"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// AddressConfig 默认发货地址
type AddressConfig struct {
	Name    string `mapstructure:"name"`
	Phone   string `mapstructure:"phone"`
	Line1   string `mapstructure:"line1"`
	Line2   string `mapstructure:"line2"`
	City    string `mapstructure:"city"`
	State   string `mapstructure:"state"`
	Pincode string `mapstructure:"pincode"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	MaxRequests         uint32 `mapstructure:"max_requests"`
	IntervalSeconds     int    `mapstructure:"interval_seconds"`
	OpenTimeoutSeconds  int    `mapstructure:"open_timeout_seconds"`
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
}

// CarrierConfig 承运商接入配置
type CarrierConfig struct {
	Name            string        `mapstructure:"name"`
	BaseURL         string        `mapstructure:"base_url"`
	Email           string        `mapstructure:"email"`
	Password        string        `mapstructure:"password"`
	TimeoutSeconds  int           `mapstructure:"timeout_seconds"`
	TokenTTLMinutes int           `mapstructure:"token_ttl_minutes"`
	WebhookSecret   string        `mapstructure:"webhook_secret"`
	WebhookHeader   string        `mapstructure:"webhook_header"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
	Pickup          AddressConfig `mapstructure:"pickup"`
}

// WebhookRateLimitConfig 回调限流配置
type WebhookRateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// WebhookConfig 回调入口配置
type WebhookConfig struct {
	MaxBodyBytes int64                  `mapstructure:"max_body_bytes"`
	RateLimit    WebhookRateLimitConfig `mapstructure:"rate_limit"`
}

// ReconcileConfig 对账轮询配置
type ReconcileConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Spec                string `mapstructure:"spec"`
	BatchSize           int    `mapstructure:"batch_size"`
	Concurrency         int    `mapstructure:"concurrency"`
	OrderTimeoutSeconds int    `mapstructure:"order_timeout_seconds"`
	RunTimeoutSeconds   int    `mapstructure:"run_timeout_seconds"`
	LockTTLSeconds      int    `mapstructure:"lock_ttl_seconds"`
}

// SMSConfig 短信网关配置
type SMSConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Sender         string `mapstructure:"sender"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// EmailConfig 邮件服务配置
type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	UseTLS   bool   `mapstructure:"use_tls"`
	UseSSL   bool   `mapstructure:"use_ssl"`
}

// DispatcherConfig 进程内通知派发配置
type DispatcherConfig struct {
	Workers    int `mapstructure:"workers"`
	BufferSize int `mapstructure:"buffer_size"`
}

// TemplateConfig 通知文案模板
type TemplateConfig struct {
	Shipped          string `mapstructure:"shipped"`
	Delivered        string `mapstructure:"delivered"`
	ShippedSubject   string `mapstructure:"shipped_subject"`
	DeliveredSubject string `mapstructure:"delivered_subject"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	Channel        string           `mapstructure:"channel"` // sms / email / log
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
	Dispatcher     DispatcherConfig `mapstructure:"dispatcher"`
	SMS            SMSConfig        `mapstructure:"sms"`
	Email          EmailConfig      `mapstructure:"email"`
	Templates      TemplateConfig   `mapstructure:"templates"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹
	SetDefaults(v)

	// 环境变量支持，例如 carrier.webhook_secret -> CARRIER_WEBHOOK_SECRET
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// Unmarshal 将 viper 实例解析为配置结构
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults 设置全部默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "parcelsync.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/parcelsync.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.issuer", "parcelsync")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ps")
	v.SetDefault("redis.dial_timeout_ms", 2000)
	v.SetDefault("redis.io_timeout_ms", 1000)
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.enqueue_timeout_ms", 2000)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Authorization",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("carrier.name", "xpressbees")
	v.SetDefault("carrier.base_url", "https://shipment.xpressbees.com/api")
	v.SetDefault("carrier.email", "")
	v.SetDefault("carrier.password", "")
	v.SetDefault("carrier.timeout_seconds", 15)
	v.SetDefault("carrier.token_ttl_minutes", 120)
	v.SetDefault("carrier.webhook_secret", "")
	v.SetDefault("carrier.webhook_header", "X-Api-Key")
	v.SetDefault("carrier.breaker.max_requests", 1)
	v.SetDefault("carrier.breaker.interval_seconds", 60)
	v.SetDefault("carrier.breaker.open_timeout_seconds", 30)
	v.SetDefault("carrier.breaker.consecutive_failures", 5)
	v.SetDefault("webhook.max_body_bytes", 1<<20)
	v.SetDefault("webhook.rate_limit.window_seconds", 60)
	v.SetDefault("webhook.rate_limit.max_requests", 600)
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.spec", "0 */6 * * *")
	v.SetDefault("reconcile.batch_size", 100)
	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("reconcile.order_timeout_seconds", 20)
	v.SetDefault("reconcile.run_timeout_seconds", 1800)
	v.SetDefault("reconcile.lock_ttl_seconds", 1800)
	v.SetDefault("notification.channel", "log")
	v.SetDefault("notification.timeout_seconds", 10)
	v.SetDefault("notification.dispatcher.workers", 2)
	v.SetDefault("notification.dispatcher.buffer_size", 256)
	v.SetDefault("notification.sms.endpoint", "")
	v.SetDefault("notification.sms.api_key", "")
	v.SetDefault("notification.sms.sender", "")
	v.SetDefault("notification.sms.timeout_seconds", 8)
	v.SetDefault("notification.sms.max_retries", 2)
	v.SetDefault("notification.email.port", 587)
	v.SetDefault("notification.email.use_tls", true)
	v.SetDefault("notification.email.use_ssl", false)
	v.SetDefault("notification.templates.shipped", "Hi {name}, your order {order_no} has been shipped and is on its way! Tracking number: {tracking_ref}.")
	v.SetDefault("notification.templates.delivered", "Hi {name}, your order {order_no} has been delivered. Thank you for shopping with us!")
	v.SetDefault("notification.templates.shipped_subject", "Your order {order_no} has shipped")
	v.SetDefault("notification.templates.delivered_subject", "Your order {order_no} has been delivered")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate 校验启动必需项，缺失时拒绝启动
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	var missing []string
	if strings.TrimSpace(c.Carrier.BaseURL) == "" {
		missing = append(missing, "carrier.base_url")
	}
	if strings.TrimSpace(c.Carrier.Email) == "" {
		missing = append(missing, "carrier.email")
	}
	if strings.TrimSpace(c.Carrier.Password) == "" {
		missing = append(missing, "carrier.password")
	}
	if strings.TrimSpace(c.Carrier.WebhookSecret) == "" {
		missing = append(missing, "carrier.webhook_secret")
	}
	if c.Reconcile.Enabled && strings.TrimSpace(c.Reconcile.Spec) == "" {
		missing = append(missing, "reconcile.spec")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfigInvalid, strings.Join(missing, ", "))
	}

	switch strings.ToLower(strings.TrimSpace(c.Notification.Channel)) {
	case "sms":
		if strings.TrimSpace(c.Notification.SMS.Endpoint) == "" {
			return fmt.Errorf("%w: notification.sms.endpoint is required for sms channel", ErrConfigInvalid)
		}
	case "email":
		if strings.TrimSpace(c.Notification.Email.Host) == "" || strings.TrimSpace(c.Notification.Email.From) == "" {
			return fmt.Errorf("%w: notification.email host and from are required for email channel", ErrConfigInvalid)
		}
	case "", "log":
	default:
		return fmt.Errorf("%w: unsupported notification.channel %q", ErrConfigInvalid, c.Notification.Channel)
	}
	return nil
}
