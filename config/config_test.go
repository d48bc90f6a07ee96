package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("期望默认端口 3000，实际=%d", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("期望默认驱动 sqlite，实际=%s", cfg.Database.Driver)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("期望 log.level=debug，实际=%s", cfg.Log.Level)
	}
	if !cfg.Feed.Enabled || cfg.Feed.Source != FeedSourceApp || cfg.Feed.Broker != FeedBrokerMemory {
		t.Errorf("变更流默认配置不符: %+v", cfg.Feed)
	}
	if cfg.Feed.Heartbeat != 25*time.Second {
		t.Errorf("期望心跳 25s，实际=%s", cfg.Feed.Heartbeat)
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("期望 write_timeout=0，实际=%s", cfg.Server.WriteTimeout)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ROSTER_SERVER_PORT", "8088")
	t.Setenv("ROSTER_DB_PATH", "/tmp/override.db")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("环境变量应覆盖配置文件，实际端口=%d", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("期望 db.path 被覆盖，实际=%s", cfg.Database.Path)
	}
}

func TestLoad_Users(t *testing.T) {
	body := `
auth:
  jwt_secret: "0123456789abcdef-secret"
  require_token: true
  users:
    - username: root
      password_hash: "$2a$10$abcdefghijklmnopqrstuv"
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Username != "root" {
		t.Errorf("期望解析出 1 个用户 root，实际=%+v", cfg.Auth.Users)
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 3000},
		Database: DatabaseConfig{Driver: DriverSQLite, Path: ":memory:"},
		Feed:     FeedConfig{Enabled: true, Source: FeedSourceApp, Broker: FeedBrokerMemory, Channel: "records_changes"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "db.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "db.path"},
		{"postgres without host", func(c *Config) { c.Database.Driver = DriverPostgres }, "db.host"},
		{"postgres url only", func(c *Config) {
			c.Database.Driver = DriverPostgres
			c.Database.URL = "postgres://u:p@db.example.com:5432/students"
		}, ""},
		{"short secret", func(c *Config) {
			c.Auth.Users = []UserCredential{{Username: "root"}}
			c.Auth.JWTSecret = "short"
		}, "jwt_secret"},
		{"require token without users", func(c *Config) {
			c.Auth.RequireToken = true
			c.Auth.JWTSecret = "0123456789abcdef"
		}, "auth.users"},
		{"pg source on sqlite", func(c *Config) { c.Feed.Source = FeedSourcePostgres }, "feed.source"},
		{"redis broker without redis", func(c *Config) { c.Feed.Broker = FeedBrokerRedis }, "redis.enabled"},
		{"feed disabled skips checks", func(c *Config) {
			c.Feed.Enabled = false
			c.Feed.Source = "bogus"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("期望校验通过，实际: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("期望错误包含 %q，实际: %v", tt.wantErr, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Driver: DriverSQLite, Path: "students.db"}
	if dsn := c.DSN(); !strings.HasPrefix(dsn, "file:students.db?") || !strings.Contains(dsn, "_journal_mode=WAL") {
		t.Errorf("sqlite DSN 不符: %s", dsn)
	}

	c = DatabaseConfig{Driver: DriverSQLite, Path: ":memory:"}
	if dsn := c.DSN(); dsn != ":memory:" {
		t.Errorf("内存库 DSN 应原样返回，实际: %s", dsn)
	}

	c = DatabaseConfig{Driver: DriverPostgres, URL: "postgres://x"}
	if dsn := c.DSN(); dsn != "postgres://x" {
		t.Errorf("托管库应直接使用 URL，实际: %s", dsn)
	}

	c = DatabaseConfig{Driver: DriverMySQL, Host: "db", Port: 3306, User: "u", Password: "p", Name: "s", Timezone: "UTC"}
	if dsn := c.DSN(); !strings.Contains(dsn, "clientFoundRows=true") || !strings.HasPrefix(dsn, "u:p@tcp(db:3306)/s?") {
		t.Errorf("mysql DSN 不符: %s", dsn)
	}
}
