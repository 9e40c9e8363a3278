package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"APP_PORT", "HTTP_PORT", "STORE_DRIVER", "JWT_TTL", "CHAT_RATE_LIMIT", "TICKET_ASSIGN_EXCLUSIVE", "GEMINI_MODEL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "8097" || cfg.StoreDriver != StorePostgres {
		t.Errorf("port=%s store=%s", cfg.HTTPPort, cfg.StoreDriver)
	}
	if cfg.JWT.TTL != 24*time.Hour || cfg.ChatRateWindow != time.Minute || cfg.ChatRateLimit != 20 {
		t.Errorf("ttl=%v window=%v limit=%d", cfg.JWT.TTL, cfg.ChatRateWindow, cfg.ChatRateLimit)
	}
	if cfg.AssignExclusive {
		t.Error("exclusive assignment should default to off")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("TICKET_ASSIGN_EXCLUSIVE", "true")
	t.Setenv("REDIS_DB", "3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "9000" || cfg.StoreDriver != StoreMemory || cfg.JWT.TTL != 2*time.Hour || !cfg.AssignExclusive || cfg.Redis.DB != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	for key, val := range map[string]string{
		"JWT_TTL":                 "forever",
		"CHAT_RATE_LIMIT":         "many",
		"TICKET_ASSIGN_EXCLUSIVE": "maybe",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("err = %v, want mention of %s", err, key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{AppEnv: "development", StoreDriver: StoreMemory}
		c.Gemini.APIKey = "k"
		c.JWT.Secret = "s"
		return c
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing api key", func(c *Config) { c.Gemini.APIKey = "" }, "GEMINI_API_KEY"},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"short production secret", func(c *Config) { c.AppEnv = "production" }, "32 characters"},
		{"unknown store", func(c *Config) { c.StoreDriver = "mongo" }, "STORE_DRIVER"},
		{"postgres without host", func(c *Config) { c.StoreDriver = StorePostgres; c.DB.Database = "x" }, "DB_HOST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestDatabaseURLEscapesPassword(t *testing.T) {
	c := &Config{}
	c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode = "u", "p@ss/w", "db", "5432", "assist", "disable"
	want := "postgres://u:p%40ss%2Fw@db:5432/assist?sslmode=disable"
	if got := c.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL = %q, want %q", got, want)
	}
}
