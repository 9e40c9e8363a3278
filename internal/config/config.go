package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	AppHost   string
	HTTPPort  string
	AppEnv    string
	LogLevel  string
	LogFormat string
	LogFile   string

	// StoreDriver is "postgres" or "memory".
	StoreDriver string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Gemini struct {
		BaseURL    string
		APIVersion string
		Model      string
		APIKey     string
		Timeout    time.Duration
	}

	JWT struct {
		Secret string
		TTL    time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	ChatRateLimit  int
	ChatRateWindow time.Duration

	Kafka struct {
		Brokers     string
		TopicTicket string
	}

	// AssignExclusive rejects assigning an already assigned ticket instead
	// of letting the last writer win.
	AssignExclusive bool
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:     getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:    firstEnv("APP_PORT", "HTTP_PORT", "8097"),
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", ""),
		LogFile:     getEnv("LOG_FILE", ""),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "assist_service")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", "")
	cfg.Gemini.APIVersion = getEnv("GEMINI_API_VERSION", "v1beta")
	cfg.Gemini.Model = getEnv("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.Gemini.APIKey = firstEnv("GEMINI_API_KEY", "API_KEY", "")

	cfg.JWT.Secret = getEnv("JWT_SECRET", "")
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Kafka.Brokers = getEnv("KAFKA_BROKERS", "")
	cfg.Kafka.TopicTicket = getEnv("KAFKA_TOPIC_TICKET", "assist.tickets")

	var err error
	if cfg.Gemini.Timeout, err = getDuration("GEMINI_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.JWT.TTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ChatRateWindow, err = getDuration("CHAT_RATE_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ChatRateLimit, err = getInt("CHAT_RATE_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.AssignExclusive, err = getBool("TICKET_ASSIGN_EXCLUSIVE", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет всё, что нужно процессу api до старта.
func (c *Config) Validate() error {
	var errs []error
	if c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("config: GEMINI_API_KEY is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET is required"))
	}
	if c.AppEnv == "production" && len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("config: in production JWT_SECRET must have at least 32 characters"))
	}
	if c.ChatRateLimit < 0 {
		errs = append(errs, errors.New("config: CHAT_RATE_LIMIT must not be negative"))
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		errs = append(errs, c.ValidateDB())
	default:
		errs = append(errs, fmt.Errorf("config: STORE_DRIVER %q must be postgres or memory", c.StoreDriver))
	}
	return errors.Join(errs...)
}

// ValidateDB проверяет только настройки БД (для команды migrate).
func (c *Config) ValidateDB() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
