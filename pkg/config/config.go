package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "MYSTERY"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Session   SessionConfig   `mapstructure:"session"`
}

type ServerConfig struct {
	Address   string `mapstructure:"address"`
	Mode      string `mapstructure:"mode"`       // gin 模式：debug / release / test
	PublicURL string `mapstructure:"public_url"` // 產生 QR code 時使用的對外網址
}

type DBConfig struct {
	Driver   string `mapstructure:"driver"` // postgres / sqlite / memory
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
	Path     string `mapstructure:"path"` // sqlite 檔案路徑
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // 留空則停用限流
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text / json
}

type SessionConfig struct {
	StoreTimeout           time.Duration `mapstructure:"store_timeout"`
	SubscriberQueue        int           `mapstructure:"subscriber_queue"`
	ChatTailLimit          int           `mapstructure:"chat_tail_limit"`
	MaxMessageLength       int           `mapstructure:"max_message_length"`
	DefaultMaxParticipants int           `mapstructure:"default_max_participants"`
	RoomTTL                time.Duration `mapstructure:"room_ttl"`
	ReaperInterval         time.Duration `mapstructure:"reaper_interval"`
	WriteWait              time.Duration `mapstructure:"write_wait"`
	PongWait               time.Duration `mapstructure:"pong_wait"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.public_url", "http://localhost:8080")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "mystery")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.path", "mystery.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rate_limit.max", 120)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("session.store_timeout", 3*time.Second)
	v.SetDefault("session.subscriber_queue", 64)
	v.SetDefault("session.chat_tail_limit", 50)
	v.SetDefault("session.max_message_length", 1000)
	v.SetDefault("session.default_max_participants", 6)
	v.SetDefault("session.room_ttl", 12*time.Hour)
	v.SetDefault("session.reaper_interval", 5*time.Minute)
	v.SetDefault("session.write_wait", 10*time.Second)
	v.SetDefault("session.pong_wait", 60*time.Second)
}

// flagKeys 對應命令列旗標與設定鍵
var flagKeys = map[string]string{
	"address":   "server.address",
	"db-driver": "db.driver",
	"db-path":   "db.path",
	"log-level": "log.level",
}

// Load 依序套用預設值、設定檔、.env、環境變數與命令列旗標。
// path 為空時在 ./pkg/config 與目前目錄尋找 config.yaml，找不到不視為錯誤。
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	// 忽略錯誤，允許只使用環境變數
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./pkg/config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
		logrus.Debug("config: no config file found, using defaults and environment")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 檢查設定值是否可用
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown db.driver %q (want postgres, sqlite or memory)", c.DB.Driver)
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		return errors.New("config: db.path is required for sqlite")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret must be set")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: log.format %q (want text or json)", c.Log.Format)
	}

	durations := map[string]time.Duration{
		"auth.token_ttl":          c.Auth.TokenTTL,
		"session.store_timeout":   c.Session.StoreTimeout,
		"session.room_ttl":        c.Session.RoomTTL,
		"session.reaper_interval": c.Session.ReaperInterval,
		"session.write_wait":      c.Session.WriteWait,
		"session.pong_wait":       c.Session.PongWait,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", key, d)
		}
	}
	if c.Redis.Addr != "" && (c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("config: rate_limit.max and rate_limit.window must be positive when redis is enabled")
	}
	if c.Session.SubscriberQueue <= 0 || c.Session.MaxMessageLength <= 0 {
		return errors.New("config: session.subscriber_queue and session.max_message_length must be positive")
	}
	if c.Session.DefaultMaxParticipants < 1 || c.Session.DefaultMaxParticipants > 50 {
		return fmt.Errorf("config: session.default_max_participants must be in [1, 50], got %d", c.Session.DefaultMaxParticipants)
	}
	return nil
}
