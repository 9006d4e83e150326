package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	WriteWait     time.Duration `mapstructure:"write_wait"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	DBPath        string        `mapstructure:"db_path"`
	RedisURL      string        `mapstructure:"redis_url"`
	ProfileTTL    time.Duration `mapstructure:"profile_ttl"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	MaxMessageLen int           `mapstructure:"max_message_len"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateInterval  time.Duration `mapstructure:"rate_interval"`
	SlowConsumer  string        `mapstructure:"slow_consumer"`
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults; any key can
// be overridden from the environment (or a .env file) as CHAT_<KEY>, e.g.
// CHAT_JWT_SECRET.
func Load() (*Config, error) {
	// a local .env may carry CHAT_* overrides
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("db", cfg.DBPath).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("idle_timeout", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "chatrelay")
	v.SetDefault("db_path", "./data/chat.db")
	v.SetDefault("redis_url", "")
	v.SetDefault("profile_ttl", "5m")
	v.SetDefault("call_timeout", "5s")
	v.SetDefault("max_message_len", 4000)
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_interval", "10s")
	v.SetDefault("slow_consumer", "drop")
}

var (
	ErrNoSecret   = errors.New("jwt_secret must be set")
	ErrPingPeriod = errors.New("ping_period must be shorter than idle_timeout")
)

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrNoSecret
	}
	if c.PingPeriod >= c.IdleTimeout {
		return ErrPingPeriod
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	return nil
}
