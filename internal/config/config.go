package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "WEDDESK"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Client    ClientConfig    `mapstructure:"client"`
}

type ServerConfig struct {
	Environment string   `mapstructure:"environment"`
	Port        string   `mapstructure:"port"`
	// CorsOrigins lists the dashboard origins; empty allows any origin.
	CorsOrigins []string `mapstructure:"cors_origins"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	SigningKey      string        `mapstructure:"signing_key"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	AllowedRoles    []string      `mapstructure:"allowed_roles"`

	SeedAdminUsername string `mapstructure:"seed_admin_username"`
	SeedAdminEmail    string `mapstructure:"seed_admin_email"`
	SeedAdminPassword string `mapstructure:"seed_admin_password"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

// ClientConfig drives the dashboard client and the load test.
type ClientConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RefreshTimeout   time.Duration `mapstructure:"refresh_timeout"`
	SafetyMargin     time.Duration `mapstructure:"safety_margin"`
	SessionBackend   string        `mapstructure:"session_backend"`
	SessionFile      string        `mapstructure:"session_file"`
	SessionKeyPrefix string        `mapstructure:"session_key_prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.cors_origins", []string{})

	// empty defaults register the keys so AutomaticEnv can fill them
	v.SetDefault("mysql.dsn", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.issuer", "weddingdesk")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.allowed_roles", []string{"admin", "staff"})
	v.SetDefault("auth.seed_admin_username", "admin")
	v.SetDefault("auth.seed_admin_email", "")
	v.SetDefault("auth.seed_admin_password", "")

	v.SetDefault("ratelimit.requests_per_second", 5)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.timeout", 15*time.Second)
	v.SetDefault("client.refresh_timeout", 10*time.Second)
	v.SetDefault("client.safety_margin", 30*time.Second)
	v.SetDefault("client.session_backend", "file")
	v.SetDefault("client.session_file", "")
	v.SetDefault("client.session_key_prefix", "weddingdesk:session:")
}

// Load reads config.yaml from . or ./config plus WEDDESK_* env vars. A .env
// file in the working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	cfg, err := read(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadFrom reads an explicit config file. An empty path means env and
// defaults only.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	return read(v)
}

func read(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
