package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Provider  ProviderConfig
	R2        R2Config
	OIDC      OIDCConfig
	Polling   PollingConfig
	History   HistoryConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	SubmitPerHour int
	DerivePerHour int
	HistoryPerMin int
}

// ProviderConfig points at the external generation API.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

// PollPolicy is the per-kind polling schedule: how often to check status and
// the hard ceiling after which still-active jobs are forced to timed_out.
type PollPolicy struct {
	Interval time.Duration
	Deadline time.Duration
}

// PollingConfig carries the default schedule plus per-kind overrides keyed by
// the job kind string.
type PollingConfig struct {
	Default PollPolicy
	Kinds   map[string]PollPolicy
}

// PolicyFor returns the schedule for a kind, falling back to the default.
func (c PollingConfig) PolicyFor(kind string) PollPolicy {
	if p, ok := c.Kinds[kind]; ok {
		return p
	}
	return c.Default
}

type HistoryConfig struct {
	Limit int
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("PROVIDER_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	_ = viper.BindEnv("provider.base_url", "PROVIDER_BASE_URL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("polling.interval_seconds", "POLL_INTERVAL_SECONDS")
	_ = viper.BindEnv("polling.deadline_seconds", "POLL_DEADLINE_SECONDS")
	_ = viper.BindEnv("history.limit", "HISTORY_LIMIT")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.submit_per_hour", 30)
	viper.SetDefault("ratelimit.derive_per_hour", 20)
	viper.SetDefault("ratelimit.history_per_min", 60)

	// Provider defaults
	viper.SetDefault("provider.base_url", "https://api.sunoapi.org")

	// Polling defaults. Stem separation and format conversion poll faster;
	// stems take minutes server-side so they get a longer deadline.
	viper.SetDefault("polling.interval_seconds", 5)
	viper.SetDefault("polling.deadline_seconds", 120)
	viper.SetDefault("polling.kinds.stem_separation.interval_seconds", 3)
	viper.SetDefault("polling.kinds.stem_separation.deadline_seconds", 300)
	viper.SetDefault("polling.kinds.format_conversion.interval_seconds", 3)
	viper.SetDefault("polling.kinds.format_conversion.deadline_seconds", 120)

	// History defaults
	viper.SetDefault("history.limit", 10)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	polling := PollingConfig{
		Default: PollPolicy{
			Interval: time.Duration(viper.GetInt("polling.interval_seconds")) * time.Second,
			Deadline: time.Duration(viper.GetInt("polling.deadline_seconds")) * time.Second,
		},
		Kinds: make(map[string]PollPolicy),
	}
	for kind := range viper.GetStringMap("polling.kinds") {
		p := PollPolicy{
			Interval: time.Duration(viper.GetInt(fmt.Sprintf("polling.kinds.%s.interval_seconds", kind))) * time.Second,
			Deadline: time.Duration(viper.GetInt(fmt.Sprintf("polling.kinds.%s.deadline_seconds", kind))) * time.Second,
		}
		if p.Interval <= 0 {
			p.Interval = polling.Default.Interval
		}
		if p.Deadline <= 0 {
			p.Deadline = polling.Default.Deadline
		}
		polling.Kinds[kind] = p
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: viper.GetInt("ratelimit.submit_per_hour"),
			DerivePerHour: viper.GetInt("ratelimit.derive_per_hour"),
			HistoryPerMin: viper.GetInt("ratelimit.history_per_min"),
		},
		Provider: ProviderConfig{
			APIKey:  viper.GetString("provider.api_key"),
			BaseURL: viper.GetString("provider.base_url"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("oidc.issuer"),
			ClientID: viper.GetString("oidc.client_id"),
		},
		Polling: polling,
		History: HistoryConfig{
			Limit: viper.GetInt("history.limit"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
