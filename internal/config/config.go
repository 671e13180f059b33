package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Engine     EngineConfig
	Callback   CallbackConfig
	Admin      AdminConfig
	RateLimit  RateLimitConfig
	Redelivery RedeliveryConfig
	Jobs       JobsConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EngineConfig points at the external workflow engine's ingress.
type EngineConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// CallbackConfig guards the worker result callback surface.
type CallbackConfig struct {
	Secret string
}

type AdminConfig struct {
	JWTSecret string
}

type RateLimitConfig struct {
	SubmitPerMin int
}

type RedeliveryConfig struct {
	Enabled  bool
	MaxRetry int
}

type JobsConfig struct {
	TTLHours          int
	StuckAfterMinutes int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("engine.base_url", "")
	viper.SetDefault("engine.api_key", "")
	viper.SetDefault("engine.timeout_seconds", 30)
	viper.SetDefault("callback.secret", "")
	viper.SetDefault("admin.jwt_secret", "change-me-in-production")
	viper.SetDefault("ratelimit.submit_per_min", 60)
	viper.SetDefault("redelivery.enabled", true)
	viper.SetDefault("redelivery.max_retry", 3)
	viper.SetDefault("jobs.ttl_hours", 720)
	viper.SetDefault("jobs.stuck_after_minutes", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Engine: EngineConfig{
			BaseURL:        viper.GetString("engine.base_url"),
			APIKey:         viper.GetString("engine.api_key"),
			TimeoutSeconds: viper.GetInt("engine.timeout_seconds"),
		},
		Callback: CallbackConfig{
			Secret: viper.GetString("callback.secret"),
		},
		Admin: AdminConfig{
			JWTSecret: viper.GetString("admin.jwt_secret"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerMin: viper.GetInt("ratelimit.submit_per_min"),
		},
		Redelivery: RedeliveryConfig{
			Enabled:  viper.GetBool("redelivery.enabled"),
			MaxRetry: viper.GetInt("redelivery.max_retry"),
		},
		Jobs: JobsConfig{
			TTLHours:          viper.GetInt("jobs.ttl_hours"),
			StuckAfterMinutes: viper.GetInt("jobs.stuck_after_minutes"),
		},
	}

	return cfg, nil
}
