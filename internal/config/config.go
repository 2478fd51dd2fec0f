// Package config loads the process-wide settings once at startup. The
// resulting Config is never mutated afterwards.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every knob the relay reads from the environment.
type Config struct {
	Port    string
	GinMode string

	APIKey   string
	RemoveBG Endpoint
	Enhance  Endpoint

	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	RedisAddr      string
	DatabaseDSN    string
	JWTSecret      string
	JWTAudience    string
	GRPCHealthPort string

	LogLevel        string
	ShutdownTimeout time.Duration
}

// Endpoint is the per-provider host override. BaseURL, when set, replaces the
// https://<Host> origin used for outbound calls.
type Endpoint struct {
	Host    string
	BaseURL string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	v := viper.New()
	v.AutomaticEnv()
	return FromViper(v), nil
}

// FromViper applies defaults to v and decodes it.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)

	return &Config{
		Port:    v.GetString("port"),
		GinMode: v.GetString("gin_mode"),
		APIKey:  strings.TrimSpace(v.GetString("rapidapi_key")),
		RemoveBG: Endpoint{
			Host:    strings.TrimSpace(v.GetString("remove_bg_host")),
			BaseURL: strings.TrimSpace(v.GetString("remove_bg_base_url")),
		},
		Enhance: Endpoint{
			Host:    strings.TrimSpace(v.GetString("enhance_host")),
			BaseURL: strings.TrimSpace(v.GetString("enhance_base_url")),
		},
		AllowedOrigins:    splitList(v.GetString("allowed_origins")),
		RateLimitRequests: v.GetInt("rate_limit_requests"),
		RateLimitWindow:   v.GetDuration("rate_limit_window"),
		RedisAddr:         strings.TrimSpace(v.GetString("redis_addr")),
		DatabaseDSN:       strings.TrimSpace(v.GetString("database_dsn")),
		JWTSecret:         strings.TrimSpace(v.GetString("jwt_secret")),
		JWTAudience:       strings.TrimSpace(v.GetString("jwt_audience")),
		GRPCHealthPort:    strings.TrimSpace(v.GetString("grpc_health_port")),
		LogLevel:          v.GetString("log_level"),
		ShutdownTimeout:   v.GetDuration("shutdown_timeout"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "5000")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("remove_bg_host", "background-removal4.p.rapidapi.com")
	v.SetDefault("enhance_host", "ai-face-enhancer.p.rapidapi.com")
	v.SetDefault("allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("rate_limit_requests", 100)
	v.SetDefault("rate_limit_window", 15*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown_timeout", 15*time.Second)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
