// Package config loads runtime configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAppName   = "otp-auth"
	defaultAppEnv    = "development"
	defaultPort      = "4000"
	defaultLogLevel  = "info"
	defaultJWTSecret = "dev_secret_change_me"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config captures application runtime configuration.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	ShutdownPeriod time.Duration

	OTPExpiry      time.Duration
	BlockDuration  time.Duration
	MaxTries       int
	ResendCooldown time.Duration

	JWTSecret string
	JWTIssuer string

	StoreBackend  string
	RedisURL      string
	SweepInterval time.Duration

	RateLimitPerMinute int

	DeliveryWorkers    int
	DeliveryQueueSize  int
	DeliveryMaxRetries int

	CORSAllowOrigins string
}

// Load reads .env (if present) and the environment, applies defaults and
// validates the result. Environment variables override .env values.
func Load() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)
	v.SetDefault("OTP_EXP_MINUTES", 2)
	v.SetDefault("BLOCK_MINUTES", 10)
	v.SetDefault("MAX_TRIES", 3)
	v.SetDefault("RESEND_COOLDOWN_SEC", 30)
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", defaultAppName)
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 20)
	v.SetDefault("DELIVERY_WORKERS", 2)
	v.SetDefault("DELIVERY_QUEUE_SIZE", 64)
	v.SetDefault("DELIVERY_MAX_RETRIES", 3)
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")

	ints := map[string]int{}
	for _, key := range []string{
		"SHUTDOWN_TIMEOUT_SECONDS", "OTP_EXP_MINUTES", "BLOCK_MINUTES", "MAX_TRIES",
		"RESEND_COOLDOWN_SEC", "SWEEP_INTERVAL_SECONDS", "RATE_LIMIT_PER_MINUTE",
		"DELIVERY_WORKERS", "DELIVERY_QUEUE_SIZE", "DELIVERY_MAX_RETRIES",
	} {
		n, err := intValue(v, key)
		if err != nil {
			return Config{}, err
		}
		ints[key] = n
	}

	cfg := Config{
		AppName:            v.GetString("APP_NAME"),
		AppEnv:             strings.ToLower(v.GetString("APP_ENV")),
		Port:               v.GetString("PORT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		ShutdownPeriod:     time.Duration(ints["SHUTDOWN_TIMEOUT_SECONDS"]) * time.Second,
		OTPExpiry:          time.Duration(ints["OTP_EXP_MINUTES"]) * time.Minute,
		BlockDuration:      time.Duration(ints["BLOCK_MINUTES"]) * time.Minute,
		MaxTries:           ints["MAX_TRIES"],
		ResendCooldown:     time.Duration(ints["RESEND_COOLDOWN_SEC"]) * time.Second,
		JWTSecret:          v.GetString("JWT_SECRET"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		StoreBackend:       strings.ToLower(v.GetString("STORE_BACKEND")),
		RedisURL:           v.GetString("REDIS_URL"),
		SweepInterval:      time.Duration(ints["SWEEP_INTERVAL_SECONDS"]) * time.Second,
		RateLimitPerMinute: ints["RATE_LIMIT_PER_MINUTE"],
		DeliveryWorkers:    ints["DELIVERY_WORKERS"],
		DeliveryQueueSize:  ints["DELIVERY_QUEUE_SIZE"],
		DeliveryMaxRetries: ints["DELIVERY_MAX_RETRIES"],
		CORSAllowOrigins:   v.GetString("CORS_ALLOW_ORIGINS"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.OTPExpiry <= 0 {
		errs = append(errs, errors.New("OTP_EXP_MINUTES must be positive"))
	}
	if c.BlockDuration <= 0 {
		errs = append(errs, errors.New("BLOCK_MINUTES must be positive"))
	}
	if c.MaxTries <= 0 {
		errs = append(errs, errors.New("MAX_TRIES must be positive"))
	}
	if c.ResendCooldown < 0 {
		errs = append(errs, errors.New("RESEND_COOLDOWN_SEC must not be negative"))
	}
	if c.ShutdownPeriod <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT_SECONDS must be positive"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	} else if c.JWTSecret == defaultJWTSecret && !c.IsDev() {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be changed when APP_ENV=%s", c.AppEnv))
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL must be set when STORE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.DeliveryWorkers <= 0 || c.DeliveryQueueSize <= 0 {
		errs = append(errs, errors.New("DELIVERY_WORKERS and DELIVERY_QUEUE_SIZE must be positive"))
	}
	if c.DeliveryMaxRetries < 0 {
		errs = append(errs, errors.New("DELIVERY_MAX_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// intValue reads key as an integer, rejecting values viper would silently
// coerce to zero.
func intValue(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
