package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	JWTSecret   string        `mapstructure:"JWT_SECRET"`
	JWTTTL      time.Duration `mapstructure:"JWT_TTL"`
	Port        string        `mapstructure:"PORT"`
	GinMode     string        `mapstructure:"GIN_MODE"`

	// RedisURL enables Redis-backed lobby locks shared between instances.
	// Empty means in-process locks.
	RedisURL string        `mapstructure:"REDIS_URL"`
	LockTTL  time.Duration `mapstructure:"LOCK_TTL"`

	MinPlayersToStart   int  `mapstructure:"MIN_PLAYERS_TO_START"`
	MaxLobbySize        int  `mapstructure:"MAX_LOBBY_SIZE"`
	RequireOnlineToJoin bool `mapstructure:"REQUIRE_ONLINE_TO_JOIN"`

	PresenceTTL           time.Duration `mapstructure:"PRESENCE_TTL"`
	PresenceSweepInterval time.Duration `mapstructure:"PRESENCE_SWEEP_INTERVAL"`
}

var defaults = map[string]interface{}{
	"DATABASE_URL":            "",
	"JWT_SECRET":              "",
	"JWT_TTL":                 "168h",
	"PORT":                    "8080",
	"GIN_MODE":                "debug",
	"REDIS_URL":               "",
	"LOCK_TTL":                "10s",
	"MIN_PLAYERS_TO_START":    2,
	"MAX_LOBBY_SIZE":          16,
	"REQUIRE_ONLINE_TO_JOIN":  false,
	"PRESENCE_TTL":            "2m",
	"PRESENCE_SWEEP_INTERVAL": "30s",
}

// LoadConfig loads the configuration from a .env file and environment
// variables. The .env file is looked up in paths, or the working directory
// when none are given.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName(".env")
	v.SetConfigType("env")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read .env file: %w", err)
		}
		log.Println("Warning: .env file not found, loading from environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or out-of-range settings.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL must be positive"))
	}
	if c.MinPlayersToStart < 1 {
		errs = append(errs, errors.New("MIN_PLAYERS_TO_START must be at least 1"))
	}
	if c.MaxLobbySize < 1 {
		errs = append(errs, errors.New("MAX_LOBBY_SIZE must be at least 1"))
	}
	if c.PresenceTTL <= 0 || c.PresenceSweepInterval <= 0 {
		errs = append(errs, errors.New("PRESENCE_TTL and PRESENCE_SWEEP_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}
