// Package config holds the runtime configuration shared by the kitchen-mp
// binaries. Values come from the environment, optionally seeded from a .env
// file, and binaries may override individual fields with flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/automoto/kitchen-mp/match"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains every tunable of the session layer.
type Config struct {
	Version    string `env:"KITCHEN_VERSION"     envDefault:"0.1.0"`
	PlayerName string `env:"KITCHEN_PLAYER_NAME"`

	// Directory service
	MasterURL          string        `env:"KITCHEN_MASTER_URL"          envDefault:"http://localhost:8080"`
	MasterPort         int           `env:"KITCHEN_MASTER_PORT"         envDefault:"8080"`
	SessionTTL         time.Duration `env:"KITCHEN_SESSION_TTL"         envDefault:"45s"`
	AllocationLifetime time.Duration `env:"KITCHEN_ALLOCATION_LIFETIME" envDefault:"1h"`
	CleanupInterval    time.Duration `env:"KITCHEN_CLEANUP_INTERVAL"    envDefault:"10s"`

	// Lobby
	HeartbeatInterval   time.Duration `env:"KITCHEN_HEARTBEAT_INTERVAL"    envDefault:"15s"`
	ListRefreshInterval time.Duration `env:"KITCHEN_LIST_REFRESH_INTERVAL" envDefault:"3s"`
	ShutdownTimeout     time.Duration `env:"KITCHEN_SHUTDOWN_TIMEOUT"      envDefault:"5s"`

	// Host
	HostPort      int    `env:"KITCHEN_HOST_PORT"      envDefault:"7777"`
	AdvertiseHost string `env:"KITCHEN_ADVERTISE_HOST" envDefault:"127.0.0.1"`
	MaxPlayers    int    `env:"KITCHEN_MAX_PLAYERS"    envDefault:"4"`
	TickRate      int    `env:"KITCHEN_TICK_RATE"      envDefault:"20"`

	// Match
	CountdownDuration time.Duration `env:"KITCHEN_COUNTDOWN"       envDefault:"3s"`
	MatchDuration     time.Duration `env:"KITCHEN_MATCH_DURATION"  envDefault:"300s"`
	TimerSyncInterval time.Duration `env:"KITCHEN_TIMER_SYNC"      envDefault:"250ms"`

	// Logging
	LogLevel  string `env:"KITCHEN_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"KITCHEN_LOG_FORMAT" envDefault:"console"`
}

// Default returns the configuration with every default applied and no
// environment lookups.
func Default() Config {
	m := match.DefaultConfig()
	return Config{
		Version:             "0.1.0",
		MasterURL:           "http://localhost:8080",
		MasterPort:          8080,
		SessionTTL:          45 * time.Second,
		AllocationLifetime:  time.Hour,
		CleanupInterval:     10 * time.Second,
		HeartbeatInterval:   15 * time.Second,
		ListRefreshInterval: 3 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		HostPort:            7777,
		AdvertiseHost:       "127.0.0.1",
		MaxPlayers:          netconfig.MaxPlayerCount,
		TickRate:            20,
		CountdownDuration:   m.CountdownDuration,
		MatchDuration:       m.MatchDuration,
		TimerSyncInterval:   m.TimerSyncInterval,
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Load reads the given .env files, skipping missing ones, and parses the
// environment into a Config.
func Load(envFiles ...string) (Config, error) {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the session layer cannot run with.
func (c Config) Validate() error {
	if c.MaxPlayers < 1 || c.MaxPlayers > netconfig.MaxPlayerCount {
		return fmt.Errorf("max players must be between 1 and %d, got %d", netconfig.MaxPlayerCount, c.MaxPlayers)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickRate)
	}
	if c.HeartbeatInterval <= 0 || c.ListRefreshInterval <= 0 {
		return errors.New("heartbeat and list refresh intervals must be positive")
	}
	if c.SessionTTL <= c.HeartbeatInterval {
		return fmt.Errorf("session ttl %s must exceed heartbeat interval %s", c.SessionTTL, c.HeartbeatInterval)
	}
	return nil
}

// Match returns the match timings.
func (c Config) Match() match.Config {
	return match.Config{
		CountdownDuration: c.CountdownDuration,
		MatchDuration:     c.MatchDuration,
		TimerSyncInterval: c.TimerSyncInterval,
	}
}

// NewLogger builds a zap logger. LogFormat "json" selects the production
// encoder; anything else gets the development console encoder.
func NewLogger(c Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewDevelopmentConfig()
	if c.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
