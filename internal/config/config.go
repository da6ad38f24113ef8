package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	TokenKey   string `mapstructure:"token_key"`

	ReadLimit int64 `mapstructure:"read_limit"`

	// Heartbeat cadence is adaptive by declared device class; mobile and
	// low-end clients get probed more often because mobile OSes suspend
	// idle sockets aggressively.
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	MobilePingPeriod time.Duration `mapstructure:"mobile_ping_period"`
	LowEndPingPeriod time.Duration `mapstructure:"low_end_ping_period"`

	// RoomTTL is the hard ceiling on room age, a safety valve against
	// leaked state.
	RoomTTL       time.Duration `mapstructure:"room_ttl"`
	JanitorPeriod time.Duration `mapstructure:"janitor_period"`

	JoinLimit  int           `mapstructure:"join_limit"`
	JoinWindow time.Duration `mapstructure:"join_window"`

	SQLitePath string `mapstructure:"sqlite_path"`
	RedisAddr  string `mapstructure:"redis_addr"`
}

func Load() (*Config, error) {
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("mobile_ping_period", "15s")
	v.SetDefault("low_end_ping_period", "15s")
	v.SetDefault("room_ttl", "24h")
	v.SetDefault("janitor_period", "10m")
	v.SetDefault("join_limit", 10)
	v.SetDefault("join_window", "1m")
	v.SetDefault("sqlite_path", "conferences.db")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
