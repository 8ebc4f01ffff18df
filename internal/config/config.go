package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration of foliowatch
type Config struct {
	Finnhub   FinnhubConfig   `mapstructure:"finnhub"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Log       LogConfig       `mapstructure:"log"`
}

type FinnhubConfig struct {
	Token  string `mapstructure:"token"`
	WSURL  string `mapstructure:"ws_url"`
	APIURL string `mapstructure:"api_url"`
}

type StreamConfig struct {
	ReconnectLimit    int           `mapstructure:"reconnect_limit"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
	BufferSize        int           `mapstructure:"buffer_size"`
	// PollInterval is how often snapshot quotes are refreshed for symbols
	// without a live price
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type AlertsConfig struct {
	// Store is one of file, redis or memory
	Store  string `mapstructure:"store"`
	Dir    string `mapstructure:"dir"`
	Notify bool   `mapstructure:"notify"`
	Chime  bool   `mapstructure:"chime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type PortfolioConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var keys = []string{
	"finnhub.ws_url", "finnhub.api_url",
	"stream.reconnect_limit", "stream.reconnect_delay", "stream.max_reconnect_delay",
	"stream.buffer_size", "stream.poll_interval",
	"alerts.store", "alerts.dir", "alerts.notify", "alerts.chime",
	"redis.addr", "redis.password", "redis.db", "redis.prefix",
	"server.addr",
	"portfolio.file",
	"log.level",
}

// Load reads the configuration from, in increasing priority: defaults, the
// config file, a .env file in the working directory and the environment.
// When path is empty foliowatch.yaml is looked up in the working directory
// and the user config directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to load .env: %w", err)
	}

	v := viper.New()
	dir := defaultDir()

	v.SetDefault("finnhub.ws_url", "wss://ws.finnhub.io")
	v.SetDefault("finnhub.api_url", "https://finnhub.io/api/v1")
	v.SetDefault("stream.reconnect_limit", 0)
	v.SetDefault("stream.reconnect_delay", 5*time.Second)
	v.SetDefault("stream.max_reconnect_delay", time.Minute)
	v.SetDefault("stream.buffer_size", 10000)
	v.SetDefault("stream.poll_interval", 30*time.Second)
	v.SetDefault("alerts.store", "file")
	v.SetDefault("alerts.dir", dir)
	v.SetDefault("alerts.notify", true)
	v.SetDefault("alerts.chime", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "foliowatch:")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("portfolio.file", filepath.Join(dir, "holdings.yaml"))
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("foliowatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read config: %w", err)
		}
	}

	v.SetEnvPrefix("FOLIOWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	// the key is shared with the other finnhub tools
	if err := v.BindEnv("finnhub.token", "FOLIOWATCH_FINNHUB_TOKEN", "FINNHUB_API_KEY"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Alerts.Store {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("alerts.store must be file, redis or memory, got %q", c.Alerts.Store)
	}
	if c.Stream.ReconnectLimit < 0 {
		return fmt.Errorf("stream.reconnect_limit must not be negative")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be positive")
	}
	return nil
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".foliowatch"
	}
	return filepath.Join(dir, "foliowatch")
}
