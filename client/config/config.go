package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "WATCHPARTY"

var ErrConfig = errors.New("invalid configuration")

type Config struct {
	ServerURL         string        `mapstructure:"server-url"`
	APIListenAddr     string        `mapstructure:"api-listen-addr"`
	LogLevel          string        `mapstructure:"log-level"`
	Username          string        `mapstructure:"username"`
	ReconnectAttempts int           `mapstructure:"reconnect-attempts"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// Load resolves configuration from, in order of precedence, command line
// flags, WATCHPARTY_* environment variables, an optional yaml file given
// with --config, and defaults.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("watchparty", pflag.ContinueOnError)
	fs.StringP("server-url", "s", "ws://localhost:5000/socket", "signaling server websocket url")
	fs.StringP("api-listen-addr", "a", ":8090", "local api listen address")
	fs.StringP("log-level", "l", "debug", "log level")
	fs.StringP("username", "u", "", "display name (defaults to the session id)")
	fs.Int("reconnect-attempts", 3, "consecutive failed connection attempts before giving up")
	fs.Duration("timeout", 10*time.Second, "connect and handshake timeout")
	configFile := fs.StringP("config", "c", "", "path to yaml config file")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Join(ErrConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Join(ErrConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Join(ErrConfig, err)
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.ServerURL == "" {
		return errors.New("server-url is empty")
	}
	if !strings.HasPrefix(cfg.ServerURL, "ws://") && !strings.HasPrefix(cfg.ServerURL, "wss://") {
		return fmt.Errorf("server-url %q must use ws:// or wss://", cfg.ServerURL)
	}
	if cfg.ReconnectAttempts <= 0 {
		return fmt.Errorf("reconnect-attempts must be positive, got %d", cfg.ReconnectAttempts)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	return nil
}
