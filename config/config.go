package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

func (l LogLevel) ToSlog() slog.Level {
	switch LogLevel(strings.ToUpper(string(l))) {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type LogFormat string

const (
	LogFormatPlaintext LogFormat = "plaintext"
	LogFormatJSON      LogFormat = "json"
)

type Config struct {
	App     AppConfig
	Log     LogConfig
	Sentry  SentryConfig
	Options Options
}

type AppConfig struct {
	Debug           bool
	Host            string
	Name            string
	Version         string
	ShutdownTimeout int32 `default:"2"` // in seconds
}

// SentryConfig is read from the [sentry] table. An empty DSN keeps the client in no-op mode.
type SentryConfig struct {
	Enabled    bool
	DSN        string
	SampleRate float64 `mapstructure:"sample_rate"`
	TracesRate float64 `mapstructure:"traces_rate"`
}

type LogConfig struct {
	Format  LogFormat `default:"json"`
	Level   LogLevel
	Verbose bool
}

// Load the configuration file from the specified filesystem.
// You can specify additional .env files to load, by default this only checks for ".env" in the
// current working directory.
//
// The [options] table is decoded into [Options]; option keys use the same snake_case names as
// their struct tags, e.g. "response_time" or "uptime_route".
func Load(configFS fs.FS, dotenvFiles ...string) (*Config, error) {
	file, err := configFS.Open("config.toml")
	if err != nil {
		return nil, fmt.Errorf("could not find config.toml in the configFS: %w", err)
	}
	defer file.Close()

	// Option keys contain underscores, so nesting uses the default "." delimiter and environment
	// variables map "options.trust_proxy" to OPTIONS_TRUST_PROXY.
	reader := viper.New()
	reader.SetConfigType("toml")
	reader.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = reader.ReadConfig(file); err != nil {
		return nil, fmt.Errorf("could not load the app configuration: %w", err)
	}

	// Environment override
	err = godotenv.Load(dotenvFiles...)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("No .env file found, continuing...")
	} else if err != nil {
		return nil, fmt.Errorf(".env file found, but could not load it: %w", err)
	}
	reader.AutomaticEnv()

	config := Config{
		App: AppConfig{ShutdownTimeout: 2}, //nolint:mnd
		Log: LogConfig{Format: LogFormatJSON, Level: LogLevelInfo},
	}
	if err := reader.Unmarshal(&config, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("invalid config format: %w", err)
	}

	if config.App.Debug {
		slog.Warn("APP_DEBUG is turned on, do not run this mode in production!")
	}

	return &config, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		OptionHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
