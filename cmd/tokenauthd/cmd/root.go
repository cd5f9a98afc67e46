package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/voyz/tokenauth"
)

var (
	envPrefix string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tokenauthd",
	Short: "tokenauthd issues and rotates session tokens",
	Long: `tokenauthd runs the tokenauth session lifecycle as an HTTP service.

Engine settings are read from <prefix>_* environment variables
(JWT_SECRET, ACCESS_TTL, REFRESH_TTL, ...). Storage, transport and audit
wiring are chosen with flags.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", "TOKENAUTH", "Prefix for configuration environment variables")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json or console)")
}

func newLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	var logger zerolog.Logger
	switch logFormat {
	case "json":
		logger = zerolog.New(os.Stderr)
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", logFormat)
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}

func loadConfig() (tokenauth.Config, error) {
	cfg, err := tokenauth.LoadConfigFromEnv(envPrefix)
	if err != nil {
		return tokenauth.Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return tokenauth.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
