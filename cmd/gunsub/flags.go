package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nhle/gunsub/internal/credential"
	"github.com/nhle/gunsub/internal/logging"
	"github.com/nhle/gunsub/internal/model"
)

// commonFlags declares the flags shared by every subcommand. Flag names
// match the bindings in model.LoadConfig.
func commonFlags(name string) (*pflag.FlagSet, *string) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configPath := flags.String("config", model.DefaultConfigPath(), "configuration file")
	flags.String("user", "", "GitHub login")
	flags.String("password", "", "GitHub password or personal access token")
	flags.String("api-url", "", "GitHub API root")
	flags.String("state-backend", "", "cursor storage: file or sqlite")
	flags.String("state-file", "", "cursor file or database path")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("no-color", false, "disable colored log output")
	flags.Bool("debug", false, "shorthand for --log-level=debug")
	return flags, configPath
}

// loadConfig parses args with flags and loads the configuration.
func loadConfig(flags *pflag.FlagSet, configPath *string, args []string) (*model.AppConfig, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}

	cfg, err := model.LoadConfig(*configPath, flags)
	if err != nil {
		return nil, err
	}
	if debug, _ := flags.GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *model.AppConfig) *slog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.NoColor, os.Stderr)
}

// resolveToken fills in the token from the keyring when none was
// configured.
func resolveToken(cfg *model.AppConfig, logger *slog.Logger) error {
	if cfg.GitHub.Token != "" {
		return nil
	}

	token, err := credential.Get(credential.TokenKey(cfg.GitHub.User))
	if errors.Is(err, credential.ErrNotFound) {
		return fmt.Errorf("no GitHub token configured: set GITHUB_PASSWORD or run 'gunsub login'")
	}
	if err != nil {
		return fmt.Errorf("reading token from keyring: %w", err)
	}
	logger.Debug("using token from keyring", "user", cfg.GitHub.User)
	cfg.GitHub.Token = token
	return nil
}
