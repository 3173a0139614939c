package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// State backends accepted by StateConfig.Backend.
const (
	StateBackendFile   = "file"
	StateBackendSQLite = "sqlite"
)

// GitHubConfig holds the account and API settings.
type GitHubConfig struct {
	// User is the GitHub login. With a token it selects Basic auth.
	User string `mapstructure:"user" yaml:"user"`

	// Token is a password or personal access token.
	Token string `mapstructure:"token" yaml:"token"`

	// BaseURL is the REST API root.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// PerPage is the notifications page size (GitHub caps it at 100).
	PerPage int `mapstructure:"per_page" yaml:"per_page"`

	// TimeoutSec bounds every single API request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// MaxRetries bounds retries of rate-limited requests.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// ReposConfig scopes which notifications are considered at all.
type ReposConfig struct {
	Include []string `mapstructure:"include" yaml:"include"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// PollConfig controls continuous operation.
type PollConfig struct {
	// IntervalSec is the pause between scans. Zero means run once.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// DryRun resolves subscriptions but never mutates them.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// StateConfig selects where the cursor is persisted.
type StateConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds console logging preferences.
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	GitHub GitHubConfig `mapstructure:"github" yaml:"github"`
	Repos  ReposConfig  `mapstructure:"repos" yaml:"repos"`
	Poll   PollConfig   `mapstructure:"poll" yaml:"poll"`
	State  StateConfig  `mapstructure:"state" yaml:"state"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// envBindings maps config keys to the environment variables the tool
// has always honored. Several names may feed one key; the first set wins.
var envBindings = map[string][]string{
	"github.user":       {"GITHUB_USER"},
	"github.token":      {"GITHUB_PASSWORD", "GITHUB_TOKEN"},
	"github.base_url":   {"GITHUB_API_URL"},
	"repos.include":     {"GITHUB_INCLUDE_REPOS"},
	"repos.exclude":     {"GITHUB_EXCLUDE_REPOS"},
	"poll.interval_sec": {"GITHUB_POLL_INTERVAL"},
	"state.path":        {"GUNSUB_STATE_FILE"},
	"log.level":         {"GUNSUB_LOG_LEVEL"},
}

// flagBindings maps command-line flag names to config keys.
var flagBindings = map[string]string{
	"user":          "github.user",
	"password":      "github.token",
	"api-url":       "github.base_url",
	"include":       "repos.include",
	"exclude":       "repos.exclude",
	"interval":      "poll.interval_sec",
	"dry-run":       "poll.dry_run",
	"state-backend": "state.backend",
	"state-file":    "state.path",
	"log-level":     "log.level",
	"no-color":      "log.no_color",
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/gunsub/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "gunsub", "config.yaml")
}

// DefaultStatePath returns where backend keeps the cursor when no path
// is configured.
func DefaultStatePath(backend string) string {
	if backend == StateBackendSQLite {
		return "./gunsub.db"
	}
	return "./next-since"
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		GitHub: GitHubConfig{
			BaseURL:    "https://api.github.com",
			PerPage:    50,
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Repos: ReposConfig{
			Include: []string{},
			Exclude: []string{},
		},
		State: StateConfig{
			Backend: StateBackendFile,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads configuration from the YAML file at path, the
// environment and flags (when non-nil), in increasing precedence.
// A missing file is not an error.
func LoadConfig(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	def := defaultAppConfig()
	v.SetDefault("github.base_url", def.GitHub.BaseURL)
	v.SetDefault("github.per_page", def.GitHub.PerPage)
	v.SetDefault("github.timeout_sec", def.GitHub.TimeoutSec)
	v.SetDefault("github.max_retries", def.GitHub.MaxRetries)
	v.SetDefault("state.backend", def.State.Backend)
	v.SetDefault("log.level", def.Log.Level)

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagBindings {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Repos.Include = SplitPatterns(cfg.Repos.Include)
	cfg.Repos.Exclude = SplitPatterns(cfg.Repos.Exclude)
	cfg.GitHub.BaseURL = strings.TrimRight(cfg.GitHub.BaseURL, "/")
	cfg.State.Backend = strings.ToLower(strings.TrimSpace(cfg.State.Backend))
	if cfg.State.Path == "" {
		cfg.State.Path = DefaultStatePath(cfg.State.Backend)
	}

	return cfg, nil
}

// Validate checks the settings needed to run a scan.
func (c *AppConfig) Validate() error {
	if c.GitHub.User == "" && c.GitHub.Token == "" {
		return fmt.Errorf("github user or token is required (set GITHUB_USER / GITHUB_PASSWORD)")
	}
	if c.GitHub.PerPage < 1 || c.GitHub.PerPage > 100 {
		return fmt.Errorf("github.per_page must be between 1 and 100, got %d", c.GitHub.PerPage)
	}
	if c.GitHub.TimeoutSec < 0 {
		return fmt.Errorf("github.timeout_sec must not be negative, got %d", c.GitHub.TimeoutSec)
	}
	if c.Poll.IntervalSec < 0 {
		return fmt.Errorf("poll.interval_sec must not be negative, got %d", c.Poll.IntervalSec)
	}
	switch c.State.Backend {
	case StateBackendFile, StateBackendSQLite:
	default:
		return fmt.Errorf("state.backend must be %q or %q, got %q",
			StateBackendFile, StateBackendSQLite, c.State.Backend)
	}
	if c.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c AppConfig) Redacted() AppConfig {
	if c.GitHub.Token != "" {
		c.GitHub.Token = "********"
	}
	return c
}

// SplitPatterns flattens comma-separated entries and drops blanks, so
// an empty GITHUB_INCLUDE_REPOS never turns into a match-nothing list.
func SplitPatterns(entries []string) []string {
	patterns := make([]string, 0, len(entries))
	for _, entry := range entries {
		for _, p := range strings.Split(entry, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			patterns = append(patterns, p)
		}
	}
	return patterns
}
