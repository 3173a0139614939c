package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nhle/gunsub/internal/clock"
	"github.com/nhle/gunsub/internal/filter"
	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/scanner"
	"github.com/nhle/gunsub/internal/source/github"
	"github.com/nhle/gunsub/internal/store"
	"github.com/nhle/gunsub/internal/subscription"
	gsync "github.com/nhle/gunsub/internal/sync"
)

func runService(args []string) error {
	flags, configPath := commonFlags("run")
	flags.StringSlice("include", nil, "repository glob to scan (repeatable, comma-separated)")
	flags.StringSlice("exclude", nil, "repository glob to skip (repeatable, comma-separated)")
	flags.Int("interval", 0, "seconds between scans; 0 scans once and exits")
	flags.Bool("dry-run", false, "log implicit subscriptions without muting them")

	cfg, err := loadConfig(flags, configPath, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	if err := resolveToken(cfg, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve wires the components for cfg and runs the poller until ctx is
// cancelled (or once, without an interval).
func serve(ctx context.Context, cfg *model.AppConfig, logger *slog.Logger) error {
	interval := time.Duration(cfg.Poll.IntervalSec) * time.Second

	// A rate limit wait never outlasts one poll interval.
	client, err := github.NewClient(github.Config{
		BaseURL:      cfg.GitHub.BaseURL,
		User:         cfg.GitHub.User,
		Token:        cfg.GitHub.Token,
		UserAgent:    fmt.Sprintf("gunsub/%s (+https://github.com/jpetazzo/gunsub)", version),
		Timeout:      time.Duration(cfg.GitHub.TimeoutSec) * time.Second,
		MaxRetries:   cfg.GitHub.MaxRetries,
		MaxRetryWait: interval,
		Logger:       logger.With("component", "github"),
	})
	if err != nil {
		return err
	}

	cursors, err := store.Open(cfg.State)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer cursors.Close()

	var runs store.RunRecorder
	if recorder, ok := cursors.(store.RunRecorder); ok {
		runs = recorder
	}

	var unsubscriber scanner.Unsubscriber = subscription.NewExecutor(client, logger.With("component", "executor"))
	if cfg.Poll.DryRun {
		logger.Warn("dry run: subscriptions will not be changed")
		unsubscriber = subscription.NewDryRunExecutor(logger.With("component", "executor"))
	}

	rules := filter.NewRules(cfg.Repos.Include, cfg.Repos.Exclude)
	logger.Info("starting",
		"user", cfg.GitHub.User,
		"include", rules.Include,
		"exclude", rules.Exclude,
		"interval", interval,
		"state", cfg.State.Path,
	)

	poller := gsync.New(gsync.Config{
		Scanner: scanner.New(scanner.Config{
			API:          client,
			Resolver:     subscription.NewResolver(client, logger.With("component", "resolver")),
			Unsubscriber: unsubscriber,
			Rules:        rules,
			PerPage:      cfg.GitHub.PerPage,
			Logger:       logger.With("component", "scanner"),
		}),
		Cursors:  cursors,
		Runs:     runs,
		Interval: interval,
		Clock:    clock.Real(),
		Logger:   logger.With("component", "poller"),
	})

	return poller.Run(ctx)
}
