// Package scanner walks the notification inbox and mutes implicit
// thread subscriptions.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nhle/gunsub/internal/filter"
	"github.com/nhle/gunsub/internal/logging"
	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/source"
	"github.com/nhle/gunsub/internal/source/github"
)

// DefaultPerPage is the notifications page size used when none is set.
const DefaultPerPage = 50

// Resolver returns the subscription state of a thread.
type Resolver interface {
	Resolve(ctx context.Context, threadID string) (model.SubscriptionState, error)
}

// Unsubscriber mutes a thread.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, threadID string) (model.Outcome, error)
}

// Config holds the dependencies of a Scanner.
type Config struct {
	API          source.Requester
	Resolver     Resolver
	Unsubscriber Unsubscriber
	Rules        filter.Rules
	PerPage      int
	Logger       *slog.Logger
}

// Scanner runs incremental scans of the notification inbox.
type Scanner struct {
	api          source.Requester
	resolver     Resolver
	unsubscriber Unsubscriber
	rules        filter.Rules
	perPage      int
	logger       *slog.Logger
}

// New creates a Scanner.
func New(cfg Config) *Scanner {
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scanner{
		api:          cfg.API,
		resolver:     cfg.Resolver,
		unsubscriber: cfg.Unsubscriber,
		rules:        cfg.Rules,
		perPage:      perPage,
		logger:       logger,
	}
}

// Scan processes every notification updated at or after since (all of
// them when since is nil), page by page until GitHub returns an empty
// page. Implicit subscriptions of in-scope threads with reason
// "subscribed" are muted.
//
// Any transport or protocol failure aborts the scan; the returned error
// names the page it happened on.
func (s *Scanner) Scan(ctx context.Context, since *time.Time) (model.ScanResult, error) {
	var result model.ScanResult

	if since == nil {
		s.logger.Warn("no cursor, scanning all notifications; this could take a while")
	} else {
		s.logger.Info("scanning notifications", "since", since.UTC().Format(github.SinceFormat))
	}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("scanning page %d: %w", page, err)
		}

		var notifications []model.Notification
		path := github.NotificationsPath(page, s.perPage, since)
		if err := s.api.Do(ctx, http.MethodGet, path, nil, &notifications); err != nil {
			return result, fmt.Errorf("fetching notifications page %d: %w", page, err)
		}
		result.Pages = page

		if len(notifications) == 0 {
			return result, nil
		}

		s.logger.Debug("fetched page", "page", page, "count", len(notifications))

		for _, n := range notifications {
			if err := s.process(ctx, n, &result); err != nil {
				return result, fmt.Errorf("processing notifications page %d: %w", page, err)
			}
		}
	}
}

// process applies the decision procedure to one notification.
func (s *Scanner) process(ctx context.Context, n model.Notification, result *model.ScanResult) error {
	if !s.rules.Includes(n) {
		s.logger.Debug("repository filtered out", "repo", n.Repository.FullName, "thread_id", n.ID)
		return nil
	}
	if n.Reason != model.ReasonSubscribed {
		return nil
	}
	result.Considered++

	state, err := s.resolver.Resolve(ctx, n.ID)
	if err != nil {
		return err
	}
	if state.Explicit() {
		s.logger.Debug("explicit subscription kept", "thread_id", n.ID, "repo", n.Repository.FullName)
		return nil
	}

	s.logger.Info("unsubscribing",
		"thread_id", n.ID,
		"repo", n.Repository.FullName,
		"subject_url", n.Subject.URL,
	)

	outcome, err := s.unsubscriber.Unsubscribe(ctx, n.ID)
	if err != nil {
		return err
	}

	switch outcome {
	case model.OutcomeSuccess:
		result.Unsubscribed++
	case model.OutcomeMalformedResponse:
		result.Malformed++
		s.logger.Warn("unsubscribe not confirmed, will retry next scan",
			"thread_id", n.ID,
			"subject_url", n.Subject.URL,
			"outcome", outcome.String(),
		)
		return nil
	case model.OutcomeDryRun:
		result.DryRun++
	}
	s.logger.Debug("unsubscribe finished", "thread_id", n.ID, "outcome", outcome.String())
	return nil
}
