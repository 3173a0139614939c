// Package subscription reads and mutates the user's relationship with a
// single notification thread.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nhle/gunsub/internal/logging"
	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/source"
	"github.com/nhle/gunsub/internal/source/github"
)

// Resolver fetches the subscription state of notification threads.
type Resolver struct {
	api    source.Requester
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(api source.Requester, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{api: api, logger: logger}
}

// Resolve returns the subscription state of threadID.
//
// GitHub answers 404 when the thread has no subscription record at all;
// that resolves to an empty, implicit state.
func (r *Resolver) Resolve(ctx context.Context, threadID string) (model.SubscriptionState, error) {
	var state model.SubscriptionState
	err := r.api.Do(ctx, http.MethodGet, github.ThreadSubscriptionPath(threadID), nil, &state)
	if err != nil {
		if github.IsNotFound(err) {
			r.logger.Debug("no subscription record", "thread_id", threadID)
			return model.SubscriptionState{}, nil
		}
		return model.SubscriptionState{}, fmt.Errorf("resolving subscription of thread %s: %w", threadID, err)
	}
	return state, nil
}

// Executor mutes notification threads.
type Executor struct {
	api    source.Requester
	logger *slog.Logger
}

// NewExecutor creates an Executor. A nil logger discards output.
func NewExecutor(api source.Requester, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{api: api, logger: logger}
}

// Unsubscribe marks threadID as not subscribed and ignored. A response
// without the subscribed field, or one that is not a JSON object, yields
// OutcomeMalformedResponse. Transport failures are returned as errors.
func (e *Executor) Unsubscribe(ctx context.Context, threadID string) (model.Outcome, error) {
	var state model.SubscriptionState
	err := e.api.Do(ctx, http.MethodPut, github.ThreadSubscriptionPath(threadID), model.Mute, &state)
	if source.IsProtocol(err) {
		// The mutation reached GitHub; only the answer is unreadable.
		e.logger.Debug("undecodable mutation response", "thread_id", threadID, "error", err)
		return model.OutcomeMalformedResponse, nil
	}
	if err != nil {
		return model.OutcomeUnknown, fmt.Errorf("unsubscribing thread %s: %w", threadID, err)
	}
	if !state.Confirmed() {
		return model.OutcomeMalformedResponse, nil
	}
	e.logger.Debug("thread muted", "thread_id", threadID, "ignored", state.Ignored != nil && *state.Ignored)
	return model.OutcomeSuccess, nil
}

// DryRunExecutor stands in for Executor when mutations are disabled.
type DryRunExecutor struct {
	logger *slog.Logger
}

// NewDryRunExecutor creates a DryRunExecutor. A nil logger discards output.
func NewDryRunExecutor(logger *slog.Logger) *DryRunExecutor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DryRunExecutor{logger: logger}
}

// Unsubscribe logs the thread and reports OutcomeDryRun.
func (d *DryRunExecutor) Unsubscribe(_ context.Context, threadID string) (model.Outcome, error) {
	d.logger.Info("dry run, not muting", "thread_id", threadID)
	return model.OutcomeDryRun, nil
}
