package scanner

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nhle/gunsub/internal/filter"
	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/source"
	"github.com/nhle/gunsub/internal/subscription"
	"github.com/nhle/gunsub/tests/testutil"
)

const subscriptionPrefix = "/notifications/threads/"

// newTestScanner wires a Scanner to the fake server with the real
// resolver and executor.
func newTestScanner(t *testing.T, gh *testutil.FakeGitHub, rules filter.Rules) *Scanner {
	t.Helper()
	client := gh.Client(t)
	return New(Config{
		API:          client,
		Resolver:     subscription.NewResolver(client, nil),
		Unsubscriber: subscription.NewExecutor(client, nil),
		Rules:        rules,
	})
}

func subscribedPage(prefix string, count int) []model.Notification {
	page := make([]model.Notification, 0, count)
	for i := 0; i < count; i++ {
		page = append(page, testutil.SubscribedNotification(fmt.Sprintf("%s%d", prefix, i), "acme/widgets"))
	}
	return page
}

func TestScan_ExcludedRepositoryIsNotTouched(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages([]model.Notification{
		testutil.SubscribedNotification("1", "a/x"),
		testutil.SubscribedNotification("2", "b/y"),
	})

	result, err := newTestScanner(t, gh, filter.NewRules(nil, []string{"a/*"})).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if result.Unsubscribed != 1 {
		t.Errorf("Unsubscribed = %d, want 1", result.Unsubscribed)
	}
	if result.Pages != 2 {
		t.Errorf("Pages = %d, want 2", result.Pages)
	}
	if n := gh.Count(http.MethodGet, subscriptionPrefix+"1/"); n != 0 {
		t.Errorf("excluded thread resolved %d times", n)
	}
	if n := gh.Count(http.MethodPut, subscriptionPrefix+"2/"); n != 1 {
		t.Errorf("thread 2 muted %d times, want 1", n)
	}
}

func TestScan_OnlySubscribedReasonIsConsidered(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages([]model.Notification{
		testutil.Notification("1", "a/x", model.ReasonMention),
		testutil.Notification("2", "a/x", model.ReasonAuthor),
		testutil.Notification("3", "a/x", model.ReasonReviewRequested),
	})

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Considered != 0 || result.Unsubscribed != 0 {
		t.Errorf("result = %+v, want nothing considered", result)
	}
	if n := gh.Count(http.MethodGet, subscriptionPrefix); n != 0 {
		t.Errorf("resolver called %d times, want 0", n)
	}
}

func TestScan_ExplicitSubscriptionIsKept(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages([]model.Notification{testutil.SubscribedNotification("1", "a/x")})
	gh.SetExplicit("1")

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Considered != 1 || result.Unsubscribed != 0 {
		t.Errorf("result = %+v", result)
	}
	if n := gh.Count(http.MethodPut, subscriptionPrefix); n != 0 {
		t.Errorf("explicit subscription mutated %d times", n)
	}
}

func TestScan_EmptySubscriptionRecordIsMuted(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages([]model.Notification{testutil.SubscribedNotification("2", "a/x")})
	gh.SetSubscription("2", `{}`)
	gh.SetPutResponse("2", `{"subscribed":false}`)

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Unsubscribed != 1 {
		t.Errorf("Unsubscribed = %d, want 1", result.Unsubscribed)
	}

	var puts []testutil.RecordedRequest
	for _, r := range gh.Requests() {
		if r.Method == http.MethodPut {
			puts = append(puts, r)
		}
	}
	if len(puts) != 1 || string(puts[0].Body) != `{"subscribed":false,"ignored":true}` {
		t.Errorf("PUT requests = %+v", puts)
	}
}

func TestScan_PaginatesUntilEmptyPage(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages(subscribedPage("p1-", 50), subscribedPage("p2-", 50))

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if result.Pages != 3 {
		t.Errorf("Pages = %d, want 3", result.Pages)
	}
	if result.Unsubscribed != 100 {
		t.Errorf("Unsubscribed = %d, want 100", result.Unsubscribed)
	}
	if n := gh.Count(http.MethodGet, subscriptionPrefix); n != 100 {
		t.Errorf("resolver called %d times, want 100", n)
	}
	if n := gh.Count(http.MethodGet, "/notifications"); n != 103 {
		// 3 pages plus 100 subscription lookups share the prefix.
		t.Errorf("GET /notifications* = %d, want 103", n)
	}
}

func TestScan_EmptyInbox(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result != (model.ScanResult{Pages: 1}) {
		t.Errorf("result = %+v, want only Pages=1", result)
	}
}

func TestScan_PageFailureAbortsScan(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages(subscribedPage("p1-", 3), subscribedPage("p2-", 3))
	gh.FailPage(2, http.StatusInternalServerError)

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !source.IsTransport(err) {
		t.Errorf("expected TransportError, got %v", err)
	}
	if !strings.Contains(err.Error(), "page 2") {
		t.Errorf("error should name the page: %v", err)
	}
	if result.Unsubscribed != 3 {
		t.Errorf("page 1 mutations = %d, want 3", result.Unsubscribed)
	}
	if n := gh.Count(http.MethodGet, "/notifications"); n != 3+2 {
		t.Errorf("unexpected request count %d", n)
	}
}

func TestScan_SinceQuery(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	since := time.Date(2026, 2, 3, 4, 5, 6, 700_000_000, time.UTC)

	if _, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), &since); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	requests := gh.Requests()
	if len(requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(requests))
	}
	query := requests[0].Query
	if got := query.Get("since"); got != "2026-02-03T04:05:06Z" {
		t.Errorf("since = %q", got)
	}
	if got := query.Get("page"); got != "1" {
		t.Errorf("page = %q", got)
	}
	if got := query.Get("per_page"); got != "50" {
		t.Errorf("per_page = %q", got)
	}
}

func TestScan_NoCursorOmitsSince(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)

	if _, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if query := gh.Requests()[0].Query; query.Has("since") {
		t.Errorf("since must be omitted, got %q", query.Get("since"))
	}
}

func TestScan_MalformedResponseContinues(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages([]model.Notification{
		testutil.SubscribedNotification("1", "a/x"),
		testutil.SubscribedNotification("2", "a/x"),
	})
	gh.SetPutResponse("1", `{}`)

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Malformed != 1 || result.Unsubscribed != 1 {
		t.Errorf("result = %+v, want 1 malformed and 1 unsubscribed", result)
	}
}

func TestScan_NonObjectMutationResponseContinues(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages([]model.Notification{
		testutil.SubscribedNotification("1", "a/x"),
		testutil.SubscribedNotification("2", "a/x"),
	})
	gh.SetPutResponse("1", `[]`)

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Malformed != 1 || result.Unsubscribed != 1 {
		t.Errorf("result = %+v, want 1 malformed and 1 unsubscribed", result)
	}
	if n := gh.Count(http.MethodPut, subscriptionPrefix+"2/"); n != 1 {
		t.Errorf("thread 2 muted %d times, want 1", n)
	}
}

func TestScan_UndecodablePageAbortsScan(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages(
		[]model.Notification{testutil.SubscribedNotification("1", "a/x")},
		[]model.Notification{testutil.SubscribedNotification("2", "a/x")},
	)
	gh.SetRawPage(2, `{"message":"x"}`)

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if !source.IsProtocol(err) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if !strings.Contains(err.Error(), "page 2") {
		t.Errorf("error should name the page: %v", err)
	}
	if result.Pages != 1 || result.Unsubscribed != 1 {
		t.Errorf("result = %+v, want page 1 processed only", result)
	}
	if n := gh.Count(http.MethodGet, "/notifications/threads/2/"); n != 0 {
		t.Errorf("thread 2 resolved %d times", n)
	}
}

func TestScan_RepeatedThreadIsMutedOnce(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	thread := testutil.SubscribedNotification("1", "a/x")
	gh.SetPages([]model.Notification{thread}, []model.Notification{thread})

	result, err := newTestScanner(t, gh, filter.Rules{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Unsubscribed != 1 {
		t.Errorf("Unsubscribed = %d, want 1", result.Unsubscribed)
	}
	if n := gh.Count(http.MethodPut, subscriptionPrefix); n != 1 {
		t.Errorf("PUT count = %d, want 1", n)
	}
}

func TestScan_DryRunNeverMutates(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	gh.SetPages([]model.Notification{testutil.SubscribedNotification("1", "a/x")})
	client := gh.Client(t)

	scanner := New(Config{
		API:          client,
		Resolver:     subscription.NewResolver(client, nil),
		Unsubscriber: subscription.NewDryRunExecutor(nil),
	})
	result, err := scanner.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.DryRun != 1 || result.Unsubscribed != 0 {
		t.Errorf("result = %+v", result)
	}
	if n := gh.Count(http.MethodPut, subscriptionPrefix); n != 0 {
		t.Errorf("PUT count = %d, want 0", n)
	}
}

func TestScan_CancelledContext(t *testing.T) {
	gh := testutil.NewFakeGitHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner(t, gh, filter.Rules{}).Scan(ctx, nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(gh.Requests()) != 0 {
		t.Errorf("no request should be sent")
	}
}
