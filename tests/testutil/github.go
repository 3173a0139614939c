package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/source/github"
)

// RecordedRequest is one request served by FakeGitHub.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// FakeGitHub is an in-process TLS server speaking the subset of the
// GitHub notifications API gunsub uses.
//
// Pages are served 1-based; any page past the configured ones is empty.
// Threads without a configured subscription answer 404, like GitHub does
// for threads the user follows only implicitly. A confirmed PUT turns the
// thread's subscription explicit.
type FakeGitHub struct {
	Server *httptest.Server

	mu            sync.Mutex
	pages         [][]model.Notification
	subscriptions map[string]string
	putResponses  map[string]string
	failures      map[int]int
	rawPages      map[int]string
	requests      []RecordedRequest
}

// NewFakeGitHub starts a FakeGitHub that is shut down when the test ends.
func NewFakeGitHub(t *testing.T) *FakeGitHub {
	t.Helper()

	f := &FakeGitHub{
		subscriptions: make(map[string]string),
		putResponses:  make(map[string]string),
		failures:      make(map[int]int),
		rawPages:      make(map[int]string),
	}
	f.Server = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// Client returns a github.Client pointed at the fake server.
func (f *FakeGitHub) Client(t *testing.T) *github.Client {
	t.Helper()

	client, err := github.NewClient(github.Config{
		BaseURL:    f.Server.URL,
		User:       "octocat",
		Token:      "s3cret",
		HTTPClient: f.Server.Client(),
		Timeout:    5 * time.Second,
		MaxRetries: -1,
	})
	if err != nil {
		t.Fatalf("creating github client: %v", err)
	}
	return client
}

// SetPages replaces the notification pages.
func (f *FakeGitHub) SetPages(pages ...[]model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = pages
}

// SetSubscription sets the raw JSON answered for GET on threadID's
// subscription.
func (f *FakeGitHub) SetSubscription(threadID, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[threadID] = body
}

// SetExplicit gives threadID a subscription record.
func (f *FakeGitHub) SetExplicit(threadID string) {
	f.SetSubscription(threadID, explicitSubscription(f.Server.URL, threadID))
}

// SetPutResponse overrides the raw JSON answered for PUT on threadID.
func (f *FakeGitHub) SetPutResponse(threadID, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putResponses[threadID] = body
}

// FailPage makes the given notifications page answer status.
func (f *FakeGitHub) FailPage(page, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[page] = status
}

// SetRawPage makes the given notifications page answer 200 with body.
func (f *FakeGitHub) SetRawPage(page int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawPages[page] = body
}

// Requests returns a copy of every request served so far.
func (f *FakeGitHub) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	requests := make([]RecordedRequest, len(f.requests))
	copy(requests, f.requests)
	return requests
}

// Count returns how many requests matched method and path prefix.
func (f *FakeGitHub) Count(method, pathPrefix string) int {
	count := 0
	for _, r := range f.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			count++
		}
	}
	return count
}

func (f *FakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Remaining", "4999")

	switch {
	case r.URL.Path == "/notifications" && r.Method == http.MethodGet:
		f.serveNotifications(w, r)
	case strings.HasPrefix(r.URL.Path, "/notifications/threads/") &&
		strings.HasSuffix(r.URL.Path, "/subscription"):
		threadID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/notifications/threads/"), "/subscription")
		f.serveSubscription(w, r, threadID)
	default:
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
	}
}

func (f *FakeGitHub) serveNotifications(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		writeJSON(w, http.StatusUnprocessableEntity, `{"message":"Invalid page"}`)
		return
	}
	if status, ok := f.failures[page]; ok {
		writeJSON(w, status, `{"message":"Server Error"}`)
		return
	}
	if body, ok := f.rawPages[page]; ok {
		writeJSON(w, http.StatusOK, body)
		return
	}

	items := []model.Notification{}
	if page <= len(f.pages) {
		items = f.pages[page-1]
	}
	data, _ := json.Marshal(items)
	writeJSON(w, http.StatusOK, string(data))
}

func (f *FakeGitHub) serveSubscription(w http.ResponseWriter, r *http.Request, threadID string) {
	switch r.Method {
	case http.MethodGet:
		body, ok := f.subscriptions[threadID]
		if !ok {
			writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
			return
		}
		writeJSON(w, http.StatusOK, body)
	case http.MethodPut:
		body, ok := f.putResponses[threadID]
		if !ok {
			body = explicitSubscription(f.Server.URL, threadID)
			f.subscriptions[threadID] = body
		}
		writeJSON(w, http.StatusOK, body)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, `{"message":"Method Not Allowed"}`)
	}
}

func explicitSubscription(baseURL, threadID string) string {
	return fmt.Sprintf(
		`{"subscribed":false,"ignored":true,"reason":null,"created_at":"2026-01-02T03:04:05Z",`+
			`"url":"%[1]s/notifications/threads/%[2]s/subscription","thread_url":"%[1]s/notifications/threads/%[2]s"}`,
		baseURL, threadID,
	)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// SubscribedNotification builds a notification with reason "subscribed"
// in the repository named fullName ("owner/repo").
func SubscribedNotification(id, fullName string) model.Notification {
	return Notification(id, fullName, model.ReasonSubscribed)
}

// Notification builds a notification in the repository named fullName.
func Notification(id, fullName string, reason model.Reason) model.Notification {
	name := fullName
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		name = fullName[i+1:]
	}
	return model.Notification{
		ID:         id,
		Reason:     reason,
		Unread:     true,
		UpdatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Repository: model.Repository{Name: name, FullName: fullName},
		Subject: model.Subject{
			Title: "Thread " + id,
			URL:   "https://api.github.com/repos/" + fullName + "/issues/" + id,
			Type:  "Issue",
		},
	}
}
