package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/gunsub/internal/logging"
	"github.com/nhle/gunsub/internal/source"
)

// apiVersion pins the GitHub REST API version.
const apiVersion = "2022-11-28"

// DefaultBaseURL is the root of the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

// DefaultUserAgent identifies the tool to GitHub.
const DefaultUserAgent = "gunsub/0.3 (+https://github.com/jpetazzo/gunsub)"

// maxErrorBody bounds how much of a failed response is kept in errors.
const maxErrorBody = 1024

// Config holds the settings for NewClient.
type Config struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL. Must use HTTPS.
	BaseURL string

	// User and Token select the authentication mode: both set means
	// HTTP Basic (the token acts as password), Token alone means Bearer.
	User  string
	Token string

	// UserAgent defaults to DefaultUserAgent.
	UserAgent string

	// Timeout bounds every request. Defaults to 30s.
	Timeout time.Duration

	// MaxRetries bounds retries of rate-limited requests. Defaults to 3;
	// a negative value disables retries.
	MaxRetries int

	// MaxRetryWait caps a single rate limit wait, whatever Retry-After
	// or X-RateLimit-Reset ask for. Defaults to 60s.
	MaxRetryWait time.Duration

	// HTTPClient overrides the transport (tests use httptest clients).
	HTTPClient *http.Client

	// Logger receives request traces at debug level.
	Logger *slog.Logger
}

// Client is a thin HTTP client for the GitHub REST API.
// It handles authentication, JSON marshaling, and retry with
// exponential backoff on rate limiting.
type Client struct {
	baseURL    string
	authHeader string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	maxRetries int
	maxWait    time.Duration
	logger     *slog.Logger
}

var _ source.Requester = (*Client)(nil)

// NewClient creates a GitHub HTTP client. Returns an error when no
// credentials are configured or the base URL is not HTTPS.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}

	var authHeader string
	switch {
	case cfg.User != "" && cfg.Token != "":
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.User + ":" + cfg.Token))
		authHeader = "Basic " + credentials
	case cfg.Token != "":
		authHeader = "Bearer " + cfg.Token
	default:
		return nil, fmt.Errorf("github: no credentials configured (set a token, optionally with a user)")
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	maxWait := cfg.MaxRetryWait
	if maxWait <= 0 {
		maxWait = time.Minute
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		baseURL:    baseURL,
		authHeader: authHeader,
		userAgent:  userAgent,
		timeout:    timeout,
		httpClient: httpClient,
		maxRetries: maxRetries,
		maxWait:    maxWait,
		logger:     logger,
	}, nil
}

// Do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) Do(
	ctx context.Context,
	method string,
	path string,
	body any,
	result any,
) error {
	url := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
		c.logger.Debug("request body", "method", method, "path", path, "bytes", len(payload))
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		status, header, respBody, err := c.roundTrip(ctx, method, url, payload)
		if err != nil {
			return &source.TransportError{Method: method, Path: path, Err: err}
		}

		c.logger.Debug("github response",
			"method", method,
			"path", path,
			"status", status,
			"ratelimit_remaining", header.Get("X-RateLimit-Remaining"),
		)

		if isRateLimited(status, respBody) && attempt < c.maxRetries {
			wait := min(retryAfterDuration(header, attempt, time.Now()), c.maxWait)
			lastErr = &source.APIError{StatusCode: status, Message: errorMessage(respBody)}
			c.logger.Info("rate limited, backing off",
				"method", method,
				"path", path,
				"wait", wait,
			)

			select {
			case <-ctx.Done():
				return &source.TransportError{Method: method, Path: path, Err: ctx.Err()}
			case <-time.After(wait):
				continue
			}
		}

		if status == http.StatusUnauthorized {
			return &source.TransportError{
				Method: method,
				Path:   path,
				Err: &source.AuthError{
					Message: fmt.Sprintf(
						"authentication failed (401): check the credentials for %s", c.baseURL,
					),
				},
			}
		}

		if status < 200 || status >= 300 {
			return &source.TransportError{
				Method: method,
				Path:   path,
				Err:    &source.APIError{StatusCode: status, Message: errorMessage(respBody)},
			}
		}

		// No content to parse (e.g. 204).
		if result == nil || status == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return &source.ProtocolError{Method: method, Path: path, Err: err}
		}

		return nil
	}

	return &source.TransportError{
		Method: method,
		Path:   path,
		Err:    fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr),
	}
}

// roundTrip sends one request bounded by the client timeout and reads
// the whole response body.
func (c *Client) roundTrip(
	ctx context.Context,
	method string,
	url string,
	payload []byte,
) (int, http.Header, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("reading response body: %w", err)
	}

	return resp.StatusCode, resp.Header, respBody, nil
}

// isRateLimited reports whether a response is a primary (403 with a
// rate limit message) or secondary (429) rate limit.
func isRateLimited(status int, body []byte) bool {
	return isRateLimitStatus(status, errorMessage(body))
}

func isRateLimitStatus(status int, message string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if status != http.StatusForbidden {
		return false
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection")
}

// errorMessage extracts GitHub's error message, falling back to the
// (truncated) raw body.
func errorMessage(body []byte) string {
	var wire struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		return wire.Message
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

// retryAfterDuration reads Retry-After, then X-RateLimit-Reset, and
// falls back to exponential backoff when neither is usable.
func retryAfterDuration(header http.Header, attempt int, now time.Time) time.Duration {
	if value := header.Get("Retry-After"); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	if value := header.Get("X-RateLimit-Reset"); value != "" {
		if resetUnix, err := strconv.ParseInt(value, 10, 64); err == nil {
			if wait := time.Unix(resetUnix, 0).Sub(now); wait > 0 {
				return wait
			}
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// IsNotFound reports whether err is a GitHub 404 Not Found answer.
func IsNotFound(err error) bool {
	return source.StatusCode(err) == http.StatusNotFound
}

// IsRateLimited reports whether err is a rate limit answer that
// survived all retries.
func IsRateLimited(err error) bool {
	var apiErr *source.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return isRateLimitStatus(apiErr.StatusCode, apiErr.Message)
}
