// Package github implements source.Requester for the GitHub REST API.
//
// The client speaks JSON, authenticates with HTTP Basic (user plus
// password or token) or a Bearer token, bounds every request with a
// timeout and retries rate-limited requests after the delay GitHub
// asks for (Retry-After, then X-RateLimit-Reset, then exponential
// backoff).
package github
