package model

import "time"

// ScanResult summarizes one scan. It is reported, never persisted as is.
type ScanResult struct {
	// Pages is the highest page number visited, including the final
	// empty page.
	Pages int

	// Considered counts notifications that passed the repository filter
	// and had reason "subscribed".
	Considered int

	// Unsubscribed counts confirmed unsubscribe mutations.
	Unsubscribed int

	// Malformed counts mutations whose response lacked confirmation.
	Malformed int

	// DryRun counts implicit subscriptions left alone because of dry-run mode.
	DryRun int
}

// Run is the history record of one poll cycle.
type Run struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	Since        *time.Time `json:"since,omitempty"`
	Pages        int        `json:"pages"`
	Unsubscribed int        `json:"unsubscribed"`
	Malformed    int        `json:"malformed"`
	Error        string     `json:"error,omitempty"`
}

// Succeeded reports whether the cycle completed without a scan error.
func (r Run) Succeeded() bool {
	return r.Error == ""
}
