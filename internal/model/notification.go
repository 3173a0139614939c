package model

import "time"

// Reason is GitHub's stated cause for a notification's existence.
type Reason string

// Notification reasons documented by the GitHub REST API.
const (
	ReasonSubscribed      Reason = "subscribed"
	ReasonMention         Reason = "mention"
	ReasonTeamMention     Reason = "team_mention"
	ReasonAuthor          Reason = "author"
	ReasonComment         Reason = "comment"
	ReasonManual          Reason = "manual"
	ReasonAssign          Reason = "assign"
	ReasonReviewRequested Reason = "review_requested"
	ReasonStateChange     Reason = "state_change"
	ReasonCIActivity      Reason = "ci_activity"
)

// Notification is a single entry of the user's notification inbox.
// It is a snapshot of one page fetch and is never persisted.
type Notification struct {
	// ID is the opaque thread identifier.
	ID string `json:"id"`

	// Reason explains why the user received the notification.
	Reason Reason `json:"reason"`

	// Unread reports whether the notification is still unread.
	Unread bool `json:"unread"`

	// UpdatedAt is the last activity time on the thread.
	UpdatedAt time.Time `json:"updated_at"`

	// Repository is the repository the thread belongs to.
	Repository Repository `json:"repository"`

	// Subject is the commentable resource (issue, pull request, ...).
	Subject Subject `json:"subject"`
}

// Repository identifies the repository of a notification thread.
type Repository struct {
	// Name is the short repository name (e.g., "gunsub").
	Name string `json:"name"`

	// FullName is the owner-qualified name (e.g., "jpetazzo/gunsub").
	FullName string `json:"full_name"`
}

// Subject describes the resource a notification thread is about.
type Subject struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}
