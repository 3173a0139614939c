package model

import "time"

// SubscriptionState is the relationship between the user and one
// notification thread, as returned by the thread subscription endpoint.
//
// Fields are pointers so that an absent field can be told apart from a
// zero value: GitHub omits url when no subscription record exists.
type SubscriptionState struct {
	URL        *string    `json:"url,omitempty"`
	ThreadURL  string     `json:"thread_url,omitempty"`
	Subscribed *bool      `json:"subscribed,omitempty"`
	Ignored    *bool      `json:"ignored,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// Explicit reports whether a first-class subscription record exists.
// A thread without one is followed only implicitly.
func (s SubscriptionState) Explicit() bool {
	return s.URL != nil
}

// Confirmed reports whether the response carried the subscribed field.
func (s SubscriptionState) Confirmed() bool {
	return s.Subscribed != nil
}

// SubscriptionUpdate is the body of a thread subscription mutation.
type SubscriptionUpdate struct {
	Subscribed bool `json:"subscribed"`
	Ignored    bool `json:"ignored"`
}

// Mute is the update that stops notifications for a thread and keeps
// GitHub from re-subscribing the user to it.
var Mute = SubscriptionUpdate{Subscribed: false, Ignored: true}

// Outcome is the result of an unsubscribe attempt that reached GitHub.
type Outcome int

const (
	// OutcomeUnknown is returned alongside errors.
	OutcomeUnknown Outcome = iota

	// OutcomeSuccess means the mutation was confirmed by the response.
	OutcomeSuccess

	// OutcomeMalformedResponse means the response lacked the subscribed
	// field or was not a JSON object. The thread is re-evaluated on the
	// next scan.
	OutcomeMalformedResponse

	// OutcomeDryRun means no mutation was sent.
	OutcomeDryRun
)

// String returns a short label for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeSuccess:
		return "success"
	case OutcomeMalformedResponse:
		return "malformed_response"
	case OutcomeDryRun:
		return "dry_run"
	default:
		return "unknown"
	}
}
