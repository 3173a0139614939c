package github

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// SinceFormat renders the since query parameter (ISO-8601, UTC, seconds).
const SinceFormat = "2006-01-02T15:04:05Z"

// NotificationsPath builds the path of one page of the notification
// inbox. A nil since lists the whole history.
func NotificationsPath(page, perPage int, since *time.Time) string {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}
	if since != nil {
		query.Set("since", since.UTC().Format(SinceFormat))
	}
	return "/notifications?" + query.Encode()
}

// ThreadSubscriptionPath builds the path of a thread's subscription
// resource.
func ThreadSubscriptionPath(threadID string) string {
	return fmt.Sprintf("/notifications/threads/%s/subscription", url.PathEscape(threadID))
}
