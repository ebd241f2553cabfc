// Package filter derives the visible notification list from the store output
// and the UI filter criteria.
package filter

import (
	"strings"

	"notifysync/internal/notification"
)

const All = "all"

const (
	StatusUnread = "unread"
	StatusRead   = "read"
)

// Criteria selects notifications. Empty fields mean "all".
type Criteria struct {
	// Type is all, email, sms or in-app.
	Type string `json:"type,omitempty"`
	// Status is all, unread or read.
	Status string `json:"status,omitempty"`
	// Search is matched case-insensitively against title and message.
	Search string `json:"search,omitempty"`
}

// Filter returns the matching notifications in input order. It never
// mutates list.
func Filter(list []notification.Notification, c Criteria) []notification.Notification {
	typ := normalize(c.Type)
	status := normalize(c.Status)
	needle := strings.ToLower(strings.TrimSpace(c.Search))

	out := make([]notification.Notification, 0, len(list))
	for _, n := range list {
		if typ != All && string(n.Type) != typ {
			continue
		}
		switch status {
		case StatusUnread:
			if n.IsRead() {
				continue
			}
		case StatusRead:
			if !n.IsRead() {
				continue
			}
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(n.Title), needle) &&
			!strings.Contains(strings.ToLower(n.Message), needle) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func normalize(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return All
	}
	return v
}
