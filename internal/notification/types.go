package notification

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Type string

const (
	TypeEmail Type = "email"
	TypeSMS   Type = "sms"
	TypeInApp Type = "in-app"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is one entry of a user's notification list.
type Notification struct {
	ID        string     `json:"id"`
	Type      Type       `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	Priority  Priority   `json:"priority,omitempty"`
	Metadata  Metadata   `json:"metadata,omitempty"`
}

func (n Notification) IsRead() bool { return n.ReadAt != nil }

// Category is the routing category: metadata "category" when present,
// otherwise the notification type.
func (n Notification) Category() string {
	if c := strings.TrimSpace(n.Metadata["category"]); c != "" {
		return c
	}
	return string(n.Type)
}

// Clone returns a copy that shares no pointers or maps with n.
func (n Notification) Clone() Notification {
	cp := n
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	if n.Metadata != nil {
		cp.Metadata = make(Metadata, len(n.Metadata))
		for k, v := range n.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// Metadata is a flat string map. Non-string JSON values are kept in their
// JSON text form so a loosely typed backend payload still decodes.
type Metadata map[string]string

func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(Metadata, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		if string(v) == "null" {
			continue
		}
		out[k] = string(v)
	}
	*m = out
	return nil
}
