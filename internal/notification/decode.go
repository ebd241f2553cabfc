package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingID       = errors.New("notification: missing id")
	ErrUnsupportedData = errors.New("notification: unsupported payload")
)

// Decode turns a dispatched payload into a Notification. Accepted payloads
// are Notification, *Notification, json.RawMessage, []byte and JSON strings.
func Decode(data any) (Notification, error) {
	var n Notification
	switch v := data.(type) {
	case Notification:
		n = v.Clone()
	case *Notification:
		if v == nil {
			return Notification{}, ErrUnsupportedData
		}
		n = v.Clone()
	case json.RawMessage:
		if err := json.Unmarshal(v, &n); err != nil {
			return Notification{}, fmt.Errorf("decode notification: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(v, &n); err != nil {
			return Notification{}, fmt.Errorf("decode notification: %w", err)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return Notification{}, fmt.Errorf("decode notification: %w", err)
		}
	default:
		return Notification{}, fmt.Errorf("%w: %T", ErrUnsupportedData, data)
	}
	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		return Notification{}, ErrMissingID
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	return n, nil
}

type idPayload struct {
	ID             string `json:"id"`
	NotificationID string `json:"notificationId"`
}

// DecodeID extracts the target id of a delete payload: a bare id, a JSON
// string, or an object with "id" (or "notificationId").
func DecodeID(data any) (string, error) {
	var raw []byte
	switch v := data.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", ErrMissingID
		}
		if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, `"`) {
			return s, nil
		}
		raw = []byte(s)
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case Notification:
		return nonEmptyID(v.ID)
	case *Notification:
		if v == nil {
			return "", ErrMissingID
		}
		return nonEmptyID(v.ID)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedData, data)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return nonEmptyID(s)
	}
	var p idPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("decode id: %w", err)
	}
	if p.ID == "" {
		p.ID = p.NotificationID
	}
	return nonEmptyID(p.ID)
}

func nonEmptyID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}
