package client

import (
	"time"

	"notifysync/internal/storage"
)

func auditEntry(userID, action, target, reqID string, start time.Time, err error) storage.AuditEntry {
	e := storage.AuditEntry{
		At:        start,
		UserID:    userID,
		Action:    action,
		Target:    target,
		OK:        err == nil,
		TookMS:    time.Since(start).Milliseconds(),
		RequestID: reqID,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
