package freedesktop

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"notifysync/internal/desktop"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	iface      = busName

	memberNotify        = iface + ".Notify"
	memberClose         = iface + ".CloseNotification"
	memberServerInfo    = iface + ".GetServerInformation"
	signalActionInvoked = iface + ".ActionInvoked"
	signalClosed        = iface + ".NotificationClosed"
)

var ErrUnsupported = errors.New("freedesktop notifications are not available on this platform")

// Urgency hint values understood by notification servers.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// notifyRequest holds the Notify call arguments in wire order.
type notifyRequest struct {
	AppName    string
	ReplacesID uint32
	Icon       string
	Summary    string
	Body       string
	Actions    []string
	Hints      map[string]dbus.Variant
	Timeout    int32
}

func (r notifyRequest) args() []any {
	return []any{r.AppName, r.ReplacesID, r.Icon, r.Summary, r.Body, r.Actions, r.Hints, r.Timeout}
}

func buildRequest(appName string, replaces uint32, t desktop.Toast) notifyRequest {
	// "default" is the body click; it has no visible label.
	actions := []string{desktop.ActionDefault, ""}
	for _, a := range t.Actions {
		if a.ID == "" || a.ID == desktop.ActionDefault {
			continue
		}
		actions = append(actions, a.ID, a.Title)
	}

	urgency := urgencyNormal
	timeout := int32(-1)
	hints := map[string]dbus.Variant{}
	if t.RequireInteraction {
		urgency = urgencyCritical
		timeout = 0
		hints["resident"] = dbus.MakeVariant(true)
	}
	hints["urgency"] = dbus.MakeVariant(urgency)
	if t.Tag != "" {
		hints["x-notifysync-tag"] = dbus.MakeVariant(t.Tag)
	}

	return notifyRequest{
		AppName:    appName,
		ReplacesID: replaces,
		Icon:       t.Icon,
		Summary:    t.Title,
		Body:       t.Body,
		Actions:    actions,
		Hints:      hints,
		Timeout:    timeout,
	}
}

// parseSignal maps an ActionInvoked or NotificationClosed signal to the
// notification id and the desktop action it represents.
func parseSignal(sig *dbus.Signal) (id uint32, action string, ok bool) {
	if sig == nil || len(sig.Body) < 2 {
		return 0, "", false
	}
	id, ok = sig.Body[0].(uint32)
	if !ok {
		return 0, "", false
	}
	switch sig.Name {
	case signalActionInvoked:
		key, isStr := sig.Body[1].(string)
		if !isStr {
			return 0, "", false
		}
		return id, key, true
	case signalClosed:
		return id, desktop.ActionClosed, true
	}
	return 0, "", false
}
