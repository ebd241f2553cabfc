package freedesktop

import (
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"

	"notifysync/internal/desktop"
)

func TestBuildRequestNormal(t *testing.T) {
	req := buildRequest("notifysync", 0, desktop.Toast{
		Title:   "Grade posted",
		Body:    "Math: A",
		Icon:    "dialog-information",
		Tag:     "n1",
		Actions: []desktop.Action{{ID: "view", Title: "View"}, {ID: "dismiss", Title: "Dismiss"}},
	})
	wantActions := []string{"default", "", "view", "View", "dismiss", "Dismiss"}
	if !reflect.DeepEqual(req.Actions, wantActions) {
		t.Fatalf("actions=%v", req.Actions)
	}
	if req.Timeout != -1 {
		t.Fatalf("timeout=%d", req.Timeout)
	}
	if u := req.Hints["urgency"].Value(); u != urgencyNormal {
		t.Fatalf("urgency=%v", u)
	}
	if _, ok := req.Hints["resident"]; ok {
		t.Fatalf("normal toast marked resident")
	}
	args := req.args()
	if len(args) != 8 || args[0] != "notifysync" || args[3] != "Grade posted" || args[4] != "Math: A" {
		t.Fatalf("args=%v", args)
	}
}

func TestBuildRequestRequireInteraction(t *testing.T) {
	req := buildRequest("app", 42, desktop.Toast{Tag: "n1", RequireInteraction: true})
	if req.ReplacesID != 42 || req.Timeout != 0 {
		t.Fatalf("req=%+v", req)
	}
	if u := req.Hints["urgency"].Value(); u != urgencyCritical {
		t.Fatalf("urgency=%v", u)
	}
	if r := req.Hints["resident"].Value(); r != true {
		t.Fatalf("resident=%v", r)
	}
}

func TestParseSignal(t *testing.T) {
	id, action, ok := parseSignal(&dbus.Signal{Name: signalActionInvoked, Body: []any{uint32(7), "view"}})
	if !ok || id != 7 || action != "view" {
		t.Fatalf("action invoked: %v %q %v", id, action, ok)
	}
	id, action, ok = parseSignal(&dbus.Signal{Name: signalClosed, Body: []any{uint32(8), uint32(2)}})
	if !ok || id != 8 || action != desktop.ActionClosed {
		t.Fatalf("closed: %v %q %v", id, action, ok)
	}
	for _, sig := range []*dbus.Signal{
		nil,
		{Name: signalActionInvoked, Body: []any{uint32(1)}},
		{Name: signalActionInvoked, Body: []any{"x", "view"}},
		{Name: "org.example.Other", Body: []any{uint32(1), "view"}},
	} {
		if _, _, ok := parseSignal(sig); ok {
			t.Fatalf("parsed unexpected signal %+v", sig)
		}
	}
}
