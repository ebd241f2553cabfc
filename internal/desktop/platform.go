package desktop

import (
	"context"
	"sync"

	logx "notifysync/pkg/logx"
)

type Permission string

const (
	PermissionUnsupported Permission = "unsupported"
	PermissionDefault     Permission = "default"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
)

// Action ids understood by the Notifier. ActionDefault is the body click.
const (
	ActionDefault = "default"
	ActionView    = "view"
	ActionDismiss = "dismiss"
	// ActionClosed is reported when the platform closed the notification
	// (expired or closed by the user).
	ActionClosed = "closed"
)

type Action struct {
	ID    string
	Title string
}

// Toast is one desktop notification request.
type Toast struct {
	Title              string
	Body               string
	Icon               string
	Tag                string
	RequireInteraction bool
	Actions            []Action
}

// Handle controls a shown notification.
type Handle interface {
	Close() error
}

// Platform is the desktop notification capability. Implementations must be
// safe for concurrent use; onAction may be called from any goroutine.
type Platform interface {
	Supported() bool
	Permission() Permission
	// RequestPermission may block (for example on a user prompt).
	RequestPermission(ctx context.Context) (Permission, error)
	Show(t Toast, onAction func(action string)) (Handle, error)
}

type nopHandle struct{}

func (nopHandle) Close() error { return nil }

// Nop is the platform used when desktop notifications are unavailable.
type Nop struct{}

func (Nop) Supported() bool        { return false }
func (Nop) Permission() Permission { return PermissionUnsupported }
func (Nop) RequestPermission(context.Context) (Permission, error) {
	return PermissionUnsupported, nil
}
func (Nop) Show(Toast, func(string)) (Handle, error) { return nopHandle{}, nil }

// LogPlatform renders notifications as log lines. It is always granted.
type LogPlatform struct {
	Log logx.Logger
}

func (p LogPlatform) Supported() bool        { return true }
func (p LogPlatform) Permission() Permission { return PermissionGranted }
func (p LogPlatform) RequestPermission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (p LogPlatform) Show(t Toast, _ func(string)) (Handle, error) {
	p.Log.Info("desktop notification",
		logx.String("tag", t.Tag),
		logx.String("title", t.Title),
		logx.String("body", t.Body),
		logx.Bool("sticky", t.RequireInteraction),
	)
	return nopHandle{}, nil
}

// Recorder is an in-memory Platform. Tests use it to inspect what was shown
// and to simulate user actions.
type Recorder struct {
	mu      sync.Mutex
	perm    Permission
	grantTo Permission
	shown   []*RecordedToast
}

type RecordedToast struct {
	Toast
	rec      *Recorder
	onAction func(string)
	closed   bool
}

func (t *RecordedToast) Close() error {
	t.rec.mu.Lock()
	t.closed = true
	t.rec.mu.Unlock()
	return nil
}

// Closed reports whether the notifier closed this toast.
func (t *RecordedToast) Closed() bool {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	return t.closed
}

// Act simulates the user invoking action on the toast.
func (t *RecordedToast) Act(action string) {
	if t.onAction != nil {
		t.onAction(action)
	}
}

// NewRecorder returns a Recorder with permission perm. RequestPermission
// moves a "default" permission to grantTo.
func NewRecorder(perm, grantTo Permission) *Recorder {
	return &Recorder{perm: perm, grantTo: grantTo}
}

func (r *Recorder) Supported() bool { return r.Permission() != PermissionUnsupported }

func (r *Recorder) Permission() Permission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perm
}

func (r *Recorder) RequestPermission(ctx context.Context) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return PermissionDefault, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.perm == PermissionDefault {
		r.perm = r.grantTo
	}
	return r.perm, nil
}

func (r *Recorder) Show(t Toast, onAction func(string)) (Handle, error) {
	rt := &RecordedToast{Toast: t, rec: r, onAction: onAction}
	r.mu.Lock()
	r.shown = append(r.shown, rt)
	r.mu.Unlock()
	return rt, nil
}

// Shown returns every toast shown so far, oldest first.
func (r *Recorder) Shown() []*RecordedToast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*RecordedToast(nil), r.shown...)
}
