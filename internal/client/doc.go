// Package client composes the notification engine for one identity and
// exposes the UI-facing façade.
//
// Each Client owns an event loop, a dispatcher, a connection manager, a
// notification store and a desktop notifier. Every public method is safe for
// concurrent use: state access is marshalled onto the loop, REST calls run on
// the caller's goroutine (or a supervised goroutine) and post their results
// back.
//
// View changes are published on Updates as Snapshots; server system events
// are published there as Notices.
package client
