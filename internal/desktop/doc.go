// Package desktop bridges "notification:new" events into platform desktop
// notifications.
//
// Rendering is gated by a Permission obtained from the Platform. Normal
// priority notifications close themselves after Config.AutoDismiss; high
// priority ones stay until the user acts on them. Activating a notification
// (or its "view" action) navigates to the route for its category.
//
// A Notifier is confined to the event loop. Platform callbacks are posted
// back onto the loop through the Executor given to New.
package desktop
