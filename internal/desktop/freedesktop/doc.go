// Package freedesktop implements desktop.Platform over the
// org.freedesktop.Notifications D-Bus service on the session bus.
//
// A notification's tag is mapped to the server-assigned id so a second Show
// with the same tag replaces the first (replaces_id). Permission is granted
// as soon as the notification server answers GetServerInformation.
package freedesktop
