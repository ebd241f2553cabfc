// Package storage provides the small persistence layer of notifysync.
//
// It currently supports:
//   - Audit log appends (backend mutations issued on behalf of the user)
//   - Desktop "seen" markers, so a notification is not rendered twice
//     across restarts
package storage
