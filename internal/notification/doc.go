// Package notification holds the notification model and the Store that
// merges a REST baseline with pushed events into one ordered, deduplicated
// collection.
//
// Store is confined to the event loop and takes no locks.
package notification
