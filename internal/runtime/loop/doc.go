// Package loop provides the single cooperative event loop notifysync's core
// runs on.
//
// Everything that touches dispatcher, connection, store or desktop state runs
// as a task on one Loop goroutine, so those components need no locks.
// Goroutines that produce work (transport readers, timers, REST workers) hand
// it over with Post; callers that need a result use Call.
//
// Timers are created through the Scheduler interface. Loop's own timers post
// their callback back onto the loop; Manual is a deterministic scheduler for
// tests.
package loop
