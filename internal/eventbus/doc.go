// Package eventbus holds the two in-process fan-out primitives of notifysync.
//
// Dispatcher is the kind-keyed callback registry the core components talk
// through. It is confined to the event loop (internal/runtime/loop) and takes
// no locks: subscribe, unsubscribe and dispatch must all run on the loop.
//
// Feed is a channel fan-out used to hand view snapshots from the loop to UI
// goroutines. Publishing never blocks; slow subscribers drop events.
package eventbus
