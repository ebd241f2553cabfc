// Package connection owns the single live transport for one identity.
//
// The Manager runs a disconnected -> connecting -> connected state machine,
// reconnects with exponential backoff and forwards server events to an
// eventbus.Dispatcher. Every explicit Connect or Disconnect that changes the
// connection bumps a generation counter; backoff timers and transport
// callbacks from an older generation are ignored.
//
// The Manager is confined to the event loop: call it from loop tasks only,
// and give it a Scheduler whose timers fire on that loop.
package connection
