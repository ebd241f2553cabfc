// Package transport defines the persistent event channel used by the
// connection manager.
//
// A Dialer opens connections asynchronously: Open returns at once and the
// outcome is reported through the Sink (Connected or ConnectError). After a
// successful connect every inbound frame is delivered with Frame, in receipt
// order, and an unexpected close ends with Disconnected. A connection closed
// by its owner reports nothing further.
package transport
