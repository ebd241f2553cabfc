// Package logx configures notifysync's structured logging.
//
// logx.Logger is a small value-type wrapper over zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output, and stdout in "json" format, as JSON lines
//   - Levels and sinks swappable at runtime (config hot reload)
package logx
