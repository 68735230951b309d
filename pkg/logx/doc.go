// Package logx configures prayerbell's structured logging.
//
// A small value type (logx.Logger) wraps zerolog so components can carry a
// logger by value, derive component loggers with With(), and keep working
// when the sinks are swapped at runtime:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured (one object per line)
//
// The zero Logger is a no-op, which keeps optional logger fields safe.
package logx
