// Package log provides the structured logging capability injected into every
// component of the wallet provider.
//
// Components never reach for a global logger. They receive a Logger from their
// configuration (or from a context via FromContext) and fall back to a
// NoopLogger when none is given.
//
// # Implementations
//
//   - ZapLogger: production logger backed by Uber's zap, console/json/logfmt output
//   - NoopLogger: discards everything
//   - RecordingLogger: keeps entries in memory so tests can assert on them
//
// # Usage
//
//	conf := log.Config{Format: "logfmt", Level: log.LevelDebug}
//	lg := log.NewZapLogger(conf).WithName("provider")
//	lg.Warn("lost connection", "stream", "transport", "error", err)
//
// Every logging method takes a message followed by alternating key-value pairs.
package log
