package log

// Logger is the structured logger used across the module. Key-value pairs
// are passed flat: "chainId", "0x1", "accounts", accounts.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs at fatal level. Backends may exit the process afterwards.
	Fatal(msg string, keysAndValues ...any)

	// WithKV derives a logger that attaches key and value to every entry.
	WithKV(key string, value any) Logger
	// GetAllKV returns the pairs attached with WithKV, oldest first.
	GetAllKV() []any
	// WithName derives a logger one level deeper in the name hierarchy.
	WithName(name string) Logger
	Name() string
	// AddCallerSkip derives a logger that reports a caller skip frames further up the stack.
	AddCallerSkip(skip int) Logger
}

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)
