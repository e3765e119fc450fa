package log

import (
	"strings"
	"sync"
)

var _ Logger = (*RecordingLogger)(nil)

// Entry is a single record kept by a RecordingLogger.
type Entry struct {
	Level         Level
	Name          string
	Message       string
	KeysAndValues []any
}

// RecordingLogger keeps every entry in memory. It is meant for tests that need
// to assert which diagnostics a component produced.
type RecordingLogger struct {
	name string
	kv   []any
	sink *recordSink
}

type recordSink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{sink: &recordSink{}}
}

func (r *RecordingLogger) Debug(msg string, keysAndValues ...any) {
	r.record(LevelDebug, msg, keysAndValues)
}

func (r *RecordingLogger) Info(msg string, keysAndValues ...any) {
	r.record(LevelInfo, msg, keysAndValues)
}

func (r *RecordingLogger) Warn(msg string, keysAndValues ...any) {
	r.record(LevelWarn, msg, keysAndValues)
}

func (r *RecordingLogger) Error(msg string, keysAndValues ...any) {
	r.record(LevelError, msg, keysAndValues)
}

func (r *RecordingLogger) Fatal(msg string, keysAndValues ...any) {
	r.record(LevelFatal, msg, keysAndValues)
}

func (r *RecordingLogger) record(level Level, msg string, keysAndValues []any) {
	kv := make([]any, 0, len(r.kv)+len(keysAndValues))
	kv = append(kv, r.kv...)
	kv = append(kv, keysAndValues...)

	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	r.sink.entries = append(r.sink.entries, Entry{
		Level:         level,
		Name:          r.name,
		Message:       msg,
		KeysAndValues: kv,
	})
}

// WithKV returns a logger sharing the same entry sink with an extra key-value pair.
func (r *RecordingLogger) WithKV(key string, value any) Logger {
	kv := make([]any, 0, len(r.kv)+2)
	kv = append(kv, r.kv...)
	return &RecordingLogger{name: r.name, kv: append(kv, key, value), sink: r.sink}
}

func (r *RecordingLogger) GetAllKV() []any { return r.kv }

// WithName returns a logger sharing the same entry sink under a nested name.
func (r *RecordingLogger) WithName(name string) Logger {
	if r.name != "" {
		name = r.name + "." + name
	}
	return &RecordingLogger{name: name, kv: r.kv, sink: r.sink}
}

func (r *RecordingLogger) Name() string { return r.name }

func (r *RecordingLogger) AddCallerSkip(skip int) Logger { return r }

// Entries returns a copy of all recorded entries in order.
func (r *RecordingLogger) Entries() []Entry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()

	entries := make([]Entry, len(r.sink.entries))
	copy(entries, r.sink.entries)
	return entries
}

// Count returns how many entries at level contain substr in their message.
func (r *RecordingLogger) Count(level Level, substr string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// Reset drops all recorded entries.
func (r *RecordingLogger) Reset() {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	r.sink.entries = nil
}
