package log_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
)

func TestZapLogger(t *testing.T) {
	tws := &testWriteSyncer{}
	logger := log.NewZapLogger(log.Config{Format: "json", Level: log.LevelDebug}, tws)

	testName := "provider"
	logger = logger.WithName(testName)
	keysAndValues := []any{"chainId", "0x1", "stream", "transport"}
	testMessage := "lost connection"

	logger.Debug(testMessage, keysAndValues...)
	tws.AssertEntry(t, log.LevelDebug, testName, testMessage, keysAndValues...)

	logger.Info(testMessage, keysAndValues...)
	tws.AssertEntry(t, log.LevelInfo, testName, testMessage, keysAndValues...)

	logger.Warn(testMessage, keysAndValues...)
	tws.AssertEntry(t, log.LevelWarn, testName, testMessage, keysAndValues...)

	logger.Error(testMessage, keysAndValues...)
	tws.AssertEntry(t, log.LevelError, testName, testMessage, keysAndValues...)

	sub := "stream"
	logger = logger.WithName(sub)
	assert.Equal(t, fmt.Sprintf("%s.%s", testName, sub), logger.Name())

	logger = logger.WithKV("instance", "a")
	assert.Equal(t, []any{"instance", "a"}, logger.GetAllKV())

	logger.Warn(testMessage, keysAndValues...)
	tws.AssertEntry(t, log.LevelWarn, testName+"."+sub, testMessage, append([]any{"instance", "a"}, keysAndValues...)...)
}

func TestZapLogger_LevelFilter(t *testing.T) {
	tws := &testWriteSyncer{}
	logger := log.NewZapLogger(log.Config{Format: "json", Level: log.LevelWarn}, tws)

	logger.Debug("dropped")
	assert.Nil(t, tws.lastEntry)

	logger.Warn("kept")
	require.NotNil(t, tws.lastEntry)
}

func TestZapLogger_WithKVDoesNotShareBacking(t *testing.T) {
	logger := log.NewZapLogger(log.Config{Format: "json"}, &testWriteSyncer{})

	base := logger.WithKV("a", 1)
	left := base.WithKV("b", 2)
	right := base.WithKV("c", 3)

	assert.Equal(t, []any{"a", 1, "b", 2}, left.GetAllKV())
	assert.Equal(t, []any{"a", 1, "c", 3}, right.GetAllKV())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, log.Config{Format: "logfmt", Level: log.LevelWarn}.Validate())
	assert.Error(t, log.Config{Format: "xml", Level: log.LevelInfo}.Validate())
	assert.Error(t, log.Config{Format: "json", Level: "verbose"}.Validate())
}

type testWriteSyncer struct {
	lastEntry []byte
}

func (tws *testWriteSyncer) Write(p []byte) (n int, err error) {
	tws.lastEntry = append([]byte(nil), p...)
	return len(p), nil
}

func (tws *testWriteSyncer) Sync() error {
	return nil
}

// AssertEntry checks level, logger name, message and the structured fields of the last entry.
func (tws *testWriteSyncer) AssertEntry(t *testing.T, level log.Level, name, message string, keysAndValues ...any) {
	t.Helper()

	entryMap := make(map[string]any)
	require.NoError(t, json.Unmarshal(tws.lastEntry, &entryMap), "Failed to unmarshal log entry: %s", string(tws.lastEntry))

	assert.Contains(t, entryMap, "ts")
	assert.Contains(t, entryMap, "caller")
	assert.Equal(t, name, entryMap["logger"])
	assert.Equal(t, string(level), entryMap["level"])
	assert.Equal(t, message, entryMap["msg"])

	for i := 0; i < len(keysAndValues); i += 2 {
		assert.Equal(t, keysAndValues[i+1], entryMap[keysAndValues[i].(string)])
	}
	assert.Equal(t, len(keysAndValues)/2, len(entryMap)-5) // ts, level, logger, caller, msg
}
